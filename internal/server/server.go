// Package server wires the router and its routes and runs the HTTP server.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It decides:
//   - which URL patterns map to which handler functions
//   - which middleware and role guards run on which routes
//   - how the server starts, runs the notification broker, and stops
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config
//	  → sqlite.DB            (users, food, donations, ratings, notifications)
//	  → storage.Store        (LocalStore or S3Store)
//	  → realtime.Broker      (LocalBroker, or RedisBroker when REDIS_URL is set)
//	  → services             (auth, user, food, donation, rating, notification)
//	  → handlers             (one per resource)
//
// This is the "composition root": every dependency is built in New and
// nowhere else.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"

	"github.com/sakif/shareplate/internal/auth"
	"github.com/sakif/shareplate/internal/config"
	"github.com/sakif/shareplate/internal/handler"
	"github.com/sakif/shareplate/internal/middleware"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/realtime"
	sqliteRepo "github.com/sakif/shareplate/internal/repository/sqlite"
	"github.com/sakif/shareplate/internal/service"
	"github.com/sakif/shareplate/internal/storage"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and, when configured, the Redis
// client. Close releases both; Start calls it on the way out.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	redis  *redis.Client // nil without REDIS_URL
	broker realtime.Broker
	local  *storage.LocalStore // nil with the S3 backend
}

// New opens the database and storage, builds every service, and mounts the
// routes. Nothing is listening yet; call Start or use Handler in tests.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === CREATE DATABASE ===
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(ctx); err != nil {
		s.Close() // Clean up whatever was opened before the failure
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, so tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and the Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

func (s *Server) newStore(ctx context.Context) (storage.Store, error) {
	sc := s.config.Storage
	if sc.Backend == "s3" {
		return storage.NewS3Store(ctx, sc.S3Bucket, sc.S3Region, sc.S3PublicURL)
	}
	local, err := storage.NewLocalStore(sc.UploadDir)
	if err != nil {
		return nil, err
	}
	s.local = local
	return local, nil
}

func (s *Server) newBroker(registry *realtime.Registry) (realtime.Broker, error) {
	if s.config.Redis.URL == "" {
		return realtime.NewLocalBroker(registry, s.logger), nil
	}
	client, err := realtime.NewRedisClient(s.config.Redis.URL)
	if err != nil {
		return nil, err
	}
	s.redis = client
	return realtime.NewRedisBroker(client, s.config.Redis.Channel, registry, s.logger), nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                         → database ping
//	GET  /ws                              → notification websocket
//	GET  /uploads/*                       → stored images (local backend)
//	POST /api/auth/register|login         → public
//	GET  /api/auth/me                     → any signed-in user
//	GET  /api/auth/github/login|callback  → only when GitHub is configured
//	     /api/users/...                   → donors and ngos public, me signed in
//	     /api/food/...                    → reads public, writes donor only
//	     /api/donations/...               → mostly ngo, donor list donor only
//	     /api/ratings/...                 → create ngo, read public
//	     /api/notifications/...           → signed in
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID so every later log line can carry it
//  2. RealIP before anything reads RemoteAddr
//  3. Recoverer turns panics into 500s
//  4. Logger
//  5. CORS answers preflights before any auth check
func (s *Server) setupRoutes(ctx context.Context) error {
	cfg := s.config

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.CORS(cfg.Server.ClientURL))

	// === Infrastructure ===
	ttl, err := cfg.Auth.TokenTTL()
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, ttl)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	store, err := s.newStore(ctx)
	if err != nil {
		return fmt.Errorf("creating image store: %w", err)
	}

	registry := realtime.NewRegistry()
	broker, err := s.newBroker(registry)
	if err != nil {
		return fmt.Errorf("creating notification broker: %w", err)
	}
	s.broker = broker

	// === Services ===
	// DEPENDENCY CHAIN:
	//   s.db → repositories → services → handlers
	// The handler never touches the database directly, and no service
	// touches HTTP.
	users := s.db.Users()
	notifications := service.NewNotificationService(s.db.Notifications(), users, broker, s.logger)
	accounts := service.NewAuthService(users, tokens, auth.NewPasswordService(), s.logger)
	profiles := service.NewUserService(users, s.logger)
	food := service.NewFoodService(s.db.Food(), store, notifications, s.logger)
	donations := service.NewDonationService(s.db.Donations(), s.db.Food(), notifications, s.logger)
	ratings := service.NewRatingService(s.db.Ratings(), s.db.Donations(), users, s.logger)

	// === Handlers ===
	validate := handler.NewValidator()

	var github *auth.GitHubProvider
	if cfg.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}

	authHandler := handler.NewAuthHandler(accounts, github, cfg.Server.ClientURL, validate, s.logger)
	userHandler := handler.NewUserHandler(profiles, validate, s.logger)
	foodHandler := handler.NewFoodHandler(food, validate, s.logger)
	donationHandler := handler.NewDonationHandler(donations, food, validate, s.logger)
	ratingHandler := handler.NewRatingHandler(ratings, validate, s.logger)
	notificationHandler := handler.NewNotificationHandler(notifications, s.logger)

	requireAuth := auth.RequireAuth(tokens, users)
	donorOnly := auth.RequireRole(model.RoleDonor)
	ngoOnly := auth.RequireRole(model.RoleNGO)

	// === Routes ===
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/ws", realtime.NewHandler(registry, tokens, users, cfg.Server.ClientURL, s.logger))

	if s.local != nil {
		fileServer := http.FileServer(http.Dir(s.local.Dir()))
		s.router.Handle("/uploads/*", http.StripPrefix("/uploads/", fileServer))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.With(requireAuth).Get("/me", authHandler.HandleMe)
			if github != nil {
				r.Get("/github/login", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
			}
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/donors", userHandler.HandleTopDonors)
			r.Get("/ngos", userHandler.HandleListNGOs)
			r.With(requireAuth).Get("/me", authHandler.HandleMe)
			r.With(requireAuth).Put("/me", userHandler.HandleUpdateMe)
		})

		r.Route("/food", func(r chi.Router) {
			r.Get("/", foodHandler.HandleList)
			r.Get("/{id}", foodHandler.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth, donorOnly)
				r.Post("/", foodHandler.HandleCreate)
				r.Put("/{id}", foodHandler.HandleUpdate)
				r.Put("/{id}/unavailable", foodHandler.HandleMarkUnavailable)
			})
		})

		r.Route("/donations", func(r chi.Router) {
			r.Use(requireAuth)
			r.With(donorOnly).Get("/donor", donationHandler.HandleListForDonor)

			r.Group(func(r chi.Router) {
				r.Use(ngoOnly)
				r.Post("/", donationHandler.HandleClaim)
				r.Get("/ngo", donationHandler.HandleListForNgo)
				r.Put("/{id}/complete", donationHandler.HandleComplete)
				r.Put("/{id}/cancel", donationHandler.HandleCancel)
			})
		})

		r.Route("/ratings", func(r chi.Router) {
			r.Get("/donor/{donorId}", ratingHandler.HandleGetForDonor)
			r.With(requireAuth, ngoOnly).Post("/", ratingHandler.HandleCreate)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", notificationHandler.HandleList)
			r.Put("/{id}/read", notificationHandler.HandleMarkRead)
		})
	})

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"success":false,"message":"database unavailable"}`))
		return
	}
	w.Write([]byte(`{"success":true}`))
}

// Start runs the notification broker and the HTTP server until SIGINT or
// SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Stop the broker and close the database and Redis client
func (s *Server) Start() error {
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// WebSocket connections are hijacked, so WriteTimeout does not cut them
	// off; the client pumps set their own deadlines.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	brokerErrors := make(chan error, 1)
	go func() {
		brokerErrors <- s.broker.Run(ctx)
	}()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Path),
			slog.String("storage", s.config.Storage.Backend),
			slog.Bool("redis", s.redis != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case err := <-brokerErrors:
		// A nil error means ctx was cancelled, which is a normal shutdown.
		if err != nil {
			s.shutdown(srv)
			return fmt.Errorf("notification broker: %w", err)
		}

	case <-ctx.Done():
	}

	s.logger.Info("shutdown signal received")
	if err := s.shutdown(srv); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

// shutdown gives in-flight requests 30 seconds to complete.
func (s *Server) shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
