package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/auth"
)

// Handler serves GET /ws. The caller authenticates before the upgrade with
// ?token=<jwt> (browsers cannot set headers on a websocket handshake) or a
// bearer header.
type Handler struct {
	registry *Registry
	tokens   *auth.TokenService
	users    auth.PrincipalLoader
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler allows handshakes from allowedOrigin only; an empty value
// accepts any origin.
func NewHandler(registry *Registry, tokens *auth.TokenService, users auth.PrincipalLoader, allowedOrigin string, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		tokens:   tokens,
		users:    users,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r)
	}

	user, err := auth.Authenticate(r.Context(), h.tokens, h.users, token)
	if err != nil {
		status, message := http.StatusInternalServerError, "An internal error occurred"
		if errors.Is(err, apperror.ErrUnauthenticated) {
			status, message = http.StatusUnauthorized, err.Error()
		} else {
			h.logger.Error("websocket auth failed", slog.String("error", err.Error()))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
		return
	}

	// Upgrade writes its own error response on failure.
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := newClient(user.ID, conn)
	h.registry.Register(client)
	h.logger.Info("websocket connected",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	go client.writePump(h.registry)
	client.readPump(h.registry, h.logger)

	h.logger.Info("websocket disconnected", slog.String("user_id", user.ID))
}
