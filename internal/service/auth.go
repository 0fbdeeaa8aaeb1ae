// Package service holds the business rules. Handlers translate HTTP into
// calls here; repositories persist the results.
//
//	Handler (HTTP) → Service (rules, ownership, notifications) → Repository (DB)
//
// Services never see an http.Request. They take the authenticated *model.User
// from the handler and return apperror values the handler maps to statuses.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/auth"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/repository"
)

const invalidCredentials = "Invalid credentials"

// AuthService registers accounts and signs people in.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → issue JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is a new account. Location is optional; accounts without one
// get model.DefaultLocation.
type RegisterInput struct {
	Name         string
	Email        string
	Password     string
	Role         string
	Phone        string
	Address      string
	Organization string
	IsAnonymous  bool
	Location     *model.GeoPoint
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := model.NormalizeEmail(in.Email)
	switch {
	case name == "":
		return nil, apperror.ValidationFailed("name", "name is required")
	case email == "":
		return nil, apperror.ValidationFailed("email", "email is required")
	case in.Password == "":
		return nil, apperror.ValidationFailed("password", "password is required")
	}
	role, err := model.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	location := model.DefaultLocation()
	if in.Location != nil {
		location = *in.Location
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Phone:        in.Phone,
		Address:      in.Address,
		Organization: in.Organization,
		IsAnonymous:  in.IsAnonymous,
		Location:     location,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return s.issue(user)
}

// Login checks an email and password. An unknown email and a wrong password
// produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "Please provide an email and password")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthenticated(invalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user by email: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return s.issue(user)
}

// LoginWithGitHub signs in the account that owns the GitHub profile's email,
// creating it with the requested role on first login. Accounts created this
// way have no password.
func (s *AuthService) LoginWithGitHub(ctx context.Context, profile *auth.GitHubProfile, role string) (*AuthResult, error) {
	if profile == nil {
		return nil, fmt.Errorf("service/auth: GitHub profile must not be nil")
	}

	email := model.NormalizeEmail(profile.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("user logged in via GitHub",
			slog.String("user_id", user.ID),
			slog.String("login", profile.Login),
		)
		return s.issue(user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: fetching user by email: %w", err)
	}

	parsed, err := model.ParseRole(role)
	if err != nil {
		return nil, apperror.ValidationFailed("userType", "Choose donor or ngo to finish signing up with GitHub")
	}

	user = &model.User{
		Name:     profile.DisplayName(),
		Email:    email,
		Role:     parsed,
		Location: model.DefaultLocation(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating GitHub user: %w", err)
	}

	s.logger.Info("user registered via GitHub",
		slog.String("user_id", user.ID),
		slog.String("login", profile.Login),
		slog.String("role", string(user.Role)),
	)
	return s.issue(user)
}

// Me returns the caller's own record.
func (s *AuthService) Me(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
