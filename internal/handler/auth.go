package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/auth"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/service"
)

const oauthStateCookie = "oauth_state"

// AuthHandler serves registration, password login, the optional GitHub
// login flow and /me.
//
// DEPENDENCY CHAIN:
//   - accounts *service.AuthService  → registers users and issues JWTs
//   - github   *auth.GitHubProvider  → nil when GitHub login is not configured
//   - clientURL string               → where the GitHub callback sends the browser
type AuthHandler struct {
	accounts  *service.AuthService
	github    *auth.GitHubProvider
	clientURL string
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewAuthHandler(
	accounts *service.AuthService,
	github *auth.GitHubProvider,
	clientURL string,
	validate *validator.Validate,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		accounts:  accounts,
		github:    github,
		clientURL: strings.TrimRight(clientURL, "/"),
		validate:  validate,
		logger:    logger,
	}
}

type registerRequest struct {
	Name         string          `json:"name" validate:"required"`
	Email        string          `json:"email" validate:"required,email"`
	Password     string          `json:"password" validate:"required"`
	UserType     string          `json:"userType" validate:"required"`
	Phone        string          `json:"phone"`
	Address      string          `json:"address"`
	Organization string          `json:"organization"`
	IsAnonymous  bool            `json:"isAnonymous"`
	Location     *model.GeoPoint `json:"location"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func writeAuth(w http.ResponseWriter, status int, result *service.AuthResult) {
	writeJSON(w, status, map[string]any{
		"success": true,
		"token":   result.Token,
		"user":    result.User,
	})
}

// HandleRegister creates an account.
//
// HTTP: POST /api/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		Role:         req.UserType,
		Phone:        req.Phone,
		Address:      req.Address,
		Organization: req.Organization,
		IsAnonymous:  req.IsAnonymous,
		Location:     normalizePoint(req.Location),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeAuth(w, http.StatusCreated, result)
}

// HandleLogin exchanges email and password for a token.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeAuth(w, http.StatusOK, result)
}

// HandleMe returns the caller's account.
//
// HTTP: GET /api/auth/me and GET /api/users/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Me(r.Context(), principal(r).ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// HandleGitHubLogin redirects the browser to GitHub.
//
// HTTP: GET /api/auth/github/login?role=donor|ngo
//
// CSRF PROTECTION VIA STATE:
// A random state goes to GitHub and into a short-lived HttpOnly cookie; the
// callback only proceeds when the two match. The requested role rides in the
// same cookie because first-time GitHub users need one to create an account.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role != "" {
		if _, err := model.ParseRole(role); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state + "." + role,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /api/auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Find or create the account by email
//  4. Hand the JWT to the client: redirect to <clientURL>/oauth/callback with
//     the token in the fragment, or plain JSON when no client URL is set
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeError(w, r, h.logger, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}
	state, role, _ := strings.Cut(stateCookie.Value, ".")

	if r.URL.Query().Get("state") != state {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, r, h.logger, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		writeError(w, r, h.logger, apperror.Unauthenticated("GitHub authorization was denied"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, h.logger, apperror.ValidationFailed("code", "Missing OAuth code"))
		return
	}

	profile, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, r, h.logger, apperror.Unauthenticated("GitHub authentication failed"))
		return
	}

	result, err := h.accounts.LoginWithGitHub(r.Context(), profile, role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if h.clientURL == "" {
		writeAuth(w, http.StatusOK, result)
		return
	}
	fragment := url.Values{"token": {result.Token}}.Encode()
	http.Redirect(w, r, h.clientURL+"/oauth/callback#"+fragment, http.StatusSeeOther)
}
