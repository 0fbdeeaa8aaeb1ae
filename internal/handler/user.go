package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/service"
)

type UserHandler struct {
	users    *service.UserService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewUserHandler(users *service.UserService, validate *validator.Validate, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, validate: validate, logger: logger}
}

// Pointers distinguish "not sent" from "set to empty".
type updateProfileRequest struct {
	Name         *string         `json:"name"`
	Phone        *string         `json:"phone"`
	Address      *string         `json:"address"`
	Organization *string         `json:"organization"`
	IsAnonymous  *bool           `json:"isAnonymous"`
	Location     *model.GeoPoint `json:"location"`
}

// HandleUpdateMe changes the caller's profile.
//
// HTTP: PUT /api/users/me
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), principal(r).ID, service.ProfileUpdate{
		Name:         req.Name,
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
	writeData(w, http.StatusOK, user)
}

// HandleTopDonors is the public leaderboard.
//
// HTTP: GET /api/users/donors?limit=10
func (h *UserHandler) HandleTopDonors(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, h.logger, apperror.ValidationFailed("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	donors, err := h.users.TopDonors(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeList(w, donors)
}

// HandleListNGOs is the public NGO directory.
//
// HTTP: GET /api/users/ngos
func (h *UserHandler) HandleListNGOs(w http.ResponseWriter, r *http.Request) {
	ngos, err := h.users.ListNGOs(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeList(w, ngos)
}
