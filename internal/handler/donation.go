package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/shareplate/internal/service"
)

type DonationHandler struct {
	donations *service.DonationService
	food      *service.FoodService
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewDonationHandler(donations *service.DonationService, food *service.FoodService, validate *validator.Validate, logger *slog.Logger) *DonationHandler {
	return &DonationHandler{donations: donations, food: food, validate: validate, logger: logger}
}

// PickupTime stays a string so datetime-local values decode; parseTime
// reads it after validation.
type claimRequest struct {
	FoodID     string `json:"foodId" validate:"required"`
	PickupTime string `json:"pickupTime" validate:"required"`
	Notes      string `json:"notes"`
}

// HandleClaim reserves a listing for the calling NGO. The response carries
// the listing as foodDetails.
//
// HTTP: POST /api/donations
func (h *DonationHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	pickupTime, err := parseTime("pickupTime", req.PickupTime)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	donation, err := h.donations.Claim(r.Context(), principal(r), service.ClaimInput{
		FoodID:     req.FoodID,
		PickupTime: pickupTime,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if listing, err := h.food.Get(r.Context(), donation.FoodID); err == nil {
		donation.FoodDetails = listing
	}
	writeData(w, http.StatusCreated, donation)
}

// HandleComplete marks the pickup done and credits the donor.
//
// HTTP: PUT /api/donations/{id}/complete
func (h *DonationHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	donation, err := h.donations.Complete(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, donation)
}

// HandleCancel drops a scheduled pickup.
//
// HTTP: PUT /api/donations/{id}/cancel
func (h *DonationHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	donation, err := h.donations.Cancel(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, donation)
}

// HTTP: GET /api/donations/donor
func (h *DonationHandler) HandleListForDonor(w http.ResponseWriter, r *http.Request) {
	donations, err := h.donations.ListForDonor(r.Context(), principal(r).ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeList(w, donations)
}

// HTTP: GET /api/donations/ngo
func (h *DonationHandler) HandleListForNgo(w http.ResponseWriter, r *http.Request) {
	donations, err := h.donations.ListForNgo(r.Context(), principal(r).ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeList(w, donations)
}
