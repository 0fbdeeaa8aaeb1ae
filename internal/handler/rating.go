package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/service"
)

type RatingHandler struct {
	ratings  *service.RatingService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewRatingHandler(ratings *service.RatingService, validate *validator.Validate, logger *slog.Logger) *RatingHandler {
	return &RatingHandler{ratings: ratings, validate: validate, logger: logger}
}

type ratingRequest struct {
	DonationID string `json:"donationId" validate:"required"`
	Rating     int    `json:"rating" validate:"required"`
	Review     string `json:"review"`
}

// HandleCreate rates a completed donation.
//
// HTTP: POST /api/ratings
func (h *RatingHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	rating, err := h.ratings.Create(r.Context(), principal(r), service.RatingInput{
		DonationID: req.DonationID,
		Score:      req.Rating,
		Review:     req.Review,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, rating)
}

// HandleGetForDonor lists a donor's ratings with the average.
//
// HTTP: GET /api/ratings/donor/{donorId}
func (h *RatingHandler) HandleGetForDonor(w http.ResponseWriter, r *http.Request) {
	result, err := h.ratings.GetForDonor(r.Context(), chi.URLParam(r, "donorId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ratings := result.Ratings
	if ratings == nil {
		ratings = []model.Rating{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"count":         result.Count,
		"averageRating": result.AverageRating,
		"data":          ratings,
	})
}
