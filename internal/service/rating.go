package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/repository"
)

// RatingInput is an NGO's review of a completed donation.
type RatingInput struct {
	DonationID string
	Score      int
	Review     string
}

// DonorRatings is the public view of a donor's reviews.
type DonorRatings struct {
	Ratings       []model.Rating `json:"ratings"`
	Count         int            `json:"count"`
	AverageRating string         `json:"averageRating"`
}

type RatingService struct {
	ratings   repository.RatingRepository
	donations repository.DonationRepository
	users     repository.UserRepository
	logger    *slog.Logger
}

func NewRatingService(ratings repository.RatingRepository, donations repository.DonationRepository, users repository.UserRepository, logger *slog.Logger) *RatingService {
	return &RatingService{ratings: ratings, donations: donations, users: users, logger: logger}
}

const donationNotRatable = "Donation not found or not completed"

// Create records ngo's rating of one of its completed donations. Each
// donation can be rated once.
func (s *RatingService) Create(ctx context.Context, ngo *model.User, in RatingInput) (*model.Rating, error) {
	if strings.TrimSpace(in.DonationID) == "" {
		return nil, apperror.ValidationFailed("donationId", "donationId is required")
	}
	if in.Score < model.MinRating || in.Score > model.MaxRating {
		return nil, apperror.ValidationFailed("rating", fmt.Sprintf("rating must be between %d and %d", model.MinRating, model.MaxRating))
	}

	donation, err := s.donations.GetByID(ctx, in.DonationID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFoundMsg(donationNotRatable)
	}
	if err != nil {
		return nil, fmt.Errorf("service/rating: fetching donation %s: %w", in.DonationID, err)
	}
	// Someone else's donation looks the same as a missing one.
	if donation.NgoID != ngo.ID || donation.Status != model.StatusCompleted {
		return nil, apperror.NotFoundMsg(donationNotRatable)
	}

	rating := &model.Rating{
		DonationID: donation.ID,
		DonorID:    donation.DonorID,
		NgoID:      ngo.ID,
		Score:      in.Score,
		Review:     strings.TrimSpace(in.Review),
	}
	if err := s.ratings.Create(ctx, rating); err != nil {
		return nil, fmt.Errorf("service/rating: storing rating: %w", err)
	}

	s.logger.Info("donation rated",
		slog.String("donation_id", donation.ID),
		slog.String("donor_id", donation.DonorID),
		slog.Int("score", in.Score),
	)
	return rating, nil
}

// GetForDonor lists the donor's ratings, newest first. The average comes
// from the aggregate kept on the donor, formatted to one decimal. An unknown
// donor has no ratings, so the summary is empty rather than an error.
func (s *RatingService) GetForDonor(ctx context.Context, donorID string) (*DonorRatings, error) {
	donor, err := s.users.GetByID(ctx, donorID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/rating: fetching donor %s: %w", donorID, err)
	}

	ratings, err := s.ratings.ListByDonor(ctx, donorID)
	if err != nil {
		return nil, fmt.Errorf("service/rating: listing for donor %s: %w", donorID, err)
	}

	average := 0.0
	if donor != nil && donor.RatingCount > 0 {
		average = donor.Rating
	}
	return &DonorRatings{
		Ratings:       ratings,
		Count:         len(ratings),
		AverageRating: fmt.Sprintf("%.1f", average),
	}, nil
}
