package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/repository"
)

// CreditsPerDonation is what a donor earns for each completed pickup.
const CreditsPerDonation = 10

// ClaimInput is an NGO's request to pick up a listing.
type ClaimInput struct {
	FoodID     string
	PickupTime time.Time
	Notes      string
}

// DonationService runs the claim → complete/cancel lifecycle.
//
// The store methods it calls are each one transaction; this layer adds the
// ownership checks and the notifications that follow a commit.
type DonationService struct {
	donations repository.DonationRepository
	food      repository.FoodRepository
	relay     Relay
	logger    *slog.Logger
	now       func() time.Time
}

func NewDonationService(donations repository.DonationRepository, food repository.FoodRepository, relay Relay, logger *slog.Logger) *DonationService {
	return &DonationService{
		donations: donations,
		food:      food,
		relay:     relay,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Claim reserves a listing for ngo. The pickup time is not checked against
// the listing's freshUntil.
func (s *DonationService) Claim(ctx context.Context, ngo *model.User, in ClaimInput) (*model.Donation, error) {
	if strings.TrimSpace(in.FoodID) == "" {
		return nil, apperror.ValidationFailed("foodId", "foodId is required")
	}
	if in.PickupTime.IsZero() {
		return nil, apperror.ValidationFailed("pickupTime", "pickupTime is required")
	}

	donation := &model.Donation{
		FoodID:          in.FoodID,
		NgoID:           ngo.ID,
		NgoName:         ngo.Name,
		NgoOrganization: ngo.Organization,
		PickupTime:      in.PickupTime.UTC(),
		Notes:           in.Notes,
	}
	if err := s.donations.Claim(ctx, donation); err != nil {
		return nil, fmt.Errorf("service/donation: claiming food %s: %w", in.FoodID, err)
	}

	s.logger.Info("food claimed",
		slog.String("donation_id", donation.ID),
		slog.String("food_id", donation.FoodID),
		slog.String("ngo_id", ngo.ID),
	)

	// The claim is committed; everything below is best effort.
	ctx = context.WithoutCancel(ctx)
	listing, err := s.food.GetByID(ctx, donation.FoodID)
	if err != nil {
		s.logger.Warn("loading claimed listing failed",
			slog.String("food_id", donation.FoodID),
			slog.String("error", err.Error()),
		)
		listing = nil
	}
	if err := s.relay.DonationConfirmed(ctx, donation, listing); err != nil {
		s.logger.Error("notifying donor of claim failed",
			slog.String("donation_id", donation.ID),
			slog.String("error", err.Error()),
		)
	}
	return donation, nil
}

// Complete records the pickup and credits the donor.
func (s *DonationService) Complete(ctx context.Context, ngo *model.User, id string) (*model.Donation, error) {
	donation, err := s.claimedBy(ctx, ngo, id, "complete")
	if err != nil {
		return nil, err
	}

	at := s.now()
	if err := s.donations.Complete(ctx, id, at, CreditsPerDonation); err != nil {
		return nil, fmt.Errorf("service/donation: completing %s: %w", id, err)
	}
	donation.Status = model.StatusCompleted
	donation.CompletedAt = &at

	s.logger.Info("donation completed",
		slog.String("donation_id", id),
		slog.String("donor_id", donation.DonorID),
		slog.Int("credits", CreditsPerDonation),
	)

	if err := s.relay.DonationCompleted(context.WithoutCancel(ctx), donation); err != nil {
		s.logger.Error("notifying donor of pickup failed",
			slog.String("donation_id", id),
			slog.String("error", err.Error()),
		)
	}
	return donation, nil
}

// Cancel ends a scheduled donation without a pickup. The listing is not put
// back on the feed.
func (s *DonationService) Cancel(ctx context.Context, ngo *model.User, id string) (*model.Donation, error) {
	donation, err := s.claimedBy(ctx, ngo, id, "cancel")
	if err != nil {
		return nil, err
	}

	at := s.now()
	if err := s.donations.Cancel(ctx, id, at); err != nil {
		return nil, fmt.Errorf("service/donation: cancelling %s: %w", id, err)
	}
	donation.Status = model.StatusCancelled
	donation.CancelledAt = &at

	s.logger.Info("donation cancelled", slog.String("donation_id", id))
	return donation, nil
}

// ListForDonor returns the donor's donations with their listing attached.
func (s *DonationService) ListForDonor(ctx context.Context, donorID string) ([]model.Donation, error) {
	donations, err := s.donations.ListByDonor(ctx, donorID)
	if err != nil {
		return nil, fmt.Errorf("service/donation: listing for donor %s: %w", donorID, err)
	}
	return s.withFood(ctx, donations)
}

// ListForNgo returns the NGO's claims with their listing attached.
func (s *DonationService) ListForNgo(ctx context.Context, ngoID string) ([]model.Donation, error) {
	donations, err := s.donations.ListByNgo(ctx, ngoID)
	if err != nil {
		return nil, fmt.Errorf("service/donation: listing for ngo %s: %w", ngoID, err)
	}
	return s.withFood(ctx, donations)
}

func (s *DonationService) claimedBy(ctx context.Context, ngo *model.User, id, action string) (*model.Donation, error) {
	donation, err := s.donations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/donation: fetching %s: %w", id, err)
	}
	if donation.NgoID != ngo.ID {
		return nil, apperror.Forbidden("Not authorized to " + action + " this donation")
	}
	if donation.Status != model.StatusScheduled {
		return nil, apperror.ConflictMsg("Donation is no longer scheduled")
	}
	return donation, nil
}

// withFood attaches each row's listing. A listing that can't be found leaves
// the row as is.
func (s *DonationService) withFood(ctx context.Context, donations []model.Donation) ([]model.Donation, error) {
	for i := range donations {
		listing, err := s.food.GetByID(ctx, donations[i].FoodID)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("service/donation: loading food %s: %w", donations[i].FoodID, err)
		}
		donations[i].FoodDetails = listing
	}
	return donations, nil
}
