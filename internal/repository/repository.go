// Package repository declares the storage contracts used by the service
// layer. The sqlite sub-package is the production implementation; service
// tests use hand-written fakes.
//
// Operations that must change more than one record atomically (claiming a
// listing, completing a donation, recording a rating) are single methods
// here so the implementation can run them inside one transaction.
package repository

import (
	"context"
	"time"

	"github.com/sakif/shareplate/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserOrder selects the sort key for ListByRole. Both orders are descending.
type UserOrder int

const (
	OrderByCreated UserOrder = iota
	OrderByCredits
	OrderByRating
)

type UserRepository interface {
	// Create fails with apperror.ErrConflict when the email is taken.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// Update writes the profile fields. Counters and the rating aggregate are
	// owned by the donation and rating operations and are not touched.
	Update(ctx context.Context, user *model.User) error
	ListByRole(ctx context.Context, role model.Role, order UserOrder, opts ListOptions) ([]model.User, error)
}

type FoodRepository interface {
	Create(ctx context.Context, listing *model.FoodListing) error
	GetByID(ctx context.Context, id string) (*model.FoodListing, error)
	// ListAvailable returns available listings, newest first.
	ListAvailable(ctx context.Context, filter model.FoodFilter) ([]model.FoodListing, error)
	// Update writes the editable fields. Availability and donor fields are
	// left alone.
	Update(ctx context.Context, listing *model.FoodListing) error
	MarkUnavailable(ctx context.Context, id string) error
}

type DonationRepository interface {
	// Claim flips the listing to unavailable and inserts the donation in one
	// transaction. It fills in donation.DonorID from the listing. When the
	// listing is missing or already unavailable nothing is written and the
	// error wraps apperror.ErrNotFound.
	Claim(ctx context.Context, donation *model.Donation) error
	GetByID(ctx context.Context, id string) (*model.Donation, error)
	// Complete marks a scheduled donation completed and credits its donor in
	// one transaction. A donation that is no longer scheduled yields
	// apperror.ErrConflict.
	Complete(ctx context.Context, id string, at time.Time, credits int) error
	Cancel(ctx context.Context, id string, at time.Time) error
	ListByDonor(ctx context.Context, donorID string) ([]model.Donation, error)
	ListByNgo(ctx context.Context, ngoID string) ([]model.Donation, error)
}

type RatingRepository interface {
	// Create inserts the rating and folds it into the donor's aggregate in
	// one transaction. A second rating for the same donation yields
	// apperror.ErrConflict.
	Create(ctx context.Context, rating *model.Rating) error
	ListByDonor(ctx context.Context, donorID string) ([]model.Rating, error)
}

type NotificationRepository interface {
	CreateMany(ctx context.Context, notifications []*model.Notification) error
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]model.Notification, error)
	// MarkRead only succeeds for the owner; otherwise apperror.ErrNotFound.
	MarkRead(ctx context.Context, id, userID string) (*model.Notification, error)
}
