package model

import "time"

type DonationStatus string

const (
	StatusScheduled DonationStatus = "scheduled"
	StatusCompleted DonationStatus = "completed"
	StatusCancelled DonationStatus = "cancelled"
)

// CanTransition reports whether a donation may move from s to next.
// Only scheduled donations move, and both destinations are terminal.
func (s DonationStatus) CanTransition(next DonationStatus) bool {
	if s != StatusScheduled {
		return false
	}
	return next == StatusCompleted || next == StatusCancelled
}

// Donation records an NGO's claim on a listing. There is at most one per
// listing.
type Donation struct {
	ID              string         `json:"id"`
	FoodID          string         `json:"food"`
	DonorID         string         `json:"donor"`
	NgoID           string         `json:"ngo"`
	NgoName         string         `json:"ngoName"`
	NgoOrganization string         `json:"ngoOrganization,omitempty"`
	PickupTime      time.Time      `json:"pickupTime"`
	Notes           string         `json:"notes,omitempty"`
	Status          DonationStatus `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
	CancelledAt     *time.Time     `json:"cancelledAt,omitempty"`

	// FoodDetails is filled in by the donation service when listing
	// donations. It is not stored.
	FoodDetails *FoodListing `json:"foodDetails,omitempty"`
}
