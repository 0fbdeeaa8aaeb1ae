package model

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Rating is an NGO's score for a completed donation. One per donation.
type Rating struct {
	ID         string    `json:"id"`
	DonationID string    `json:"donation"`
	DonorID    string    `json:"donor"`
	NgoID      string    `json:"ngo"`
	Score      int       `json:"rating"`
	Review     string    `json:"review,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
