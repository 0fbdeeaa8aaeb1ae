package model

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotifyFoodAvailable     NotificationType = "food_available"
	NotifyDonationAccepted  NotificationType = "donation_accepted"
	NotifyDonationCompleted NotificationType = "donation_completed"
)

// Notification is the persisted record of a relay event for one user.
// Data is opaque JSON, typically {"foodId": ...} or {"donationId": ...}.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	Data      json.RawMessage  `json:"data,omitempty"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}
