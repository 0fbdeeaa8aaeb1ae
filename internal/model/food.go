package model

import "time"

// FoodListing is a donor's offer of surplus food.
//
// IsAvailable starts true and flips to false exactly once, either when an
// NGO claims the listing or when the donor withdraws it. It never flips back.
//
// DonorName, DonorOrganization and IsAnonymousDonor are copied from the donor
// when the listing is created so that list queries don't need a join.
type FoodListing struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	FoodType           string    `json:"foodType"`
	Quantity           string    `json:"quantity"`
	FreshUntil         time.Time `json:"freshUntil"`
	PickupInstructions string    `json:"pickupInstructions,omitempty"`
	Location           GeoPoint  `json:"location"`
	Images             []string  `json:"images"`
	DonorID            string    `json:"donor"`
	DonorName          string    `json:"donorName"`
	DonorOrganization  string    `json:"donorOrganization,omitempty"`
	IsAnonymousDonor   bool      `json:"isAnonymousDonor"`
	IsAvailable        bool      `json:"isAvailable"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// FoodFilter narrows a listing query. Zero values mean "no filter".
// Only available listings are ever returned.
type FoodFilter struct {
	DonorID  string
	FoodType string
	Limit    int
}
