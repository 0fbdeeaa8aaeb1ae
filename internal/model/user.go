// Package model defines the data structures used throughout the application.
// Structs here are plain data: the repository layer persists them and the
// handler layer serializes them with their json tags.
package model

import (
	"strings"
	"time"

	"github.com/sakif/shareplate/internal/apperror"
)

// Role is the closed set of account kinds. Every authorization decision
// switches over it, so unknown strings are rejected at the edge by ParseRole.
type Role string

const (
	RoleDonor Role = "donor"
	RoleNGO   Role = "ngo"
)

// ParseRole converts wire input into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleDonor:
		return RoleDonor, nil
	case RoleNGO:
		return RoleNGO, nil
	}
	return "", apperror.ValidationFailed("userType", "userType must be either donor or ngo")
}

func (r Role) Valid() bool {
	return r == RoleDonor || r == RoleNGO
}

// AnonymousDonorName is shown in place of the real name of donors who opted
// out of public attribution.
const AnonymousDonorName = "Anonymous Donor"

// GeoPoint is a GeoJSON-style point. Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address,omitempty"`
}

// DefaultLocation is assigned to accounts that register without one.
func DefaultLocation() GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{78.9629, 20.5937}}
}

// NewPoint builds a GeoPoint from latitude/longitude order, which is how
// humans and query strings usually give them.
func NewPoint(lat, lng float64, address string) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{lng, lat}, Address: address}
}

func (p GeoPoint) Lng() float64 { return p.Coordinates[0] }
func (p GeoPoint) Lat() float64 { return p.Coordinates[1] }

// User is a registered account, donor or NGO.
//
// PasswordHash is never serialized. Accounts created through GitHub login
// have an empty hash and cannot use password login until they set one.
//
// Rating is the running average of all ratings received; RatingSum is kept
// alongside it so the average can be maintained incrementally and always
// equals RatingSum / RatingCount.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	PasswordHash   string    `json:"-"`
	Role           Role      `json:"userType"`
	Phone          string    `json:"phone,omitempty"`
	Address        string    `json:"address,omitempty"`
	Organization   string    `json:"organization,omitempty"`
	IsAnonymous    bool      `json:"isAnonymous"`
	Location       GeoPoint  `json:"location"`
	Credits        int       `json:"credits"`
	TotalDonations int       `json:"totalDonations"`
	Rating         float64   `json:"rating"`
	RatingCount    int       `json:"ratingCount"`
	RatingSum      int       `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// DisplayName is the name other users see.
func (u *User) DisplayName() string {
	if u.Role == RoleDonor && u.IsAnonymous {
		return AnonymousDonorName
	}
	return u.Name
}

// NormalizeEmail lowercases and trims an address so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
