// Package geo provides great-circle distance helpers for proximity filters.
// Listings are scanned linearly; there is no spatial index.
package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
)

const earthRadiusKm = 6371

// DistanceKm returns the Haversine distance between two lat/lng pairs.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Radius is a circular search area.
type Radius struct {
	Lat, Lng float64
	Km       float64
}

// Contains reports whether p lies within the radius (inclusive).
func (r Radius) Contains(p model.GeoPoint) bool {
	return DistanceKm(r.Lat, r.Lng, p.Lat(), p.Lng()) <= r.Km
}

// Valid reports whether the center is a real coordinate and the distance is
// non-negative.
func (r Radius) Valid() bool {
	return r.Lat >= -90 && r.Lat <= 90 && r.Lng >= -180 && r.Lng <= 180 && r.Km >= 0
}

// ParseRadius reads the lat, lng and distance (km) query parameters. It
// returns nil when all three are empty. Supplying only some of them, or a
// value that is not a number, is a validation error.
func ParseRadius(lat, lng, distance string) (*Radius, error) {
	lat, lng, distance = strings.TrimSpace(lat), strings.TrimSpace(lng), strings.TrimSpace(distance)
	if lat == "" && lng == "" && distance == "" {
		return nil, nil
	}
	if lat == "" || lng == "" || distance == "" {
		return nil, apperror.ValidationFailed("distance", "lat, lng and distance must be given together")
	}

	var r Radius
	var err error
	if r.Lat, err = strconv.ParseFloat(lat, 64); err != nil {
		return nil, apperror.ValidationFailed("lat", "lat must be a number")
	}
	if r.Lng, err = strconv.ParseFloat(lng, 64); err != nil {
		return nil, apperror.ValidationFailed("lng", "lng must be a number")
	}
	if r.Km, err = strconv.ParseFloat(distance, 64); err != nil {
		return nil, apperror.ValidationFailed("distance", "distance must be a number")
	}
	if !r.Valid() {
		return nil, apperror.ValidationFailed("distance", "lat/lng out of range or negative distance")
	}
	return &r, nil
}
