package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/repository"
)

var _ repository.FoodRepository = (*FoodDB)(nil)

// FoodDB persists food listings.
type FoodDB struct {
	conn *sql.DB
}

const foodColumns = `id, title, description, food_type, quantity, fresh_until,
	pickup_instructions, lng, lat, location_address, images, donor_id,
	donor_name, donor_organization, is_anonymous_donor, is_available,
	created_at, updated_at`

func (f *FoodDB) Create(ctx context.Context, listing *model.FoodListing) error {
	now := time.Now().UTC()
	listing.ID = xid.New().String()
	listing.IsAvailable = true
	listing.CreatedAt = now
	listing.UpdatedAt = now
	if listing.Images == nil {
		listing.Images = []string{}
	}

	images, err := encodeImages(listing.Images)
	if err != nil {
		return fmt.Errorf("sqlite: encoding images: %w", err)
	}

	_, err = f.conn.ExecContext(ctx,
		`INSERT INTO food (`+foodColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		listing.ID,
		listing.Title,
		listing.Description,
		listing.FoodType,
		listing.Quantity,
		listing.FreshUntil.UTC(),
		listing.PickupInstructions,
		listing.Location.Lng(),
		listing.Location.Lat(),
		listing.Location.Address,
		images,
		listing.DonorID,
		listing.DonorName,
		listing.DonorOrganization,
		listing.IsAnonymousDonor,
		listing.IsAvailable,
		listing.CreatedAt,
		listing.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating food listing: %w", err)
	}
	return nil
}

func (f *FoodDB) GetByID(ctx context.Context, id string) (*model.FoodListing, error) {
	row := f.conn.QueryRowContext(ctx,
		`SELECT `+foodColumns+` FROM food WHERE id = ?`, id)

	listing, err := scanFood(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("food", id)
		}
		return nil, fmt.Errorf("sqlite: getting food %s: %w", id, err)
	}
	return listing, nil
}

// ListAvailable builds its WHERE clause from the non-zero filter fields.
// Values always go through placeholders; only the fixed column names are
// concatenated.
func (f *FoodDB) ListAvailable(ctx context.Context, filter model.FoodFilter) ([]model.FoodListing, error) {
	where := []string{"is_available = 1"}
	args := []any{}

	if filter.DonorID != "" {
		where = append(where, "donor_id = ?")
		args = append(args, filter.DonorID)
	}
	if filter.FoodType != "" {
		where = append(where, "food_type = ?")
		args = append(args, filter.FoodType)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := f.conn.QueryContext(ctx,
		`SELECT `+foodColumns+` FROM food
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing food: %w", err)
	}
	defer rows.Close()

	listings := make([]model.FoodListing, 0)
	for rows.Next() {
		listing, err := scanFood(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning food row: %w", err)
		}
		listings = append(listings, *listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating food rows: %w", err)
	}
	return listings, nil
}

func (f *FoodDB) Update(ctx context.Context, listing *model.FoodListing) error {
	listing.UpdatedAt = time.Now().UTC()

	images, err := encodeImages(listing.Images)
	if err != nil {
		return fmt.Errorf("sqlite: encoding images: %w", err)
	}

	result, err := f.conn.ExecContext(ctx,
		`UPDATE food SET title = ?, description = ?, food_type = ?, quantity = ?,
		 fresh_until = ?, pickup_instructions = ?, lng = ?, lat = ?,
		 location_address = ?, images = ?, updated_at = ?
		 WHERE id = ?`,
		listing.Title,
		listing.Description,
		listing.FoodType,
		listing.Quantity,
		listing.FreshUntil.UTC(),
		listing.PickupInstructions,
		listing.Location.Lng(),
		listing.Location.Lat(),
		listing.Location.Address,
		images,
		listing.UpdatedAt,
		listing.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating food %s: %w", listing.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("food", listing.ID)
	}
	return nil
}

// MarkUnavailable is idempotent: withdrawing an already unavailable listing
// succeeds without changing it.
func (f *FoodDB) MarkUnavailable(ctx context.Context, id string) error {
	result, err := f.conn.ExecContext(ctx,
		`UPDATE food SET is_available = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking food %s unavailable: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("food", id)
	}
	return nil
}

func scanFood(s scanner) (*model.FoodListing, error) {
	var (
		listing  model.FoodListing
		lng, lat float64
		images   string
	)
	err := s.Scan(
		&listing.ID,
		&listing.Title,
		&listing.Description,
		&listing.FoodType,
		&listing.Quantity,
		&listing.FreshUntil,
		&listing.PickupInstructions,
		&lng,
		&lat,
		&listing.Location.Address,
		&images,
		&listing.DonorID,
		&listing.DonorName,
		&listing.DonorOrganization,
		&listing.IsAnonymousDonor,
		&listing.IsAvailable,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	listing.Location.Type = "Point"
	listing.Location.Coordinates = [2]float64{lng, lat}
	if listing.Images, err = decodeImages(images); err != nil {
		return nil, fmt.Errorf("decoding images: %w", err)
	}
	return &listing, nil
}
