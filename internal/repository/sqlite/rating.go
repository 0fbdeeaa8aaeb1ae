package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/repository"
)

var _ repository.RatingRepository = (*RatingDB)(nil)

type RatingDB struct {
	conn *sql.DB
}

const ratingColumns = `id, donation_id, donor_id, ngo_id, score, review, created_at`

// Create stores the rating and updates the donor aggregate.
//
// The aggregate is kept as (rating_sum, rating_count) with rating derived
// from them in the same statement. SQLite evaluates every right-hand side
// against the row as it was before the UPDATE, so the new average uses the
// old sum and count plus this score.
func (r *RatingDB) Create(ctx context.Context, rating *model.Rating) error {
	rating.ID = xid.New().String()
	rating.CreatedAt = time.Now().UTC()

	return withTx(ctx, r.conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ratings (`+ratingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rating.ID,
			rating.DonationID,
			rating.DonorID,
			rating.NgoID,
			rating.Score,
			rating.Review,
			rating.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.ConflictMsg("You have already rated this donation")
			}
			return fmt.Errorf("sqlite: inserting rating: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE users SET
			   rating_sum   = rating_sum + ?,
			   rating_count = rating_count + 1,
			   rating       = CAST(rating_sum + ? AS REAL) / (rating_count + 1),
			   updated_at   = ?
			 WHERE id = ?`,
			rating.Score, rating.Score, rating.CreatedAt, rating.DonorID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating rating aggregate for %s: %w", rating.DonorID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rows == 0 {
			return apperror.NotFound("user", rating.DonorID)
		}
		return nil
	})
}

func (r *RatingDB) ListByDonor(ctx context.Context, donorID string) ([]model.Rating, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+ratingColumns+` FROM ratings WHERE donor_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		donorID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing ratings for %s: %w", donorID, err)
	}
	defer rows.Close()

	ratings := make([]model.Rating, 0)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning rating row: %w", err)
		}
		ratings = append(ratings, *rating)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating rating rows: %w", err)
	}
	return ratings, nil
}

func scanRating(s scanner) (*model.Rating, error) {
	var rating model.Rating
	err := s.Scan(
		&rating.ID,
		&rating.DonationID,
		&rating.DonorID,
		&rating.NgoID,
		&rating.Score,
		&rating.Review,
		&rating.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rating, nil
}
