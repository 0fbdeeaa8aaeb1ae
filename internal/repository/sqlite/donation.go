package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/repository"
)

var _ repository.DonationRepository = (*DonationDB)(nil)

// DonationDB persists donations and runs the multi-record lifecycle
// transitions.
type DonationDB struct {
	conn *sql.DB
}

const donationColumns = `id, food_id, donor_id, ngo_id, ngo_name, ngo_organization,
	pickup_time, notes, status, created_at, completed_at, cancelled_at`

// foodUnavailableMsg is the message for a claim on a missing or taken listing.
const foodUnavailableMsg = "Food not found or already claimed"

// Claim reserves a listing for an NGO.
//
// THE CONDITIONAL WRITE:
// The UPDATE only matches while is_available is still 1. Two NGOs racing for
// the same listing both reach this statement, but the single connection runs
// their transactions one after the other: the first flips the flag and
// inserts its donation, the second then matches zero rows and gets NotFound.
// The unique index on donations.food_id backs this up.
func (d *DonationDB) Claim(ctx context.Context, donation *model.Donation) error {
	now := time.Now().UTC()
	donation.ID = xid.New().String()
	donation.Status = model.StatusScheduled
	donation.CreatedAt = now

	return withTx(ctx, d.conn, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE food SET is_available = 0, updated_at = ?
			 WHERE id = ? AND is_available = 1`,
			now, donation.FoodID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: claiming food %s: %w", donation.FoodID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rows == 0 {
			return apperror.NotFoundMsg(foodUnavailableMsg)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT donor_id FROM food WHERE id = ?`, donation.FoodID,
		).Scan(&donation.DonorID); err != nil {
			return fmt.Errorf("sqlite: reading donor of food %s: %w", donation.FoodID, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO donations (id, food_id, donor_id, ngo_id, ngo_name, ngo_organization,
			 pickup_time, notes, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			donation.ID,
			donation.FoodID,
			donation.DonorID,
			donation.NgoID,
			donation.NgoName,
			donation.NgoOrganization,
			donation.PickupTime.UTC(),
			donation.Notes,
			string(donation.Status),
			donation.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.NotFoundMsg(foodUnavailableMsg)
			}
			return fmt.Errorf("sqlite: inserting donation: %w", err)
		}
		return nil
	})
}

func (d *DonationDB) GetByID(ctx context.Context, id string) (*model.Donation, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE id = ?`, id)

	donation, err := scanDonation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("donation", id)
		}
		return nil, fmt.Errorf("sqlite: getting donation %s: %w", id, err)
	}
	return donation, nil
}

// Complete finishes a scheduled donation and credits the donor. Both writes
// commit together or not at all.
func (d *DonationDB) Complete(ctx context.Context, id string, at time.Time, credits int) error {
	return withTx(ctx, d.conn, func(tx *sql.Tx) error {
		var donorID string
		if err := tx.QueryRowContext(ctx,
			`SELECT donor_id FROM donations WHERE id = ?`, id,
		).Scan(&donorID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("donation", id)
			}
			return fmt.Errorf("sqlite: reading donation %s: %w", id, err)
		}

		if err := transition(ctx, tx, id, model.StatusCompleted, "completed_at", at); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE users SET credits = credits + ?, total_donations = total_donations + 1,
			 updated_at = ? WHERE id = ?`,
			credits, at.UTC(), donorID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: crediting donor %s: %w", donorID, err)
		}
		return nil
	})
}

// Cancel moves a scheduled donation to cancelled. The listing is not
// touched: availability never goes back to true.
func (d *DonationDB) Cancel(ctx context.Context, id string, at time.Time) error {
	return withTx(ctx, d.conn, func(tx *sql.Tx) error {
		return transition(ctx, tx, id, model.StatusCancelled, "cancelled_at", at)
	})
}

// transition applies a status change guarded on the current status being
// scheduled. stampColumn is a fixed column name, never user input.
func transition(ctx context.Context, tx *sql.Tx, id string, to model.DonationStatus, stampColumn string, at time.Time) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE donations SET status = ?, `+stampColumn+` = ?
		 WHERE id = ? AND status = ?`,
		string(to), at.UTC(), id, string(model.StatusScheduled),
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting donation %s %s: %w", id, to, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.ConflictMsg("Donation is no longer scheduled")
	}
	return nil
}

func (d *DonationDB) ListByDonor(ctx context.Context, donorID string) ([]model.Donation, error) {
	return d.list(ctx, "donor_id", donorID)
}

func (d *DonationDB) ListByNgo(ctx context.Context, ngoID string) ([]model.Donation, error) {
	return d.list(ctx, "ngo_id", ngoID)
}

func (d *DonationDB) list(ctx context.Context, column, id string) ([]model.Donation, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE `+column+` = ?
		 ORDER BY created_at DESC, rowid DESC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing donations by %s: %w", column, err)
	}
	defer rows.Close()

	donations := make([]model.Donation, 0)
	for rows.Next() {
		donation, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning donation row: %w", err)
		}
		donations = append(donations, *donation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating donation rows: %w", err)
	}
	return donations, nil
}

func scanDonation(s scanner) (*model.Donation, error) {
	var (
		donation    model.Donation
		status      string
		completedAt sql.NullTime
		cancelledAt sql.NullTime
	)
	err := s.Scan(
		&donation.ID,
		&donation.FoodID,
		&donation.DonorID,
		&donation.NgoID,
		&donation.NgoName,
		&donation.NgoOrganization,
		&donation.PickupTime,
		&donation.Notes,
		&status,
		&donation.CreatedAt,
		&completedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	donation.Status = model.DonationStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		donation.CompletedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		donation.CancelledAt = &t
	}
	return &donation, nil
}
