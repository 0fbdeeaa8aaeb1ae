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

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB persists accounts.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, name, email, password_hash, role, phone, address, organization,
	is_anonymous, lng, lat, location_address, credits, total_donations,
	rating, rating_count, rating_sum, created_at, updated_at`

// Create inserts a new user. The email is normalized first so uniqueness is
// case-insensitive.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = model.NormalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Location.Type == "" {
		user.Location.Type = "Point"
	}

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.Phone,
		user.Address,
		user.Organization,
		user.IsAnonymous,
		user.Location.Lng(),
		user.Location.Lat(),
		user.Location.Address,
		user.Credits,
		user.TotalDonations,
		user.Rating,
		user.RatingCount,
		user.RatingSum,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMsg("Email already registered")
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}
	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return user, nil
}

// Update writes profile fields only. credits, total_donations and the
// rating columns are changed by DonationDB.Complete and RatingDB.Create
// inside their own transactions; writing them here would race with those.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := u.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, phone = ?, address = ?, organization = ?,
		 is_anonymous = ?, lng = ?, lat = ?, location_address = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Phone,
		user.Address,
		user.Organization,
		user.IsAnonymous,
		user.Location.Lng(),
		user.Location.Lat(),
		user.Location.Address,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// ListByRole returns users of one role sorted descending by the chosen key.
// A zero Limit returns every match.
func (u *UserDB) ListByRole(ctx context.Context, role model.Role, order repository.UserOrder, opts repository.ListOptions) ([]model.User, error) {
	orderBy := "created_at DESC"
	switch order {
	case repository.OrderByCredits:
		orderBy = "credits DESC, created_at ASC"
	case repository.OrderByRating:
		orderBy = "rating DESC, created_at ASC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	offset := max(opts.Offset, 0)

	rows, err := u.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = ?
		 ORDER BY `+orderBy+` LIMIT ? OFFSET ?`,
		string(role), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s users: %w", role, err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}
	return users, nil
}

func scanUser(s scanner) (*model.User, error) {
	var (
		user     model.User
		role     string
		lng, lat float64
	)
	err := s.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.Phone,
		&user.Address,
		&user.Organization,
		&user.IsAnonymous,
		&lng,
		&lat,
		&user.Location.Address,
		&user.Credits,
		&user.TotalDonations,
		&user.Rating,
		&user.RatingCount,
		&user.RatingSum,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	user.Location.Type = "Point"
	user.Location.Coordinates = [2]float64{lng, lat}
	return &user, nil
}
