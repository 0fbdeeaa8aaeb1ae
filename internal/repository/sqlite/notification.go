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

var _ repository.NotificationRepository = (*NotificationDB)(nil)

type NotificationDB struct {
	conn *sql.DB
}

const notificationColumns = `id, user_id, type, message, data, is_read, created_at`

// CreateMany inserts a batch in one transaction. A "new listing" event fans
// out to every NGO, so batching keeps that to a single commit.
func (n *NotificationDB) CreateMany(ctx context.Context, notifications []*model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	now := time.Now().UTC()
	return withTx(ctx, n.conn, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("sqlite: preparing notification insert: %w", err)
		}
		defer stmt.Close()

		for _, notif := range notifications {
			notif.ID = xid.New().String()
			notif.CreatedAt = now
			data := string(notif.Data)
			if data == "" {
				data = "{}"
			}

			if _, err := stmt.ExecContext(ctx,
				notif.ID,
				notif.UserID,
				string(notif.Type),
				notif.Message,
				data,
				notif.IsRead,
				notif.CreatedAt,
			); err != nil {
				return fmt.Errorf("sqlite: inserting notification for %s: %w", notif.UserID, err)
			}
		}
		return nil
	})
}

func (n *NotificationDB) ListByUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Notification, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(opts.Offset, 0)

	rows, err := n.conn.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	notifications := make([]model.Notification, 0, limit)
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification row: %w", err)
		}
		notifications = append(notifications, *notif)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating notification rows: %w", err)
	}
	return notifications, nil
}

// MarkRead flags a notification as read. Matching on both id and user_id
// means another user's notification looks exactly like a missing one.
func (n *NotificationDB) MarkRead(ctx context.Context, id, userID string) (*model.Notification, error) {
	var notif *model.Notification
	err := withTx(ctx, n.conn, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`,
			id, userID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: marking notification %s read: %w", id, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rows == 0 {
			return apperror.NotFound("notification", id)
		}

		notif, err = scanNotification(tx.QueryRowContext(ctx,
			`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("notification", id)
			}
			return fmt.Errorf("sqlite: reading notification %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notif, nil
}

func scanNotification(s scanner) (*model.Notification, error) {
	var (
		notif model.Notification
		typ   string
		data  string
	)
	err := s.Scan(
		&notif.ID,
		&notif.UserID,
		&typ,
		&notif.Message,
		&data,
		&notif.IsRead,
		&notif.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	notif.Type = model.NotificationType(typ)
	notif.Data = []byte(data)
	return &notif, nil
}
