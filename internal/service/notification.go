package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/realtime"
	"github.com/sakif/shareplate/internal/repository"
)

// Messages carried by the relay events and stored on the notification rows.
const (
	MsgFoodAvailable     = "New food available for pickup!"
	MsgDonationAccepted  = "Your food donation has been accepted!"
	MsgDonationCompleted = "Your donation has been picked up!"
)

// Publisher is the slice of realtime.Broker the relay needs.
type Publisher interface {
	Publish(ctx context.Context, env realtime.Envelope) error
}

// Relay is what the food and donation services call after a committed write.
// NotificationService implements it; service tests use a recording fake.
type Relay interface {
	NewFoodListing(ctx context.Context, listing *model.FoodListing) error
	DonationConfirmed(ctx context.Context, donation *model.Donation, listing *model.FoodListing) error
	DonationCompleted(ctx context.Context, donation *model.Donation) error
}

// NotificationService persists a notification row per recipient and then
// pushes the matching event to whoever is connected.
//
// ORDER MATTERS:
// The row is written first. If the push fails the user still sees the
// notification on their next GET /api/notifications; if the write fails we
// don't push something the user can never find again.
type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	publisher     Publisher
	logger        *slog.Logger
}

var _ Relay = (*NotificationService)(nil)

func NewNotificationService(
	notifications repository.NotificationRepository,
	users repository.UserRepository,
	publisher Publisher,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		users:         users,
		publisher:     publisher,
		logger:        logger,
	}
}

// NewFoodListing tells every NGO about a new listing.
func (s *NotificationService) NewFoodListing(ctx context.Context, listing *model.FoodListing) error {
	ngos, err := s.users.ListByRole(ctx, model.RoleNGO, repository.OrderByCreated, repository.ListOptions{})
	if err != nil {
		return fmt.Errorf("service/notification: listing ngos: %w", err)
	}
	if len(ngos) == 0 {
		return nil
	}

	ids := make([]string, len(ngos))
	for i := range ngos {
		ids[i] = ngos[i].ID
	}

	data, _ := json.Marshal(map[string]string{"foodId": listing.ID})
	if err := s.persist(ctx, ids, model.NotifyFoodAvailable, MsgFoodAvailable, data); err != nil {
		return err
	}

	return s.publish(ctx, ids, realtime.EventFoodAvailable, map[string]any{
		"food":    listing,
		"message": MsgFoodAvailable,
	})
}

// DonationConfirmed tells the donor their listing was claimed.
func (s *NotificationService) DonationConfirmed(ctx context.Context, donation *model.Donation, listing *model.FoodListing) error {
	payload := map[string]string{"donationId": donation.ID, "foodId": donation.FoodID}
	if listing != nil {
		payload["foodTitle"] = listing.Title
	}
	data, _ := json.Marshal(payload)

	ids := []string{donation.DonorID}
	if err := s.persist(ctx, ids, model.NotifyDonationAccepted, MsgDonationAccepted, data); err != nil {
		return err
	}

	return s.publish(ctx, ids, realtime.EventDonationAccepted, map[string]any{
		"donation": donation,
		"message":  MsgDonationAccepted,
	})
}

// DonationCompleted tells the donor the food was picked up.
func (s *NotificationService) DonationCompleted(ctx context.Context, donation *model.Donation) error {
	data, _ := json.Marshal(map[string]string{"donationId": donation.ID})

	ids := []string{donation.DonorID}
	if err := s.persist(ctx, ids, model.NotifyDonationCompleted, MsgDonationCompleted, data); err != nil {
		return err
	}

	return s.publish(ctx, ids, realtime.EventDonationCompleted, map[string]any{
		"donation": donation,
		"message":  MsgDonationCompleted,
	})
}

// List returns the user's latest notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string) ([]model.Notification, error) {
	notifications, err := s.notifications.ListByUser(ctx, userID, repository.ListOptions{Limit: 20})
	if err != nil {
		return nil, fmt.Errorf("service/notification: listing for user %s: %w", userID, err)
	}
	return notifications, nil
}

// MarkRead flags one of the user's notifications as read. Someone else's
// notification is reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) (*model.Notification, error) {
	n, err := s.notifications.MarkRead(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("service/notification: marking %s read: %w", id, err)
	}
	return n, nil
}

func (s *NotificationService) persist(ctx context.Context, userIDs []string, kind model.NotificationType, message string, data json.RawMessage) error {
	rows := make([]*model.Notification, len(userIDs))
	for i, id := range userIDs {
		rows[i] = &model.Notification{UserID: id, Type: kind, Message: message, Data: data}
	}
	if err := s.notifications.CreateMany(ctx, rows); err != nil {
		return fmt.Errorf("service/notification: storing %s: %w", kind, err)
	}
	return nil
}

func (s *NotificationService) publish(ctx context.Context, userIDs []string, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("service/notification: encoding %s: %w", event, err)
	}
	if err := s.publisher.Publish(ctx, realtime.Envelope{UserIDs: userIDs, Event: event, Data: data}); err != nil {
		return fmt.Errorf("service/notification: %w", err)
	}

	s.logger.Debug("relay event published",
		slog.String("event", event),
		slog.Int("recipients", len(userIDs)),
	)
	return nil
}
