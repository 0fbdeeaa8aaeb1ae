package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/repository"
)

// DefaultTopDonors is how many donors the leaderboard shows.
const DefaultTopDonors = 10

// ProfileUpdate carries the fields a user may change on their own account.
// Nil leaves the field alone.
type ProfileUpdate struct {
	Name         *string
	Phone        *string
	Address      *string
	Organization *string
	IsAnonymous  *bool
	Location     *model.GeoPoint
}

// UserService covers profiles and the public directories.
type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching %s: %w", userID, err)
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperror.ValidationFailed("name", "name cannot be empty")
		}
		user.Name = name
	}
	if in.Phone != nil {
		user.Phone = *in.Phone
	}
	if in.Address != nil {
		user.Address = *in.Address
	}
	if in.Organization != nil {
		user.Organization = *in.Organization
	}
	if in.IsAnonymous != nil {
		user.IsAnonymous = *in.IsAnonymous
	}
	if in.Location != nil {
		user.Location = *in.Location
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: updating %s: %w", userID, err)
	}
	s.logger.Info("profile updated", slog.String("user_id", userID))
	return user, nil
}

// TopDonors ranks donors by credits. Contact details are removed and
// anonymous donors are shown under the placeholder name.
func (s *UserService) TopDonors(ctx context.Context, limit int) ([]model.User, error) {
	if limit <= 0 {
		limit = DefaultTopDonors
	}
	donors, err := s.users.ListByRole(ctx, model.RoleDonor, repository.OrderByCredits, repository.ListOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("service/user: listing donors: %w", err)
	}
	for i := range donors {
		donors[i].Name = donors[i].DisplayName()
		donors[i].Email = ""
		donors[i].Phone = ""
	}
	return donors, nil
}

// ListNGOs returns every NGO, best rated first, without email addresses.
func (s *UserService) ListNGOs(ctx context.Context) ([]model.User, error) {
	ngos, err := s.users.ListByRole(ctx, model.RoleNGO, repository.OrderByRating, repository.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("service/user: listing ngos: %w", err)
	}
	for i := range ngos {
		ngos[i].Email = ""
	}
	return ngos, nil
}
