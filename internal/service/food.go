package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/geo"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/repository"
	"github.com/sakif/shareplate/internal/storage"
)

// ImageFile is an uploaded image. Content must be seekable because the first
// bytes are read for content sniffing before the whole file is stored.
type ImageFile struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

// FoodInput holds the fields of a new listing. Location is optional and
// falls back to the donor's own location.
type FoodInput struct {
	Title              string
	Description        string
	FoodType           string
	Quantity           string
	FreshUntil         time.Time
	PickupInstructions string
	Location           *model.GeoPoint
}

// FoodUpdate holds the fields a donor may change. Nil means "keep".
type FoodUpdate struct {
	Title              *string
	Description        *string
	FoodType           *string
	Quantity           *string
	FreshUntil         *time.Time
	PickupInstructions *string
	Location           *model.GeoPoint
}

// FoodQuery filters the public listing feed.
type FoodQuery struct {
	DonorID  string
	FoodType string
	Limit    int
	Near     *geo.Radius
}

// FoodService owns food listings: creation with images, the public feed,
// owner edits and withdrawal.
type FoodService struct {
	food   repository.FoodRepository
	images storage.Store
	relay  Relay
	logger *slog.Logger
}

func NewFoodService(food repository.FoodRepository, images storage.Store, relay Relay, logger *slog.Logger) *FoodService {
	return &FoodService{food: food, images: images, relay: relay, logger: logger}
}

// Create stores a new, available listing for donor and announces it to the
// NGOs. A failed announcement is logged; the listing stays.
func (s *FoodService) Create(ctx context.Context, donor *model.User, in FoodInput, files []ImageFile) (*model.FoodListing, error) {
	required := []struct{ field, value string }{
		{"title", in.Title},
		{"description", in.Description},
		{"foodType", in.FoodType},
		{"quantity", in.Quantity},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, apperror.ValidationFailed(r.field, r.field+" is required")
		}
	}
	if in.FreshUntil.IsZero() {
		return nil, apperror.ValidationFailed("freshUntil", "freshUntil is required")
	}

	images, err := s.saveImages(ctx, files)
	if err != nil {
		return nil, err
	}

	location := donor.Location
	if in.Location != nil {
		location = *in.Location
	}

	listing := &model.FoodListing{
		Title:              strings.TrimSpace(in.Title),
		Description:        strings.TrimSpace(in.Description),
		FoodType:           strings.TrimSpace(in.FoodType),
		Quantity:           strings.TrimSpace(in.Quantity),
		FreshUntil:         in.FreshUntil.UTC(),
		PickupInstructions: in.PickupInstructions,
		Location:           location,
		Images:             images,
		DonorID:            donor.ID,
		DonorName:          donor.DisplayName(),
		DonorOrganization:  donor.Organization,
		IsAnonymousDonor:   donor.IsAnonymous,
	}
	if err := s.food.Create(ctx, listing); err != nil {
		return nil, fmt.Errorf("service/food: creating listing: %w", err)
	}

	s.logger.Info("food listed",
		slog.String("food_id", listing.ID),
		slog.String("donor_id", donor.ID),
		slog.Int("images", len(images)),
	)

	if err := s.relay.NewFoodListing(context.WithoutCancel(ctx), listing); err != nil {
		s.logger.Error("announcing new listing failed",
			slog.String("food_id", listing.ID),
			slog.String("error", err.Error()),
		)
	}
	return listing, nil
}

func (s *FoodService) Get(ctx context.Context, id string) (*model.FoodListing, error) {
	listing, err := s.food.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/food: fetching %s: %w", id, err)
	}
	return listing, nil
}

// List returns available listings, newest first.
//
// The proximity filter runs here, after the store query, so the store's
// LIMIT can't be used when Near is set: the limit is applied to what
// survives the distance check instead.
func (s *FoodService) List(ctx context.Context, q FoodQuery) ([]model.FoodListing, error) {
	filter := model.FoodFilter{DonorID: q.DonorID, FoodType: q.FoodType, Limit: q.Limit}
	if q.Near != nil {
		filter.Limit = 0
	}

	listings, err := s.food.ListAvailable(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service/food: listing: %w", err)
	}
	if q.Near == nil {
		return listings, nil
	}

	nearby := make([]model.FoodListing, 0, len(listings))
	for _, l := range listings {
		if q.Near.Contains(l.Location) {
			nearby = append(nearby, l)
		}
		if q.Limit > 0 && len(nearby) == q.Limit {
			break
		}
	}
	return nearby, nil
}

// Update applies the provided fields and appends any new images. Only the
// listing's donor may edit it.
func (s *FoodService) Update(ctx context.Context, donor *model.User, id string, in FoodUpdate, files []ImageFile) (*model.FoodListing, error) {
	listing, err := s.owned(ctx, donor, id, "update")
	if err != nil {
		return nil, err
	}

	edits := []struct {
		field string
		dst   *string
		src   *string
	}{
		{"title", &listing.Title, in.Title},
		{"description", &listing.Description, in.Description},
		{"foodType", &listing.FoodType, in.FoodType},
		{"quantity", &listing.Quantity, in.Quantity},
	}
	for _, e := range edits {
		if e.src == nil {
			continue
		}
		v := strings.TrimSpace(*e.src)
		if v == "" {
			return nil, apperror.ValidationFailed(e.field, e.field+" cannot be empty")
		}
		*e.dst = v
	}
	if in.PickupInstructions != nil {
		listing.PickupInstructions = *in.PickupInstructions
	}
	if in.FreshUntil != nil {
		listing.FreshUntil = in.FreshUntil.UTC()
	}
	if in.Location != nil {
		listing.Location = *in.Location
	}

	if len(listing.Images)+len(files) > storage.MaxImages {
		return nil, apperror.ValidationFailed("images", fmt.Sprintf("A listing can have at most %d images", storage.MaxImages))
	}
	images, err := s.saveImages(ctx, files)
	if err != nil {
		return nil, err
	}
	listing.Images = append(listing.Images, images...)

	if err := s.food.Update(ctx, listing); err != nil {
		return nil, fmt.Errorf("service/food: updating %s: %w", id, err)
	}
	return listing, nil
}

// MarkUnavailable withdraws a listing. Repeating it is harmless.
func (s *FoodService) MarkUnavailable(ctx context.Context, donor *model.User, id string) (*model.FoodListing, error) {
	listing, err := s.owned(ctx, donor, id, "update")
	if err != nil {
		return nil, err
	}
	if err := s.food.MarkUnavailable(ctx, id); err != nil {
		return nil, fmt.Errorf("service/food: withdrawing %s: %w", id, err)
	}
	listing.IsAvailable = false
	return listing, nil
}

func (s *FoodService) owned(ctx context.Context, donor *model.User, id, action string) (*model.FoodListing, error) {
	listing, err := s.food.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/food: fetching %s: %w", id, err)
	}
	if listing.DonorID != donor.ID {
		return nil, apperror.Forbidden("Not authorized to " + action + " this food listing")
	}
	return listing, nil
}

// saveImages validates every file before storing any of them, so a bad
// third image doesn't leave the first two orphaned in the store.
func (s *FoodService) saveImages(ctx context.Context, files []ImageFile) ([]string, error) {
	if len(files) > storage.MaxImages {
		return nil, apperror.ValidationFailed("images", fmt.Sprintf("You can upload at most %d images", storage.MaxImages))
	}

	types := make([]string, len(files))
	for i, f := range files {
		head := make([]byte, 512)
		n, err := io.ReadFull(f.Content, head)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("service/food: reading %s: %w", f.Filename, err)
		}
		contentType, err := storage.Image{Filename: f.Filename, Size: f.Size, Head: head[:n]}.Validate()
		if err != nil {
			return nil, err
		}
		if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("service/food: rewinding %s: %w", f.Filename, err)
		}
		types[i] = contentType
	}

	keys := make([]string, 0, len(files))
	for i, f := range files {
		key, err := s.images.Save(ctx, f.Filename, types[i], f.Content)
		if err != nil {
			return nil, fmt.Errorf("service/food: storing %s: %w", f.Filename, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
