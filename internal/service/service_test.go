package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/realtime"
	"github.com/sakif/shareplate/internal/repository"
	"github.com/sakif/shareplate/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================
//
// Services that coordinate several tables (food, donations, ratings) run
// against a real in-memory SQLite database so the transactions are
// exercised. The account services use an in-memory fake repository, and the
// relay, publisher and image store are recording fakes.

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, users repository.UserRepository, name string, role model.Role) *model.User {
	t.Helper()
	user := &model.User{
		Name:     name,
		Email:    name + "@example.com",
		Role:     role,
		Location: model.DefaultLocation(),
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seeding user %s: %v", name, err)
	}
	return user
}

func validFoodInput() FoodInput {
	return FoodInput{
		Title:       "Veg biryani",
		Description: "Leftover from a wedding",
		FoodType:    "cooked",
		Quantity:    "40 plates",
		FreshUntil:  time.Now().Add(6 * time.Hour),
	}
}

// pngFile is a tiny upload that sniffs as image/png.
func pngFile(name string) ImageFile {
	data := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	return ImageFile{Filename: name, Size: int64(len(data)), Content: bytes.NewReader(data)}
}

// fakeUserRepo is an in-memory repository.UserRepository.
type fakeUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	nextID  int
	getErr  error
	listErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == user.Email {
			return apperror.ConflictMsg("Email already registered")
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now().Add(time.Duration(f.nextID) * time.Millisecond)
	copied := *user
	f.byID[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFoundMsg("user not found")
}

func (f *fakeUserRepo) Update(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	copied := *user
	f.byID[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) ListByRole(_ context.Context, role model.Role, order repository.UserOrder, opts repository.ListOptions) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.User, 0)
	for _, u := range f.byID {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		switch order {
		case repository.OrderByCredits:
			return out[i].Credits > out[j].Credits
		case repository.OrderByRating:
			return out[i].Rating > out[j].Rating
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// recordingRelay captures what the food and donation services announce.
type recordingRelay struct {
	mu        sync.Mutex
	listings  []*model.FoodListing
	confirmed []*model.Donation
	completed []*model.Donation
	err       error
}

func (r *recordingRelay) NewFoodListing(_ context.Context, listing *model.FoodListing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings = append(r.listings, listing)
	return r.err
}

func (r *recordingRelay) DonationConfirmed(_ context.Context, donation *model.Donation, _ *model.FoodListing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, donation)
	return r.err
}

func (r *recordingRelay) DonationCompleted(_ context.Context, donation *model.Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, donation)
	return r.err
}

// recordingPublisher captures envelopes instead of delivering them.
type recordingPublisher struct {
	mu   sync.Mutex
	envs []realtime.Envelope
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, env realtime.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.envs = append(p.envs, env)
	return nil
}

// memStore keeps uploads in memory.
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte)}
}

func (m *memStore) Save(_ context.Context, filename, _ string, body io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d-%s", len(m.files), filename)
	m.files[key] = data
	return key, nil
}
