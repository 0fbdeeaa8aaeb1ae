package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/shareplate/internal/model"
)

// newTestDB opens a fresh in-memory database for one test. t.Cleanup closes
// it when the test (and its subtests) finish.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, name string, role model.Role) *model.User {
	t.Helper()
	user := &model.User{
		Name:     name,
		Email:    name + "@example.com",
		Role:     role,
		Location: model.DefaultLocation(),
	}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func createTestFood(t *testing.T, db *DB, donor *model.User, title string) *model.FoodListing {
	t.Helper()
	listing := &model.FoodListing{
		Title:       title,
		Description: "leftover " + title,
		FoodType:    "cooked",
		Quantity:    "10 plates",
		FreshUntil:  time.Now().Add(6 * time.Hour),
		Location:    donor.Location,
		DonorID:     donor.ID,
		DonorName:   donor.DisplayName(),
	}
	if err := db.Food().Create(context.Background(), listing); err != nil {
		t.Fatalf("failed to create test food: %v", err)
	}
	return listing
}

func claimTestFood(t *testing.T, db *DB, ngo *model.User, food *model.FoodListing) *model.Donation {
	t.Helper()
	donation := &model.Donation{
		FoodID:     food.ID,
		NgoID:      ngo.ID,
		NgoName:    ngo.Name,
		PickupTime: time.Now().Add(time.Hour),
	}
	if err := db.Donations().Claim(context.Background(), donation); err != nil {
		t.Fatalf("failed to claim test food: %v", err)
	}
	return donation
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestImagesRoundTrip(t *testing.T) {
	raw, err := encodeImages(nil)
	if err != nil {
		t.Fatalf("encodeImages(nil) error = %v", err)
	}
	if raw != "[]" {
		t.Errorf("encodeImages(nil) = %q, want []", raw)
	}

	images, err := decodeImages(`["a.png","b.jpg"]`)
	if err != nil {
		t.Fatalf("decodeImages() error = %v", err)
	}
	if len(images) != 2 || images[1] != "b.jpg" {
		t.Errorf("decodeImages() = %v", images)
	}
}
