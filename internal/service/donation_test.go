package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/repository/sqlite"
)

type donationFixture struct {
	db    *sqlite.DB
	food  *FoodService
	svc   *DonationService
	relay *recordingRelay
	donor *model.User
	ngo   *model.User
}

func newDonationFixture(t *testing.T) *donationFixture {
	t.Helper()
	db := newTestDB(t)
	relay := &recordingRelay{}
	return &donationFixture{
		db:    db,
		food:  NewFoodService(db.Food(), newMemStore(), relay, quietLogger()),
		svc:   NewDonationService(db.Donations(), db.Food(), relay, quietLogger()),
		relay: relay,
		donor: seedUser(t, db.Users(), "donor", model.RoleDonor),
		ngo:   seedUser(t, db.Users(), "ngo", model.RoleNGO),
	}
}

func (f *donationFixture) listing(t *testing.T) *model.FoodListing {
	t.Helper()
	l, err := f.food.Create(context.Background(), f.donor, validFoodInput(), nil)
	require.NoError(t, err)
	return l
}

func (f *donationFixture) claim(t *testing.T, ngo *model.User, foodID string) *model.Donation {
	t.Helper()
	d, err := f.svc.Claim(context.Background(), ngo, ClaimInput{FoodID: foodID, PickupTime: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	return d
}

// ============================================================================
// Claim
// ============================================================================

func TestClaim(t *testing.T) {
	f := newDonationFixture(t)
	ctx := context.Background()
	listing := f.listing(t)

	d := f.claim(t, f.ngo, listing.ID)
	assert.Equal(t, model.StatusScheduled, d.Status)
	assert.Equal(t, f.donor.ID, d.DonorID)
	assert.Equal(t, "ngo", d.NgoName)

	feed, err := f.food.List(ctx, FoodQuery{})
	require.NoError(t, err)
	assert.Empty(t, feed, "claimed listing leaves the feed")

	require.Len(t, f.relay.confirmed, 1)
	assert.Equal(t, d.ID, f.relay.confirmed[0].ID)

	_, err = f.svc.Claim(ctx, f.ngo, ClaimInput{FoodID: listing.ID, PickupTime: time.Now()})
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "second claim: %v", err)
}

func TestClaim_PickupAfterFreshUntilAccepted(t *testing.T) {
	f := newDonationFixture(t)
	listing := f.listing(t)

	_, err := f.svc.Claim(context.Background(), f.ngo, ClaimInput{
		FoodID:     listing.ID,
		PickupTime: listing.FreshUntil.Add(48 * time.Hour),
	})
	assert.NoError(t, err)
}

func TestClaim_Validation(t *testing.T) {
	f := newDonationFixture(t)

	_, err := f.svc.Claim(context.Background(), f.ngo, ClaimInput{PickupTime: time.Now()})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = f.svc.Claim(context.Background(), f.ngo, ClaimInput{FoodID: "x"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestClaim_ConcurrentExactlyOneWins(t *testing.T) {
	f := newDonationFixture(t)
	listing := f.listing(t)

	const n = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		notFound int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Claim(context.Background(), f.ngo, ClaimInput{FoodID: listing.ID, PickupTime: time.Now()})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperror.ErrNotFound):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, notFound)
}

// ============================================================================
// Complete / Cancel
// ============================================================================

func TestComplete_CreditsDonor(t *testing.T) {
	f := newDonationFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := f.claim(t, f.ngo, f.listing(t).ID)
		done, err := f.svc.Complete(ctx, f.ngo, d.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, done.Status)
		assert.NotNil(t, done.CompletedAt)
	}

	donor, err := f.db.Users().GetByID(ctx, f.donor.ID)
	require.NoError(t, err)
	assert.Equal(t, 3*CreditsPerDonation, donor.Credits)
	assert.Equal(t, 3, donor.TotalDonations)
	assert.Len(t, f.relay.completed, 3)
}

func TestComplete_Guards(t *testing.T) {
	f := newDonationFixture(t)
	ctx := context.Background()
	other := seedUser(t, f.db.Users(), "other-ngo", model.RoleNGO)
	d := f.claim(t, f.ngo, f.listing(t).ID)

	_, err := f.svc.Complete(ctx, other, d.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "got %v", err)

	_, err = f.svc.Complete(ctx, f.ngo, "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	_, err = f.svc.Complete(ctx, f.ngo, d.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, f.ngo, d.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	donor, err := f.db.Users().GetByID(ctx, f.donor.ID)
	require.NoError(t, err)
	assert.Equal(t, CreditsPerDonation, donor.Credits, "no double credit")
}

func TestCancel(t *testing.T) {
	f := newDonationFixture(t)
	ctx := context.Background()
	listing := f.listing(t)
	d := f.claim(t, f.ngo, listing.ID)

	cancelled, err := f.svc.Cancel(ctx, f.ngo, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	_, err = f.svc.Complete(ctx, f.ngo, d.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	stored, err := f.food.Get(ctx, listing.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsAvailable, "cancelling does not relist")
	assert.Empty(t, f.relay.completed)
}

// ============================================================================
// Lists
// ============================================================================

func TestListForDonorAndNgo_AttachFood(t *testing.T) {
	f := newDonationFixture(t)
	ctx := context.Background()
	listing := f.listing(t)
	d := f.claim(t, f.ngo, listing.ID)

	forDonor, err := f.svc.ListForDonor(ctx, f.donor.ID)
	require.NoError(t, err)
	require.Len(t, forDonor, 1)
	assert.Equal(t, d.ID, forDonor[0].ID)
	require.NotNil(t, forDonor[0].FoodDetails)
	assert.Equal(t, listing.Title, forDonor[0].FoodDetails.Title)

	forNgo, err := f.svc.ListForNgo(ctx, f.ngo.ID)
	require.NoError(t, err)
	require.Len(t, forNgo, 1)
	assert.NotNil(t, forNgo[0].FoodDetails)

	none, err := f.svc.ListForNgo(ctx, f.donor.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}
