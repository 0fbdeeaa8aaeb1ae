package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
)

func newRatingFixture(t *testing.T) (*donationFixture, *RatingService) {
	t.Helper()
	f := newDonationFixture(t)
	return f, NewRatingService(f.db.Ratings(), f.db.Donations(), f.db.Users(), quietLogger())
}

func (f *donationFixture) completed(t *testing.T) *model.Donation {
	t.Helper()
	d := f.claim(t, f.ngo, f.listing(t).ID)
	done, err := f.svc.Complete(context.Background(), f.ngo, d.ID)
	require.NoError(t, err)
	return done
}

func TestRatingCreate_UpdatesAverage(t *testing.T) {
	f, svc := newRatingFixture(t)
	ctx := context.Background()

	for _, score := range []int{4, 5, 2} {
		d := f.completed(t)
		r, err := svc.Create(ctx, f.ngo, RatingInput{DonationID: d.ID, Score: score, Review: " ok "})
		require.NoError(t, err)
		assert.Equal(t, f.donor.ID, r.DonorID)
		assert.Equal(t, "ok", r.Review)
	}

	got, err := svc.GetForDonor(ctx, f.donor.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, "3.7", got.AverageRating)
}

func TestRatingCreate_Rejects(t *testing.T) {
	f, svc := newRatingFixture(t)
	ctx := context.Background()
	done := f.completed(t)
	scheduled := f.claim(t, f.ngo, f.listing(t).ID)
	stranger := seedUser(t, f.db.Users(), "stranger", model.RoleNGO)

	tests := []struct {
		name string
		ngo  *model.User
		in   RatingInput
		want error
	}{
		{"no donation id", f.ngo, RatingInput{Score: 3}, apperror.ErrValidation},
		{"score too low", f.ngo, RatingInput{DonationID: done.ID, Score: 0}, apperror.ErrValidation},
		{"score too high", f.ngo, RatingInput{DonationID: done.ID, Score: 6}, apperror.ErrValidation},
		{"unknown donation", f.ngo, RatingInput{DonationID: "missing", Score: 3}, apperror.ErrNotFound},
		{"not completed", f.ngo, RatingInput{DonationID: scheduled.ID, Score: 3}, apperror.ErrNotFound},
		{"someone else's donation", stranger, RatingInput{DonationID: done.ID, Score: 3}, apperror.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.ngo, tt.in)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestRatingCreate_SecondRatingConflictsAndKeepsAverage(t *testing.T) {
	f, svc := newRatingFixture(t)
	ctx := context.Background()
	d := f.completed(t)

	_, err := svc.Create(ctx, f.ngo, RatingInput{DonationID: d.ID, Score: 4})
	require.NoError(t, err)
	_, err = svc.Create(ctx, f.ngo, RatingInput{DonationID: d.ID, Score: 1})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	got, err := svc.GetForDonor(ctx, f.donor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, "4.0", got.AverageRating)
}

func TestGetForDonor_NoRatings(t *testing.T) {
	f, svc := newRatingFixture(t)

	got, err := svc.GetForDonor(context.Background(), f.donor.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Count)
	assert.Equal(t, "0.0", got.AverageRating)
	assert.NotNil(t, got.Ratings)

}

func TestGetForDonor_UnknownDonorIsEmpty(t *testing.T) {
	_, svc := newRatingFixture(t)

	got, err := svc.GetForDonor(context.Background(), "nosuchdonor")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Count)
	assert.Equal(t, "0.0", got.AverageRating)
	assert.Empty(t, got.Ratings)
}
