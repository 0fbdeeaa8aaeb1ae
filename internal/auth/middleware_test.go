package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/model"
)

// fakeLoader serves users from a map and can be told to fail.
type fakeLoader struct {
	users map[string]*model.User
	err   error
}

func (f *fakeLoader) GetByID(_ context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok, "principal missing from context")
		w.Write([]byte(user.ID))
	})
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Success)
	return body.Message
}

func TestRequireAuth(t *testing.T) {
	tokens := newTestTokenService(t)
	donor := &model.User{ID: "donor-1", Role: model.RoleDonor}
	loader := &fakeLoader{users: map[string]*model.User{donor.ID: donor}}

	valid, _ := tokens.Generate(donor.ID)
	ghost, _ := tokens.Generate("deleted-user")
	expired, _ := tokens.GenerateWithDuration(donor.ID, -time.Second)

	tests := []struct {
		name       string
		header     string
		loader     PrincipalLoader
		wantStatus int
	}{
		{name: "valid bearer", header: "Bearer " + valid, loader: loader, wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + valid, loader: loader, wantStatus: http.StatusOK},
		{name: "no header", loader: loader, wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, loader: loader, wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, loader: loader, wantStatus: http.StatusUnauthorized},
		{name: "principal gone", header: "Bearer " + ghost, loader: loader, wantStatus: http.StatusUnauthorized},
		{name: "store down", header: "Bearer " + valid, loader: &fakeLoader{err: errors.New("disk on fire")}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			RequireAuth(tokens, tt.loader)(okHandler(t)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, donor.ID, rec.Body.String())
			} else {
				assert.NotEmpty(t, decodeMessage(t, rec))
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(model.RoleNGO)(okHandler(t))

	t.Run("allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/donations", nil)
		req = req.WithContext(WithUser(req.Context(), &model.User{ID: "ngo-1", Role: model.RoleNGO}))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/donations", nil)
		req = req.WithContext(WithUser(req.Context(), &model.User{ID: "donor-1", Role: model.RoleDonor}))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "User role donor is not authorized to access this route", decodeMessage(t, rec))
	})

	t.Run("no principal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/donations", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthenticate_EmptyToken(t *testing.T) {
	_, err := Authenticate(context.Background(), newTestTokenService(t), &fakeLoader{}, "")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}
