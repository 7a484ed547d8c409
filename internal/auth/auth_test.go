package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventhub-app/eventhub/internal/model"
)

func TestAuthenticate_RoundTrip(t *testing.T) {
	a := NewAuthenticator("test-secret", time.Hour, nil)

	token, err := a.IssueToken(model.Identity{UserID: "user-1", Email: "a@x.com"})
	require.NoError(t, err)

	identity, err := a.Authenticate("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, "a@x.com", identity.Email)
}

func TestAuthenticate_BareTokenAccepted(t *testing.T) {
	a := NewAuthenticator("test-secret", time.Hour, nil)

	token, err := a.IssueToken(model.Identity{UserID: "user-1", Email: "a@x.com"})
	require.NoError(t, err)

	identity, err := a.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	a := NewAuthenticator("test-secret", time.Hour, nil)

	_, err := a.Authenticate("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = a.Authenticate("Bearer ")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestAuthenticate_Malformed(t *testing.T) {
	a := NewAuthenticator("test-secret", time.Hour, nil)

	_, err := a.Authenticate("Bearer not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	minting := NewAuthenticator("secret-a", time.Hour, nil)
	verifying := NewAuthenticator("secret-b", time.Hour, nil)

	token, err := minting.IssueToken(model.Identity{UserID: "user-1"})
	require.NoError(t, err)

	_, err = verifying.Authenticate("Bearer " + token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_Expired(t *testing.T) {
	now := time.Now()
	clock := now
	a := NewAuthenticator("test-secret", time.Hour, func() time.Time { return clock })

	token, err := a.IssueToken(model.Identity{UserID: "user-1", Email: "a@x.com"})
	require.NoError(t, err)

	// A well-signed token past its expiry is always rejected.
	clock = now.Add(time.Hour + time.Second)
	_, err = a.Authenticate("Bearer " + token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRequireAuth(t *testing.T) {
	a := NewAuthenticator("test-secret", time.Hour, nil)
	logger := zap.NewNop()

	var seen model.Identity
	protected := a.RequireAuth(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		seen = identity
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token allows request", func(t *testing.T) {
		token, err := a.IssueToken(model.Identity{UserID: "user-1", Email: "a@x.com"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/events/enroll", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1", seen.UserID)
	})

	t.Run("missing token rejected before handler runs", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/events/enroll", nil)
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "no token provided")
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/events/enroll", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
