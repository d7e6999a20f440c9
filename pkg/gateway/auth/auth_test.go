package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestJWTRoundTrip(t *testing.T) {
	m, err := NewJWTManager(testSecret, "rxlocator", "locator-api", time.Hour)
	require.NoError(t, err)

	token, err := m.IssueToken(Identity{UserID: "user-1", Email: "a@example.com"})
	require.NoError(t, err)

	id, err := m.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user-1", Email: "a@example.com"}, id)
}

func TestJWTRejects(t *testing.T) {
	m, err := NewJWTManager(testSecret, "rxlocator", "locator-api", time.Minute)
	require.NoError(t, err)
	token, err := m.IssueToken(Identity{UserID: "user-1"})
	require.NoError(t, err)

	other, err := NewJWTManager(testSecret, "rxlocator", "other-api", time.Minute)
	require.NoError(t, err)
	_, err = other.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = m.Verify(context.Background(), token+"x")
	assert.ErrorIs(t, err, ErrUnauthorized)

	m.nowFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = m.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewJWTManagerShortSecret(t *testing.T) {
	_, err := NewJWTManager("short", "a", "b", time.Hour)
	assert.Error(t, err)
}

func TestOIDCVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"sub":"auth0|42","email":"dr@example.com"}`))
		case "Bearer broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	v, err := NewOIDCVerifier("", srv.URL, time.Second)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "auth0|42", id.UserID)
	assert.Equal(t, "dr@example.com", id.Email)

	_, err = v.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = v.Verify(context.Background(), "broken")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestNewOIDCVerifierDerivesUserInfoURL(t *testing.T) {
	v, err := NewOIDCVerifier("https://id.example.com/", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://id.example.com/userinfo", v.userInfoURL)

	_, err = NewOIDCVerifier("", "", time.Second)
	assert.Error(t, err)
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u"})
	id, ok := IdentityFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u", id.UserID)
}
