package auth

import (
	"chat-hub/errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokens_RoundTrip(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("test-secret", time.Hour)

	token, err := tokens.GenerateToken(Identity{UserID: "alice", DisplayName: "Alice"})
	req.NoError(err)

	identity, err := tokens.ValidateToken(token)
	req.NoError(err)
	req.Equal(Identity{UserID: "alice", DisplayName: "Alice"}, identity)
}

func TestTokens_Rejected(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	expired, err := NewTokens("test-secret", -time.Minute).GenerateToken(Identity{UserID: "alice"})
	require.NoError(t, err)
	otherSecret, err := NewTokens("another-secret", time.Hour).GenerateToken(Identity{UserID: "alice"})
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &CustomClaims{UserID: "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "wrong secret", token: otherSecret},
		{name: "none algorithm", token: unsigned},
		{name: "garbage", token: "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.ValidateToken(tt.token)
			require.ErrorIs(t, err, errors.ErrInvalidToken)
		})
	}
}

func TestMiddleware(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	token, err := tokens.GenerateToken(Identity{UserID: "alice", DisplayName: "Alice"})
	require.NoError(t, err)

	var seen Identity
	handler := Middleware(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("bearer header", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		req.Equal(http.StatusNoContent, w.Code)
		req.Equal("alice", seen.UserID)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		req.Equal(http.StatusNoContent, w.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
