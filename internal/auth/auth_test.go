package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, subject string, claimList []string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Claims: claimList,
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(Subject(r.Context())))
	})
}

func TestRequireRejectsMissingAuthorizationHeader(t *testing.T) {
	v := New(testSecret)
	req := httptest.NewRequest(http.MethodPost, "/dispatches", nil)
	rec := httptest.NewRecorder()

	v.Require("dispatches.create", newHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAcceptsValidTokenWithClaim(t *testing.T) {
	v := New(testSecret)
	token := signToken(t, "alice", []string{"dispatches.create"}, time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodPost, "/dispatches", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	v.Require("dispatches.create", newHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestRequireRejectsTokenMissingClaim(t *testing.T) {
	v := New(testSecret)
	token := signToken(t, "alice", []string{"rmbposts.create"}, time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodPost, "/dispatches", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	v.Require("dispatches.create", newHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRejectsExpiredToken(t *testing.T) {
	v := New(testSecret)
	token := signToken(t, "alice", []string{"dispatches.create"}, time.Now().Add(-time.Hour))

	req := httptest.NewRequest(http.MethodPost, "/dispatches", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	v.Require("dispatches.create", newHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRejectsWrongSecret(t *testing.T) {
	v := New("different-secret")
	token := signToken(t, "alice", []string{"dispatches.create"}, time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodPost, "/dispatches", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	v.Require("dispatches.create", newHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
