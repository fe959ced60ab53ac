// Package auth implements the JWT bearer-claim verification boundary.
// Issuance, signup, and login happen elsewhere; this package only
// verifies a bearer token already issued and checks it carries the claim
// a route requires.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Europeia/eurocore/internal/apierr"
)

// claims is the expected JWT payload shape: a subject (username) and a
// flat list of permission strings such as "dispatches.create".
type claims struct {
	jwt.RegisteredClaims
	Claims []string `json:"claims"`
}

func (c claims) has(required string) bool {
	for _, claim := range c.Claims {
		if claim == required {
			return true
		}
	}
	return false
}

// Verifier checks bearer tokens against a single HS256 secret.
type Verifier struct {
	secret []byte
}

// New builds a Verifier over the configured JWT secret.
func New(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

type contextKey int

const subjectKey contextKey = iota

// Subject returns the authenticated username stashed in ctx by
// Require, or "" if the route required no auth.
func Subject(ctx context.Context) string {
	v, _ := ctx.Value(subjectKey).(string)
	return v
}

// Require returns middleware that rejects requests lacking a bearer
// token carrying requiredClaim. A rejected request never reaches next: the
// middleware itself writes the JSON error response, with the status and
// message from apierr.StatusCode/Message.
func (v *Verifier) Require(requiredClaim string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := v.verify(r, requiredClaim)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (v *Verifier) verify(r *http.Request, requiredClaim string) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apierr.ErrNoCredentials
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return "", apierr.ErrNoCredentials
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apierr.ErrExpiredJWT
		}
		return "", apierr.ErrNoCredentials
	}

	if requiredClaim != "" && !parsed.has(requiredClaim) {
		return "", apierr.ErrUnauthorized
	}

	return parsed.Subject, nil
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierr.StatusCode(err))
	_, _ = w.Write([]byte(`{"message":"` + apierr.Message(err) + `"}`))
}
