// Package auth resolves the calling user from an HTTP request.
package auth

import (
	"context"
	"net/http"
	"strings"
)

const (
	DevUserID  = "dev-user-id"
	TestUserID = "test-user-id"
)

type contextKey string

const userIDContextKey contextKey = "user_id"

// Resolver returns the user ID for a request, or false when the request
// carries no acceptable identity.
type Resolver interface {
	Resolve(r *http.Request) (string, bool)
}

type ResolverFunc func(r *http.Request) (string, bool)

func (f ResolverFunc) Resolve(r *http.Request) (string, bool) {
	return f(r)
}

// Chain tries each resolver in order and returns the first match.
type Chain []Resolver

func (c Chain) Resolve(r *http.Request) (string, bool) {
	for _, resolver := range c {
		if resolver == nil {
			continue
		}
		if userID, ok := resolver.Resolve(r); ok {
			return userID, true
		}
	}
	return "", false
}

// DevBypass grants DevUserID on the listed paths without credentials.
type DevBypass struct {
	Paths []string
}

func (d DevBypass) Resolve(r *http.Request) (string, bool) {
	for _, path := range d.Paths {
		if r.URL.Path == path {
			return DevUserID, true
		}
	}
	return "", false
}

// StaticToken accepts one fixed bearer token. An empty Token disables it.
type StaticToken struct {
	Token  string
	UserID string
}

func (s StaticToken) Resolve(r *http.Request) (string, bool) {
	if s.Token == "" {
		return "", false
	}
	token, ok := BearerToken(r)
	if !ok || token != s.Token {
		return "", false
	}
	if s.UserID == "" {
		return TestUserID, true
	}
	return s.UserID, true
}

func BearerToken(r *http.Request) (string, bool) {
	authorization := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
	return token, token != ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

func UserID(ctx context.Context) (string, bool) {
	value, _ := ctx.Value(userIDContextKey).(string)
	return value, value != ""
}
