// Package auth carries the authenticated conversation runtime on the request
// context.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Principal is a runtime that presented a configured API key.
type Principal struct {
	APIKey string
	// ID identifies the key in logs and the call log without revealing it.
	ID string
}

func NewPrincipal(apiKey string) *Principal {
	sum := sha256.Sum256([]byte(apiKey))
	return &Principal{APIKey: apiKey, ID: "key_" + hex.EncodeToString(sum[:4])}
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// ParseBearer reads "Authorization: Bearer <token>". The scheme is matched
// case-insensitively.
func ParseBearer(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
