// Package token manages opaque session credentials. The raw credential is
// never persisted; only a one-way hash is stored. Validity checks fail
// closed: an id the store does not know is invalid.
package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned when no token row exists for the given id.
var ErrNotFound = errors.New("auth token not found")

// Token is one issued session credential.
type Token struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	TokenHash        string     `json:"-"`
	DeviceName       string     `json:"device_name,omitempty"`
	IPAddress        string     `json:"ip_address,omitempty"`
	IssuedAt         time.Time  `json:"issued_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	Revoked          bool       `json:"revoked"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Expired reports whether the token's lifetime has passed at the given
// instant. Expiry is derived, never stored.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// IssueRequest carries everything needed to record a new credential.
type IssueRequest struct {
	ID            string // jti; assigned when empty
	OwnerID       string
	RawCredential string
	TTL           time.Duration
	DeviceName    string
	IPAddress     string
}

// Store manages the credential lifecycle: Issued, optionally Revoked.
type Store interface {
	// Issue records a new credential and returns its id. Only the hash of
	// the raw credential is stored.
	Issue(ctx context.Context, req IssueRequest) (*Token, error)
	// Get returns the token row for an id.
	Get(ctx context.Context, id string) (*Token, error)
	// Revoke marks a token revoked. Revoking an already-revoked token
	// succeeds without changing state.
	Revoke(ctx context.Context, id, reason string) error
	// IsValid reports whether the token exists, is not revoked, and has not
	// expired. Unknown ids are invalid.
	IsValid(ctx context.Context, id string) (bool, error)
	// TouchLastUsed records that the token authenticated a request.
	TouchLastUsed(ctx context.Context, id string) error
	// ListForOwner returns every token row for an owner, newest first.
	ListForOwner(ctx context.Context, ownerID string) ([]Token, error)
	// RevokeAllForOwner revokes every live token of an owner and reports how many.
	RevokeAllForOwner(ctx context.Context, ownerID, reason string) (int, error)
}

// HashCredential returns the hex sha256 of a raw credential.
func HashCredential(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
