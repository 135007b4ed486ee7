package token

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueStoresHashOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	tok, err := store.Issue(ctx, IssueRequest{
		OwnerID:       "user-1",
		RawCredential: "raw-secret",
		TTL:           time.Hour,
		DeviceName:    "laptop",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.TokenHash == "raw-secret" || tok.TokenHash == "" {
		t.Error("store must keep a hash, never the raw credential")
	}
	if tok.TokenHash != HashCredential("raw-secret") {
		t.Error("stored hash does not match the credential hash")
	}
	if !tok.ExpiresAt.After(tok.IssuedAt) {
		t.Error("expiry must be after issuance")
	}
}

func TestIssueRejectsNonPositiveTTL(t *testing.T) {
	store := NewMemoryStore(nil)
	if _, err := store.Issue(context.Background(), IssueRequest{OwnerID: "user-1", TTL: 0}); err == nil {
		t.Error("zero ttl must be rejected")
	}
	if _, err := store.Issue(context.Background(), IssueRequest{OwnerID: "user-1", TTL: -time.Hour}); err == nil {
		t.Error("negative ttl must be rejected")
	}
}

func TestIsValidFailsClosed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := NewMemoryStore(clock)

	valid, err := store.IsValid(ctx, "unknown-id")
	if err != nil {
		t.Fatalf("isvalid: %v", err)
	}
	if valid {
		t.Error("unknown id must be invalid")
	}

	tok, _ := store.Issue(ctx, IssueRequest{OwnerID: "user-1", RawCredential: "x", TTL: time.Hour})
	if valid, _ := store.IsValid(ctx, tok.ID); !valid {
		t.Error("freshly issued token must be valid")
	}

	// Expired but not revoked.
	now = now.Add(2 * time.Hour)
	if valid, _ := store.IsValid(ctx, tok.ID); valid {
		t.Error("expired token must be invalid")
	}

	// Expiry boundary: exactly at expires_at is no longer valid.
	now = tok.ExpiresAt
	if valid, _ := store.IsValid(ctx, tok.ID); valid {
		t.Error("token at its exact expiry instant must be invalid")
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	tok, _ := store.Issue(ctx, IssueRequest{OwnerID: "user-1", RawCredential: "x", TTL: time.Hour})

	if err := store.Revoke(ctx, tok.ID, "logout"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	first, _ := store.Get(ctx, tok.ID)
	if !first.Revoked || first.RevocationReason != "logout" || first.RevokedAt == nil {
		t.Fatalf("revoked token = %+v, want revoked with reason logout", first)
	}

	if err := store.Revoke(ctx, tok.ID, "different reason"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	second, _ := store.Get(ctx, tok.ID)
	if second.RevocationReason != "logout" || !second.RevokedAt.Equal(*first.RevokedAt) {
		t.Error("second revoke must not change state")
	}

	if valid, _ := store.IsValid(ctx, tok.ID); valid {
		t.Error("revoked token must be invalid")
	}

	if err := store.Revoke(ctx, "unknown-id", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoke unknown id = %v, want ErrNotFound", err)
	}
}

func TestRevokeAllForOwner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	a, _ := store.Issue(ctx, IssueRequest{OwnerID: "user-1", RawCredential: "a", TTL: time.Hour})
	_, _ = store.Issue(ctx, IssueRequest{OwnerID: "user-1", RawCredential: "b", TTL: time.Hour})
	other, _ := store.Issue(ctx, IssueRequest{OwnerID: "user-2", RawCredential: "c", TTL: time.Hour})
	_ = store.Revoke(ctx, a.ID, "logout")

	n, err := store.RevokeAllForOwner(ctx, "user-1", "logout everywhere")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 1 {
		t.Errorf("revoked = %d, want 1 (one was already revoked)", n)
	}
	if valid, _ := store.IsValid(ctx, other.ID); !valid {
		t.Error("other owner's token must stay valid")
	}
}

func TestListForOwnerNewestFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })

	_, _ = store.Issue(ctx, IssueRequest{OwnerID: "user-1", RawCredential: "a", TTL: time.Hour})
	now = now.Add(time.Minute)
	newest, _ := store.Issue(ctx, IssueRequest{OwnerID: "user-1", RawCredential: "b", TTL: time.Hour})

	list, err := store.ListForOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list length = %d, want 2", len(list))
	}
	if list[0].ID != newest.ID {
		t.Error("list must be ordered newest first")
	}
}

func TestTouchLastUsed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	tok, _ := store.Issue(ctx, IssueRequest{OwnerID: "user-1", RawCredential: "x", TTL: time.Hour})

	if err := store.TouchLastUsed(ctx, tok.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, _ := store.Get(ctx, tok.ID)
	if got.LastUsedAt == nil {
		t.Error("last_used_at not recorded")
	}
	if err := store.TouchLastUsed(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("touch unknown id = %v, want ErrNotFound", err)
	}
}
