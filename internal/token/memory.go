package token

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and dev mode.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*Token
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store. now defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{tokens: make(map[string]*Token), now: now}
}

// Issue records a new credential and returns its row.
func (s *MemoryStore) Issue(_ context.Context, req IssueRequest) (*Token, error) {
	if req.OwnerID == "" {
		return nil, errors.New("owner id required")
	}
	if req.TTL <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now().UTC()
	tok := &Token{
		ID:         id,
		OwnerID:    req.OwnerID,
		TokenHash:  HashCredential(req.RawCredential),
		DeviceName: req.DeviceName,
		IPAddress:  req.IPAddress,
		IssuedAt:   now,
		ExpiresAt:  now.Add(req.TTL),
		CreatedAt:  now,
	}
	s.tokens[id] = tok
	cp := *tok
	return &cp, nil
}

// Get returns the token row for an id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

// Revoke marks a token revoked; already-revoked tokens are left untouched.
func (s *MemoryStore) Revoke(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	if tok.Revoked {
		return nil
	}
	now := s.now().UTC()
	tok.Revoked = true
	tok.RevokedAt = &now
	tok.RevocationReason = reason
	return nil
}

// IsValid reports liveness of a token; unknown ids are invalid.
func (s *MemoryStore) IsValid(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[id]
	if !ok {
		return false, nil
	}
	if tok.Revoked || tok.Expired(s.now()) {
		return false, nil
	}
	return true, nil
}

// TouchLastUsed records that the token authenticated a request.
func (s *MemoryStore) TouchLastUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	now := s.now().UTC()
	tok.LastUsedAt = &now
	return nil
}

// ListForOwner returns every token row for an owner, newest first.
func (s *MemoryStore) ListForOwner(_ context.Context, ownerID string) ([]Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Token
	for _, tok := range s.tokens {
		if tok.OwnerID == ownerID {
			out = append(out, *tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

// RevokeAllForOwner revokes every live token of an owner.
func (s *MemoryStore) RevokeAllForOwner(_ context.Context, ownerID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	revoked := 0
	for _, tok := range s.tokens {
		if tok.OwnerID == ownerID && !tok.Revoked {
			tok.Revoked = true
			tok.RevokedAt = &now
			tok.RevocationReason = reason
			revoked++
		}
	}
	return revoked, nil
}
