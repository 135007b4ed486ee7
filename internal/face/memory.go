package face

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and dev mode.
type MemoryStore struct {
	mu         sync.RWMutex
	embeddings map[string]*Embedding
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{embeddings: make(map[string]*Embedding)}
}

// Add persists a new embedding, assigning an id when empty.
func (s *MemoryStore) Add(_ context.Context, emb *Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if emb.ID == "" {
		emb.ID = uuid.NewString()
	}
	if emb.Status == "" {
		emb.Status = StatusPending
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}
	cp := *emb
	cp.Vector = append([]float64(nil), emb.Vector...)
	s.embeddings[emb.ID] = &cp
	return nil
}

// Get returns a single embedding by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emb, ok := s.embeddings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *emb
	return &cp, nil
}

// ListVerified returns every verified embedding, ordered by id.
func (s *MemoryStore) ListVerified(_ context.Context) ([]Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Embedding
	for _, emb := range s.embeddings {
		if emb.Status == StatusVerified {
			out = append(out, *emb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListForOwner returns all embeddings enrolled for an owner.
func (s *MemoryStore) ListForOwner(_ context.Context, ownerID string) ([]Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Embedding
	for _, emb := range s.embeddings {
		if emb.OwnerID == ownerID {
			out = append(out, *emb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountVerifiedForOwner returns the number of verified embeddings for an owner.
func (s *MemoryStore) CountVerifiedForOwner(_ context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, emb := range s.embeddings {
		if emb.OwnerID == ownerID && emb.Status == StatusVerified {
			count++
		}
	}
	return count, nil
}

// SetStatus moves an embedding through the verification workflow.
func (s *MemoryStore) SetStatus(_ context.Context, id string, status Status, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	emb, ok := s.embeddings[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	emb.Status = status
	emb.VerificationNotes = notes
	emb.UpdatedAt = &now
	return nil
}

// RemoveAllForOwner deletes every embedding for an owner.
func (s *MemoryStore) RemoveAllForOwner(_ context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, emb := range s.embeddings {
		if emb.OwnerID == ownerID {
			delete(s.embeddings, id)
			deleted++
		}
	}
	return deleted, nil
}
