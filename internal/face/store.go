package face

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no embedding exists for the given id.
var ErrNotFound = errors.New("face embedding not found")

// Store persists face embeddings. ListVerified must return embeddings in
// ascending id order so matching tie-breaks are deterministic.
type Store interface {
	// Add persists a new embedding, assigning an id when empty.
	Add(ctx context.Context, emb *Embedding) error
	// Get returns a single embedding by id.
	Get(ctx context.Context, id string) (*Embedding, error)
	// ListVerified returns every verified embedding, ordered by id.
	ListVerified(ctx context.Context) ([]Embedding, error)
	// ListForOwner returns all embeddings enrolled for an owner.
	ListForOwner(ctx context.Context, ownerID string) ([]Embedding, error)
	// CountVerifiedForOwner returns the number of verified embeddings for an owner.
	CountVerifiedForOwner(ctx context.Context, ownerID string) (int, error)
	// SetStatus moves an embedding through the verification workflow.
	SetStatus(ctx context.Context, id string, status Status, notes string) error
	// RemoveAllForOwner deletes every embedding for an owner and reports how many.
	RemoveAllForOwner(ctx context.Context, ownerID string) (int, error)
}
