package face

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists face embeddings in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const embeddingColumns = `id, user_id, encoding_vector, image_url, image_hash, captured_at,
	quality_score, face_confidence, status, verification_notes, created_at, updated_at`

// Add persists a new embedding, assigning an id when empty.
func (r *Repository) Add(ctx context.Context, emb *Embedding) error {
	if emb.ID == "" {
		emb.ID = uuid.NewString()
	}
	if emb.Status == "" {
		emb.Status = StatusPending
	}
	if emb.CapturedAt.IsZero() {
		emb.CapturedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO face_encodings (id, user_id, encoding_vector, image_url, image_hash, captured_at,
			quality_score, face_confidence, status, verification_notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, emb.ID, emb.OwnerID, EncodeVector(emb.Vector), emb.ImageURL, emb.ImageHash, emb.CapturedAt,
		emb.QualityScore, emb.FaceConfidence, emb.Status, emb.VerificationNotes)
	if err := row.Scan(&emb.CreatedAt); err != nil {
		return fmt.Errorf("insert face encoding: %w", err)
	}
	return nil
}

// Get returns a single embedding by id.
func (r *Repository) Get(ctx context.Context, id string) (*Embedding, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+embeddingColumns+`
		FROM face_encodings WHERE id = $1
	`, id)
	emb, err := scanEmbedding(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return emb, nil
}

// ListVerified returns every verified embedding ordered by id so that match
// tie-breaks are deterministic.
func (r *Repository) ListVerified(ctx context.Context) ([]Embedding, error) {
	return r.list(ctx, `
		SELECT `+embeddingColumns+`
		FROM face_encodings
		WHERE status = $1
		ORDER BY id
	`, StatusVerified)
}

// ListForOwner returns all embeddings enrolled for an owner.
func (r *Repository) ListForOwner(ctx context.Context, ownerID string) ([]Embedding, error) {
	return r.list(ctx, `
		SELECT `+embeddingColumns+`
		FROM face_encodings
		WHERE user_id = $1
		ORDER BY id
	`, ownerID)
}

// CountVerifiedForOwner returns the number of verified embeddings for an owner.
func (r *Repository) CountVerifiedForOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM face_encodings WHERE user_id = $1 AND status = $2
	`, ownerID, StatusVerified).Scan(&count)
	return count, err
}

// SetStatus moves an embedding through the verification workflow.
func (r *Repository) SetStatus(ctx context.Context, id string, status Status, notes string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE face_encodings
		SET status = $2, verification_notes = $3, updated_at = NOW()
		WHERE id = $1
	`, id, status, notes)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveAllForOwner deletes every embedding for an owner and reports how many.
func (r *Repository) RemoveAllForOwner(ctx context.Context, ownerID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM face_encodings WHERE user_id = $1`, ownerID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Embedding, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Embedding
	for rows.Next() {
		emb, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *emb)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmbedding(s scanner) (*Embedding, error) {
	var emb Embedding
	var blob []byte
	var notes sql.NullString
	if err := s.Scan(&emb.ID, &emb.OwnerID, &blob, &emb.ImageURL, &emb.ImageHash, &emb.CapturedAt,
		&emb.QualityScore, &emb.FaceConfidence, &emb.Status, &notes, &emb.CreatedAt, &emb.UpdatedAt); err != nil {
		return nil, err
	}
	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", emb.ID, err)
	}
	emb.Vector = vec
	emb.VerificationNotes = notes.String
	return &emb, nil
}
