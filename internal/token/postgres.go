package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists auth tokens in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const tokenColumns = `id, user_id, token_hash, device_name, ip_address, issued_at, expires_at,
	last_used_at, is_revoked, revoked_at, revocation_reason, created_at`

// Issue records a new credential and returns its row.
func (r *Repository) Issue(ctx context.Context, req IssueRequest) (*Token, error) {
	if req.OwnerID == "" {
		return nil, errors.New("owner id required")
	}
	if req.TTL <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	tok := &Token{
		ID:         id,
		OwnerID:    req.OwnerID,
		TokenHash:  HashCredential(req.RawCredential),
		DeviceName: req.DeviceName,
		IPAddress:  req.IPAddress,
		IssuedAt:   now,
		ExpiresAt:  now.Add(req.TTL),
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO auth_tokens (id, user_id, token_hash, device_name, ip_address, issued_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, tok.ID, tok.OwnerID, tok.TokenHash, tok.DeviceName, tok.IPAddress, tok.IssuedAt, tok.ExpiresAt)
	if err := row.Scan(&tok.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert auth token: %w", err)
	}
	return tok, nil
}

// Get returns the token row for an id.
func (r *Repository) Get(ctx context.Context, id string) (*Token, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+` FROM auth_tokens WHERE id = $1
	`, id)
	return scanToken(row)
}

// Revoke marks a token revoked. The WHERE clause skips already-revoked rows
// so a repeated revoke changes nothing; both cases succeed.
func (r *Repository) Revoke(ctx context.Context, id, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_tokens
		SET is_revoked = TRUE, revoked_at = NOW(), revocation_reason = $2
		WHERE id = $1 AND NOT is_revoked
	`, id, reason)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Nothing updated: either unknown or already revoked.
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// IsValid reports liveness of a token. Unknown ids are invalid; expiry is
// computed against the database clock.
func (r *Repository) IsValid(ctx context.Context, id string) (bool, error) {
	var valid bool
	err := r.db.QueryRowContext(ctx, `
		SELECT NOT is_revoked AND expires_at > NOW() FROM auth_tokens WHERE id = $1
	`, id).Scan(&valid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return valid, nil
}

// TouchLastUsed records that the token authenticated a request.
func (r *Repository) TouchLastUsed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE auth_tokens SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForOwner returns every token row for an owner, newest first.
func (r *Repository) ListForOwner(ctx context.Context, ownerID string) ([]Token, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+tokenColumns+` FROM auth_tokens WHERE user_id = $1 ORDER BY issued_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Token
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tok)
	}
	return out, rows.Err()
}

// RevokeAllForOwner revokes every live token of an owner.
func (r *Repository) RevokeAllForOwner(ctx context.Context, ownerID, reason string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_tokens
		SET is_revoked = TRUE, revoked_at = NOW(), revocation_reason = $2
		WHERE user_id = $1 AND NOT is_revoked
	`, ownerID, reason)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(s scanner) (*Token, error) {
	var tok Token
	var device, ip, reason sql.NullString
	err := s.Scan(&tok.ID, &tok.OwnerID, &tok.TokenHash, &device, &ip, &tok.IssuedAt, &tok.ExpiresAt,
		&tok.LastUsedAt, &tok.Revoked, &tok.RevokedAt, &reason, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	tok.DeviceName = device.String
	tok.IPAddress = ip.String
	tok.RevocationReason = reason.String
	return &tok, nil
}
