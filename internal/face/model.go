package face

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Status is the lifecycle state of an enrolled embedding. Only verified
// embeddings participate in matching.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// ParseStatus normalizes a textual status to the canonical enum.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusVerified, StatusRejected:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown embedding status %q", s)
}

// Embedding is a stored biometric vector for one owner.
type Embedding struct {
	ID                string     `json:"id"`
	OwnerID           string     `json:"owner_id"`
	Vector            []float64  `json:"-"`
	ImageURL          string     `json:"image_url,omitempty"`
	ImageHash         string     `json:"image_hash,omitempty"`
	CapturedAt        time.Time  `json:"captured_at"`
	QualityScore      *float64   `json:"quality_score,omitempty"`
	FaceConfidence    *float64   `json:"face_confidence,omitempty"`
	Status            Status     `json:"status"`
	VerificationNotes string     `json:"verification_notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// EncodeVector serializes a vector as little-endian float64 bytes for storage.
func EncodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// DecodeVector deserializes a vector stored by EncodeVector.
func DecodeVector(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 8", len(b))
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v, nil
}
