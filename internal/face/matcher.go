package face

import (
	"context"
	"fmt"
	"math"
)

// DimensionError reports a probe or corpus vector whose length does not
// match the deployment's embedding dimension.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// MatchResult is the outcome of a nearest-neighbor identification.
type MatchResult struct {
	Recognized bool    `json:"recognized"`
	OwnerID    string  `json:"owner_id,omitempty"`
	EncodingID string  `json:"encoding_id,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Distance   float64 `json:"distance,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// ReasonEmptyCorpus distinguishes "nobody enrolled" from a rejected match.
const (
	ReasonEmptyCorpus   = "empty corpus"
	ReasonNotRecognized = "not recognized"
)

// Matcher resolves a probe vector against the verified corpus by exhaustive
// nearest-neighbor search. The corpus is assumed small; no indexing.
type Matcher struct {
	store Store
	dim   int
}

// NewMatcher creates a matcher over the given store. dim is the deployment's
// fixed embedding dimension; zero disables the probe dimension precheck.
func NewMatcher(store Store, dim int) *Matcher {
	return &Matcher{store: store, dim: dim}
}

// Match compares probe against a snapshot of the verified corpus and returns
// the closest owner when the distance is within threshold (inclusive).
// Ties on distance resolve to the smallest encoding id. Identical corpus and
// probe always yield identical results.
func (m *Matcher) Match(ctx context.Context, probe []float64, threshold float64) (MatchResult, error) {
	corpus, err := m.store.ListVerified(ctx)
	if err != nil {
		return MatchResult{}, fmt.Errorf("load corpus: %w", err)
	}
	if len(corpus) == 0 {
		// An empty corpus can never match; the probe's shape is irrelevant.
		return MatchResult{Recognized: false, Reason: ReasonEmptyCorpus}, nil
	}
	if m.dim > 0 && len(probe) != m.dim {
		return MatchResult{}, &DimensionError{Want: m.dim, Got: len(probe)}
	}

	best := -1
	bestDist := math.Inf(1)
	for i := range corpus {
		if len(corpus[i].Vector) != len(probe) {
			return MatchResult{}, &DimensionError{Want: len(probe), Got: len(corpus[i].Vector)}
		}
		d := euclidean(probe, corpus[i].Vector)
		// Strict less-than keeps the first (smallest id) on equal distances;
		// the store contract orders the corpus by id.
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	if bestDist > threshold {
		return MatchResult{
			Recognized: false,
			Distance:   bestDist,
			Reason:     ReasonNotRecognized,
		}, nil
	}

	return MatchResult{
		Recognized: true,
		OwnerID:    corpus[best].OwnerID,
		EncodingID: corpus[best].ID,
		Confidence: clamp01(1 - bestDist),
		Distance:   bestDist,
	}, nil
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
