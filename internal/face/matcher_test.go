package face

import (
	"context"
	"errors"
	"math"
	"testing"
)

func seedStore(t *testing.T, embeddings ...Embedding) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	for i := range embeddings {
		if err := store.Add(context.Background(), &embeddings[i]); err != nil {
			t.Fatalf("seed embedding %s: %v", embeddings[i].ID, err)
		}
	}
	return store
}

// vec builds a 3-dim vector at the given euclidean distance from the origin.
func vec(distance float64) []float64 {
	return []float64{distance, 0, 0}
}

var origin = []float64{0, 0, 0}

func TestMatchEmptyCorpus(t *testing.T) {
	m := NewMatcher(NewMemoryStore(), 3)

	res, err := m.Match(context.Background(), origin, 0.6)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if res.Recognized {
		t.Error("empty corpus must never recognize")
	}
	if res.Reason != ReasonEmptyCorpus {
		t.Errorf("reason = %q, want %q", res.Reason, ReasonEmptyCorpus)
	}
}

func TestMatchEmptyCorpusIgnoresProbeShape(t *testing.T) {
	// Nobody enrolled: the answer is "empty corpus" even for a probe that
	// would otherwise fail the dimension precheck.
	m := NewMatcher(NewMemoryStore(), 128)

	res, err := m.Match(context.Background(), []float64{1, 2}, 0.6)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if res.Recognized {
		t.Error("empty corpus must never recognize")
	}
	if res.Reason != ReasonEmptyCorpus {
		t.Errorf("reason = %q, want %q", res.Reason, ReasonEmptyCorpus)
	}
}

func TestMatchDimensionMismatch(t *testing.T) {
	store := seedStore(t, Embedding{ID: "enc-1", OwnerID: "user-1", Vector: vec(0.5), Status: StatusVerified})
	m := NewMatcher(store, 3)

	_, err := m.Match(context.Background(), []float64{1, 2}, 0.6)
	if err == nil {
		t.Fatal("expected error for short probe")
	}
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("error = %v, want DimensionError", err)
	}
	if dimErr.Want != 3 || dimErr.Got != 2 {
		t.Errorf("dims = want %d got %d, expected want 3 got 2", dimErr.Want, dimErr.Got)
	}
}

func TestMatchThresholdBoundary(t *testing.T) {
	// Distance 0.5 is exactly representable, so the boundary comparison is exact.
	store := seedStore(t, Embedding{ID: "enc-1", OwnerID: "user-1", Vector: vec(0.5), Status: StatusVerified})
	m := NewMatcher(store, 3)

	tests := []struct {
		name      string
		threshold float64
		want      bool
	}{
		{"distance equal to threshold is accepted", 0.5, true},
		{"distance just above threshold is rejected", 0.5 - 1e-9, false},
		{"distance well below threshold is accepted", 0.9, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Match(context.Background(), origin, tt.threshold)
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			if res.Recognized != tt.want {
				t.Errorf("recognized = %v, want %v (distance %g, threshold %g)",
					res.Recognized, tt.want, res.Distance, tt.threshold)
			}
			if !tt.want && res.Reason != ReasonNotRecognized {
				t.Errorf("reason = %q, want %q", res.Reason, ReasonNotRecognized)
			}
		})
	}
}

func TestMatchPicksNearestNeighbor(t *testing.T) {
	store := seedStore(t,
		Embedding{ID: "enc-x", OwnerID: "user-x", Vector: vec(0.55), Status: StatusVerified},
		Embedding{ID: "enc-y", OwnerID: "user-y", Vector: vec(0.70), Status: StatusVerified},
	)
	m := NewMatcher(store, 3)

	res, err := m.Match(context.Background(), origin, 0.6)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !res.Recognized {
		t.Fatalf("expected recognition, got reason %q", res.Reason)
	}
	if res.OwnerID != "user-x" || res.EncodingID != "enc-x" {
		t.Errorf("matched %s/%s, want user-x/enc-x", res.OwnerID, res.EncodingID)
	}
	if math.Abs(res.Confidence-0.45) > 1e-9 {
		t.Errorf("confidence = %g, want 0.45", res.Confidence)
	}
	if math.Abs(res.Distance-0.55) > 1e-9 {
		t.Errorf("distance = %g, want 0.55", res.Distance)
	}
}

func TestMatchTieBreaksOnSmallestEncodingID(t *testing.T) {
	// Both embeddings sit at exactly distance 0.5 from the probe.
	store := seedStore(t,
		Embedding{ID: "enc-b", OwnerID: "user-b", Vector: []float64{-0.5, 0, 0}, Status: StatusVerified},
		Embedding{ID: "enc-a", OwnerID: "user-a", Vector: []float64{0.5, 0, 0}, Status: StatusVerified},
	)
	m := NewMatcher(store, 3)

	res, err := m.Match(context.Background(), origin, 0.6)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if res.EncodingID != "enc-a" {
		t.Errorf("tie resolved to %s, want enc-a", res.EncodingID)
	}
}

func TestMatchIgnoresUnverifiedEmbeddings(t *testing.T) {
	store := seedStore(t,
		Embedding{ID: "enc-1", OwnerID: "user-1", Vector: vec(0.1), Status: StatusPending},
		Embedding{ID: "enc-2", OwnerID: "user-2", Vector: vec(0.1), Status: StatusRejected},
	)
	m := NewMatcher(store, 3)

	res, err := m.Match(context.Background(), origin, 0.6)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if res.Recognized {
		t.Error("pending/rejected embeddings must not participate in matching")
	}
	if res.Reason != ReasonEmptyCorpus {
		t.Errorf("reason = %q, want %q", res.Reason, ReasonEmptyCorpus)
	}
}

func TestMatchDeterminism(t *testing.T) {
	store := seedStore(t,
		Embedding{ID: "enc-1", OwnerID: "user-1", Vector: []float64{0.1, 0.2, 0.3}, Status: StatusVerified},
		Embedding{ID: "enc-2", OwnerID: "user-2", Vector: []float64{0.3, 0.1, 0.2}, Status: StatusVerified},
		Embedding{ID: "enc-3", OwnerID: "user-3", Vector: []float64{0.2, 0.3, 0.1}, Status: StatusVerified},
	)
	m := NewMatcher(store, 3)
	probe := []float64{0.15, 0.25, 0.2}

	first, err := m.Match(context.Background(), probe, 0.6)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	for i := 0; i < 50; i++ {
		got, err := m.Match(context.Background(), probe, 0.6)
		if err != nil {
			t.Fatalf("match %d: %v", i, err)
		}
		if got != first {
			t.Fatalf("call %d returned %+v, first call returned %+v", i, got, first)
		}
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float64{0.125, -3.5, 0, math.Pi}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d = %g, want %g", i, out[i], in[i])
		}
	}
	if _, err := DecodeVector(make([]byte, 12)); err == nil {
		t.Error("expected error for truncated blob")
	}
}
