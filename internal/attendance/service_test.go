package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"faceattend/internal/face"
)

func newTestService(t *testing.T, embeddings ...face.Embedding) (*Service, *MemoryStore) {
	t.Helper()
	faces := face.NewMemoryStore()
	for i := range embeddings {
		if err := faces.Add(context.Background(), &embeddings[i]); err != nil {
			t.Fatalf("seed embedding: %v", err)
		}
	}
	store := NewMemoryStore()
	ledger := NewLedger(store, testCutoff, "Office", func() time.Time {
		return time.Date(2026, 8, 31, 8, 15, 0, 0, time.UTC)
	})
	return NewService(face.NewMatcher(faces, 3), ledger, 0.6), store
}

func TestCheckInBiometricRecognized(t *testing.T) {
	svc, _ := newTestService(t,
		face.Embedding{ID: "enc-1", OwnerID: "user-1", Vector: []float64{0.2, 0, 0}, Status: face.StatusVerified},
	)

	res, err := svc.CheckInBiometric(context.Background(), []float64{0, 0, 0}, nil)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if !res.Match.Recognized {
		t.Fatalf("expected recognition, reason %q", res.Match.Reason)
	}
	if res.Mark == nil || !res.Mark.Created {
		t.Fatal("recognized probe must create a ledger entry")
	}
	rec := res.Mark.Record
	if rec.OwnerID != "user-1" || rec.Source != SourceBiometric {
		t.Errorf("record = %s/%s, want user-1/biometric", rec.OwnerID, rec.Source)
	}
	if rec.EncodingID == nil || *rec.EncodingID != "enc-1" {
		t.Error("record must link the matching encoding")
	}
	if rec.Confidence == nil || rec.Distance == nil {
		t.Error("biometric record must carry confidence and distance")
	}
	if rec.Status != StatusPresent {
		t.Errorf("status = %s, want Present for an 08:15 arrival", rec.Status)
	}
}

func TestCheckInBiometricNotRecognized(t *testing.T) {
	svc, _ := newTestService(t,
		face.Embedding{ID: "enc-1", OwnerID: "user-1", Vector: []float64{5, 0, 0}, Status: face.StatusVerified},
	)

	res, err := svc.CheckInBiometric(context.Background(), []float64{0, 0, 0}, nil)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if res.Match.Recognized || res.Mark != nil {
		t.Error("unrecognized probe must not write to the ledger")
	}
	if res.Match.Reason != face.ReasonNotRecognized {
		t.Errorf("reason = %q, want %q", res.Match.Reason, face.ReasonNotRecognized)
	}
}

func TestCheckInBiometricEmptyCorpus(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.CheckInBiometric(context.Background(), []float64{0, 0, 0}, nil)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if res.Match.Recognized {
		t.Error("empty corpus must never recognize")
	}
	if res.Match.Reason != face.ReasonEmptyCorpus {
		t.Errorf("reason = %q, want %q", res.Match.Reason, face.ReasonEmptyCorpus)
	}
}

func TestCheckInBiometricBadProbe(t *testing.T) {
	svc, _ := newTestService(t,
		face.Embedding{ID: "enc-1", OwnerID: "user-1", Vector: []float64{0.2, 0, 0}, Status: face.StatusVerified},
	)

	_, err := svc.CheckInBiometric(context.Background(), []float64{1}, nil)
	var dimErr *face.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("error = %v, want DimensionError", err)
	}
}

func TestCheckInBiometricThresholdOverride(t *testing.T) {
	// Distance to enc-1 is 0.5: inside the default 0.6, outside a 0.25 override.
	svc, _ := newTestService(t,
		face.Embedding{ID: "enc-1", OwnerID: "user-1", Vector: []float64{0.5, 0, 0}, Status: face.StatusVerified},
	)

	strict := 0.25
	res, err := svc.CheckInBiometric(context.Background(), []float64{0, 0, 0}, &strict)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if res.Match.Recognized {
		t.Error("override threshold 0.25 must reject a distance-0.5 probe")
	}

	res, err = svc.CheckInBiometric(context.Background(), []float64{0, 0, 0}, nil)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if !res.Match.Recognized {
		t.Errorf("default threshold must accept a distance-0.5 probe, reason %q", res.Match.Reason)
	}
}

func TestCheckInSession(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.CheckInSession(context.Background(), "user-9", "Remote")
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if !first.Created || first.Record.Source != SourceAPI || first.Record.Location != "Remote" {
		t.Errorf("record = %+v, want created api record at Remote", first.Record)
	}

	second, err := svc.CheckInSession(context.Background(), "user-9", "")
	if err != nil {
		t.Fatalf("second check-in: %v", err)
	}
	if second.Created {
		t.Error("second session check-in on the same day must conflict")
	}
}
