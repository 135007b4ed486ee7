package attendance

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"faceattend/internal/face"
)

var (
	matchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceattend_match_attempts_total",
			Help: "Biometric match attempts by result.",
		},
		[]string{"result"},
	)
	marksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceattend_marks_total",
			Help: "Attendance mark attempts by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
)

// CheckInResult is the outcome of a biometric check-in. Mark is nil when the
// probe was not recognized; Match.Reason then says why.
type CheckInResult struct {
	Match face.MatchResult
	Mark  *MarkResult
}

// Service orchestrates matcher output into ledger writes.
type Service struct {
	matcher   *face.Matcher
	ledger    *Ledger
	threshold float64
}

// NewService creates a service. threshold is the match acceptance boundary.
func NewService(matcher *face.Matcher, ledger *Ledger, threshold float64) *Service {
	return &Service{matcher: matcher, ledger: ledger, threshold: threshold}
}

// Ledger exposes the underlying ledger for admin operations.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// CheckInBiometric resolves the probe against the verified corpus and, on a
// match, marks attendance for the resolved owner with source=biometric.
// A non-nil threshold overrides the configured acceptance boundary for this
// call only; strict kiosks tighten matching per request.
func (s *Service) CheckInBiometric(ctx context.Context, probe []float64, threshold *float64) (CheckInResult, error) {
	th := s.threshold
	if threshold != nil {
		th = *threshold
	}
	match, err := s.matcher.Match(ctx, probe, th)
	if err != nil {
		matchesTotal.WithLabelValues("error").Inc()
		return CheckInResult{}, err
	}
	if !match.Recognized {
		matchesTotal.WithLabelValues("rejected").Inc()
		return CheckInResult{Match: match}, nil
	}
	matchesTotal.WithLabelValues("accepted").Inc()

	mark, err := s.ledger.Mark(ctx, MarkRequest{
		OwnerID:    match.OwnerID,
		Source:     SourceBiometric,
		EncodingID: &match.EncodingID,
		Confidence: &match.Confidence,
		Distance:   &match.Distance,
	})
	if err != nil {
		marksTotal.WithLabelValues(string(SourceBiometric), "error").Inc()
		return CheckInResult{}, fmt.Errorf("biometric check-in for %s: %w", match.OwnerID, err)
	}
	marksTotal.WithLabelValues(string(SourceBiometric), markOutcome(mark)).Inc()
	return CheckInResult{Match: match, Mark: &mark}, nil
}

// CheckInSession marks attendance for an identity already established by a
// validated session credential.
func (s *Service) CheckInSession(ctx context.Context, ownerID, location string) (MarkResult, error) {
	mark, err := s.ledger.Mark(ctx, MarkRequest{
		OwnerID:  ownerID,
		Source:   SourceAPI,
		Location: location,
	})
	if err != nil {
		marksTotal.WithLabelValues(string(SourceAPI), "error").Inc()
		return MarkResult{}, err
	}
	marksTotal.WithLabelValues(string(SourceAPI), markOutcome(mark)).Inc()
	return mark, nil
}

// BulkMark marks many owners for one day on behalf of an administrator.
func (s *Service) BulkMark(ctx context.Context, owners []string, day string, status Status, location string) []BulkOutcome {
	outcomes := s.ledger.BulkMark(ctx, owners, day, status, location, SourceManual)
	for _, o := range outcomes {
		marksTotal.WithLabelValues(string(SourceManual), o.Outcome).Inc()
	}
	return outcomes
}

func markOutcome(m MarkResult) string {
	if m.Created {
		return "created"
	}
	return "conflict"
}
