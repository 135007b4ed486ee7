package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no record exists for the given id.
var ErrNotFound = errors.New("attendance record not found")

// QueryFilter narrows a ledger query. Zero values mean "any".
type QueryFilter struct {
	OwnerID    string
	From       string // inclusive day, DayFormat
	To         string // inclusive day, DayFormat
	Department string
	Limit      int
	Offset     int
}

// RecordUpdate carries the amendable fields of a record. Nil means unchanged.
type RecordUpdate struct {
	Status   *Status
	Location *string
}

// DepartmentSummary aggregates one department's presence for a day.
type DepartmentSummary struct {
	Department string  `json:"department"`
	Total      int     `json:"total_employees"`
	Present    int     `json:"present"`
	Absent     int     `json:"absent"`
	Rate       float64 `json:"attendance_rate"`
}

// Store is the durable backing of the ledger. Insert must be atomic against
// the (owner, day) uniqueness invariant: of any set of concurrent inserts for
// one key, exactly one reports created and the rest surface the existing row.
type Store interface {
	Insert(ctx context.Context, rec *Record) (created bool, existing *Record, err error)
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, id string, upd RecordUpdate) (*Record, error)
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, filter QueryFilter) ([]Record, error)
	Summary(ctx context.Context, day string) ([]DepartmentSummary, error)
}

// MarkResult reports the outcome of a mark attempt. When Created is false
// the call conflicted and Record holds the pre-existing entry for the day.
type MarkResult struct {
	Created bool
	Record  Record
}

// Bulk outcome codes, one per owner.
const (
	BulkMarked        = "marked"
	BulkAlreadyMarked = "already_marked"
	BulkFailed        = "failed"
)

// BulkOutcome is the per-owner result of a bulk mark. Outcomes are
// independent: one owner failing never rolls back another's write.
type BulkOutcome struct {
	OwnerID string `json:"owner_id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// MarkRequest describes a single mark attempt.
type MarkRequest struct {
	OwnerID    string
	Source     Source
	Location   string
	EncodingID *string
	Confidence *float64
	Distance   *float64
}

// Ledger enforces the one-record-per-owner-per-day invariant and derives
// Present/Late from the configured cutoff.
type Ledger struct {
	store           Store
	cutoff          time.Duration
	defaultLocation string
	now             func() time.Time
}

// NewLedger creates a ledger. cutoff is the late boundary as an offset from
// midnight; now supplies the clock and defaults to time.Now.
func NewLedger(store Store, cutoff time.Duration, defaultLocation string, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, cutoff: cutoff, defaultLocation: defaultLocation, now: now}
}

// Mark records arrival for today. The status is Present when the clock is at
// or before the cutoff, Late otherwise. A second mark for the same day
// returns the existing record with Created=false.
func (l *Ledger) Mark(ctx context.Context, req MarkRequest) (MarkResult, error) {
	if req.OwnerID == "" {
		return MarkResult{}, errors.New("owner id required")
	}
	now := l.now()
	location := req.Location
	if location == "" {
		location = l.defaultLocation
	}
	rec := Record{
		OwnerID:      req.OwnerID,
		Day:          DayOf(now),
		Timestamp:    now,
		Status:       DeriveStatus(now, l.cutoff),
		Location:     location,
		Source:       req.Source,
		EncodingID:   req.EncodingID,
		Confidence:   req.Confidence,
		Distance:     req.Distance,
		Verification: VerificationPending,
	}
	created, existing, err := l.store.Insert(ctx, &rec)
	if err != nil {
		return MarkResult{}, fmt.Errorf("mark %s/%s: %w", req.OwnerID, rec.Day, err)
	}
	if !created {
		return MarkResult{Created: false, Record: *existing}, nil
	}
	return MarkResult{Created: true, Record: rec}, nil
}

// BulkMark records the given status for every owner on one day. Each owner's
// outcome is reported independently; partial success is the expected result.
func (l *Ledger) BulkMark(ctx context.Context, owners []string, day string, status Status, location string, source Source) []BulkOutcome {
	if location == "" {
		location = l.defaultLocation
	}
	outcomes := make([]BulkOutcome, 0, len(owners))
	for _, owner := range owners {
		if owner == "" {
			outcomes = append(outcomes, BulkOutcome{OwnerID: owner, Outcome: BulkFailed, Error: "owner id required"})
			continue
		}
		rec := Record{
			OwnerID:      owner,
			Day:          day,
			Timestamp:    l.now(),
			Status:       status,
			Location:     location,
			Source:       source,
			Verification: VerificationPending,
		}
		created, _, err := l.store.Insert(ctx, &rec)
		switch {
		case err != nil:
			outcomes = append(outcomes, BulkOutcome{OwnerID: owner, Outcome: BulkFailed, Error: err.Error()})
		case !created:
			outcomes = append(outcomes, BulkOutcome{OwnerID: owner, Outcome: BulkAlreadyMarked})
		default:
			outcomes = append(outcomes, BulkOutcome{OwnerID: owner, Outcome: BulkMarked})
		}
	}
	return outcomes
}

// Update amends status and/or location of an existing record. No uniqueness
// re-check is needed: the (owner, day) key never changes.
func (l *Ledger) Update(ctx context.Context, id string, upd RecordUpdate) (*Record, error) {
	return l.store.Update(ctx, id, upd)
}

// Delete removes a record, freeing its (owner, day) slot for a future mark.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	return l.store.Delete(ctx, id)
}

// Query returns records matching the filter, newest day first.
func (l *Ledger) Query(ctx context.Context, filter QueryFilter) ([]Record, error) {
	return l.store.Query(ctx, filter)
}

// TodaySummary aggregates today's presence per department.
func (l *Ledger) TodaySummary(ctx context.Context) ([]DepartmentSummary, error) {
	return l.store.Summary(ctx, DayOf(l.now()))
}
