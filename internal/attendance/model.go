package attendance

import (
	"fmt"
	"time"
)

// Status is the canonical attendance state for a day.
type Status string

const (
	StatusPresent Status = "Present"
	StatusLate    Status = "Late"
	StatusAbsent  Status = "Absent"
	StatusLeave   Status = "Leave"
)

// ParseStatus normalizes a textual status to the canonical enum. Status
// strings are interpreted exactly once, at the system boundary.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPresent, StatusLate, StatusAbsent, StatusLeave:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown attendance status %q", s)
}

// Source tags how a record entered the ledger.
type Source string

const (
	SourceBiometric Source = "biometric"
	SourceManual    Source = "manual"
	SourceAPI       Source = "api"
)

// ParseSource normalizes a textual source tag.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceBiometric, SourceManual, SourceAPI:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown attendance source %q", s)
}

// Verification is the review state of a ledger entry.
type Verification string

const (
	VerificationPending  Verification = "pending"
	VerificationVerified Verification = "verified"
	VerificationRejected Verification = "rejected"
)

// DayFormat is the calendar-day key layout.
const DayFormat = "2006-01-02"

// DayOf returns the calendar day of t in t's location.
func DayOf(t time.Time) string {
	return t.Format(DayFormat)
}

// Record is one ledger entry. At most one record exists per (owner, day).
type Record struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"owner_id"`
	Day          string       `json:"day"`
	Timestamp    time.Time    `json:"timestamp"`
	Status       Status       `json:"status"`
	Location     string       `json:"location,omitempty"`
	Source       Source       `json:"source"`
	EncodingID   *string      `json:"encoding_id,omitempty"`
	Confidence   *float64     `json:"confidence,omitempty"`
	Distance     *float64     `json:"distance,omitempty"`
	Verification Verification `json:"verification"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    *time.Time   `json:"updated_at,omitempty"`
}

// DeriveStatus maps an arrival clock to Present or Late against the
// configured cutoff. Arriving at exactly the cutoff counts as on-time.
func DeriveStatus(clock time.Time, cutoff time.Duration) Status {
	elapsed := time.Duration(clock.Hour())*time.Hour +
		time.Duration(clock.Minute())*time.Minute +
		time.Duration(clock.Second())*time.Second +
		time.Duration(clock.Nanosecond())
	if elapsed > cutoff {
		return StatusLate
	}
	return StatusPresent
}
