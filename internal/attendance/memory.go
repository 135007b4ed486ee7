package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and dev mode.
// The single lock around the check-and-insert in Insert gives the same
// atomicity as the Postgres unique constraint.
type MemoryStore struct {
	mu          sync.Mutex
	records     map[string]*Record // by record id
	byKey       map[string]string  // owner|day -> record id
	departments map[string]string  // owner -> department, for Query/Summary
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]*Record),
		byKey:       make(map[string]string),
		departments: make(map[string]string),
	}
}

// SetOwnerDepartment registers the department of an owner so department
// filters and summaries have a directory to consult.
func (s *MemoryStore) SetOwnerDepartment(ownerID, department string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[ownerID] = department
}

func key(ownerID, day string) string { return ownerID + "|" + day }

// Insert writes a new record unless the (owner, day) slot is taken.
func (s *MemoryStore) Insert(_ context.Context, rec *Record) (bool, *Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byKey[key(rec.OwnerID, rec.Day)]; ok {
		existing := *s.records[id]
		return false, &existing, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	cp := *rec
	s.records[rec.ID] = &cp
	s.byKey[key(rec.OwnerID, rec.Day)] = rec.ID
	return true, nil, nil
}

// Get returns a single record by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Update amends status and/or location, leaving nil fields untouched.
func (s *MemoryStore) Update(_ context.Context, id string, upd RecordUpdate) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.Location != nil {
		rec.Location = *upd.Location
	}
	now := time.Now().UTC()
	rec.UpdatedAt = &now
	cp := *rec
	return &cp, nil
}

// Delete removes a record, freeing its (owner, day) slot.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byKey, key(rec.OwnerID, rec.Day))
	delete(s.records, id)
	return nil
}

// Query returns records matching the filter, newest day first.
func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.records {
		if filter.OwnerID != "" && rec.OwnerID != filter.OwnerID {
			continue
		}
		if filter.From != "" && rec.Day < filter.From {
			continue
		}
		if filter.To != "" && rec.Day > filter.To {
			continue
		}
		if filter.Department != "" && s.departments[rec.OwnerID] != filter.Department {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day > out[j].Day
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Summary aggregates one day's presence per registered department.
func (s *MemoryStore) Summary(_ context.Context, day string) ([]DepartmentSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := make(map[string]*DepartmentSummary)
	for owner, dept := range s.departments {
		sum, ok := totals[dept]
		if !ok {
			sum = &DepartmentSummary{Department: dept}
			totals[dept] = sum
		}
		sum.Total++
		if id, ok := s.byKey[key(owner, day)]; ok {
			if st := s.records[id].Status; st == StatusPresent || st == StatusLate {
				sum.Present++
			}
		}
	}
	var out []DepartmentSummary
	for _, sum := range totals {
		sum.Absent = sum.Total - sum.Present
		if sum.Total > 0 {
			sum.Rate = float64(sum.Present) / float64(sum.Total) * 100
		}
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Department < out[j].Department })
	return out, nil
}
