package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists the ledger in Postgres. The (user_id, date_only)
// unique constraint is the uniqueness guard: Insert relies on
// ON CONFLICT DO NOTHING so check and insert are a single atomic statement.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, user_id, date_only, occurred_at, status, location, source,
	encoding_id, recognition_confidence, recognition_distance, verification_status, created_at, updated_at`

// Insert writes a new record unless the (owner, day) slot is taken. Exactly
// one of any set of concurrent inserts for the same key observes created.
func (r *Repository) Insert(ctx context.Context, rec *Record) (bool, *Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, user_id, date_only, occurred_at, status, location, source,
			encoding_id, recognition_confidence, recognition_distance, verification_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (user_id, date_only) DO NOTHING
		RETURNING created_at
	`, rec.ID, rec.OwnerID, rec.Day, rec.Timestamp, rec.Status, rec.Location, rec.Source,
		rec.EncodingID, rec.Confidence, rec.Distance, rec.Verification)
	err := row.Scan(&rec.CreatedAt)
	if err == nil {
		return true, nil, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, nil, fmt.Errorf("insert attendance record: %w", err)
	}

	existing, err := r.getByKey(ctx, rec.OwnerID, rec.Day)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The conflicting row was deleted between our insert and read.
			return false, nil, fmt.Errorf("attendance slot for %s/%s changed concurrently", rec.OwnerID, rec.Day)
		}
		return false, nil, err
	}
	return false, existing, nil
}

// Get returns a single record by id.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records WHERE id = $1
	`, id)
	return scanRecord(row)
}

func (r *Repository) getByKey(ctx context.Context, ownerID, day string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records WHERE user_id = $1 AND date_only = $2
	`, ownerID, day)
	return scanRecord(row)
}

// Update amends status and/or location, leaving nil fields untouched.
func (r *Repository) Update(ctx context.Context, id string, upd RecordUpdate) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET status = COALESCE($2, status),
			location = COALESCE($3, location),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+recordColumns+`
	`, id, upd.Status, upd.Location)
	return scanRecord(row)
}

// Delete removes a record, freeing its (owner, day) slot.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Query returns records matching the filter, newest day first. The
// department filter joins the user directory.
func (r *Repository) Query(ctx context.Context, filter QueryFilter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + prefixColumns("a") + ` FROM attendance_records a`
	args := []any{}
	clauses := []string{}
	if filter.Department != "" {
		query += ` JOIN users u ON u.id = a.user_id`
		clauses = append(clauses, "u.department = $"+strconv.Itoa(len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.OwnerID != "" {
		clauses = append(clauses, "a.user_id = $"+strconv.Itoa(len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.From != "" {
		clauses = append(clauses, "a.date_only >= $"+strconv.Itoa(len(args)+1))
		args = append(args, filter.From)
	}
	if filter.To != "" {
		clauses = append(clauses, "a.date_only <= $"+strconv.Itoa(len(args)+1))
		args = append(args, filter.To)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY a.date_only DESC, a.occurred_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	return res, rows.Err()
}

// Summary aggregates one day's presence per active department.
func (r *Repository) Summary(ctx context.Context, day string) ([]DepartmentSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.department,
			COUNT(u.id),
			COUNT(a.id) FILTER (WHERE a.status IN ('Present', 'Late'))
		FROM users u
		LEFT JOIN attendance_records a ON a.user_id = u.id AND a.date_only = $1
		WHERE u.status = 'Active'
		GROUP BY u.department
		ORDER BY u.department
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DepartmentSummary
	for rows.Next() {
		var s DepartmentSummary
		if err := rows.Scan(&s.Department, &s.Total, &s.Present); err != nil {
			return nil, err
		}
		s.Absent = s.Total - s.Present
		if s.Total > 0 {
			s.Rate = float64(s.Present) / float64(s.Total) * 100
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var day time.Time
	var location sql.NullString
	err := s.Scan(&rec.ID, &rec.OwnerID, &day, &rec.Timestamp, &rec.Status, &location, &rec.Source,
		&rec.EncodingID, &rec.Confidence, &rec.Distance, &rec.Verification, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Day = day.Format(DayFormat)
	rec.Location = location.String
	return &rec, nil
}

func prefixColumns(alias string) string {
	return alias + `.id, ` + alias + `.user_id, ` + alias + `.date_only, ` + alias + `.occurred_at, ` +
		alias + `.status, ` + alias + `.location, ` + alias + `.source, ` + alias + `.encoding_id, ` +
		alias + `.recognition_confidence, ` + alias + `.recognition_distance, ` +
		alias + `.verification_status, ` + alias + `.created_at, ` + alias + `.updated_at`
}
