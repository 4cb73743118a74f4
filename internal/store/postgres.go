package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"unitattendance/internal/attendance"
)

// AttendanceRepository persists the attendance ledger in Postgres.
type AttendanceRepository struct {
	db *sql.DB
}

// NewAttendanceRepository creates a repo.
func NewAttendanceRepository(db *sql.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// LoadAttendanceRecords returns every stored record.
func (r *AttendanceRepository) LoadAttendanceRecords(ctx context.Context) ([]attendance.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, unit_code, date, timestamp, present
		FROM attendance_records
		ORDER BY date, timestamp
	`)
	if err != nil {
		return nil, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	var res []attendance.Record
	for rows.Next() {
		var rec attendance.Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.UnitCode, &rec.Date, &rec.Timestamp, &rec.Present); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// SaveAttendanceRecords replaces the stored ledger in one transaction.
func (r *AttendanceRepository) SaveAttendanceRecords(ctx context.Context, records []attendance.Record) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM attendance_records`); err != nil {
		return fmt.Errorf("clear attendance records: %w", err)
	}
	for _, rec := range records {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO attendance_records (id, student_id, unit_code, date, timestamp, present)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rec.ID, rec.StudentID, rec.UnitCode, rec.Date, rec.Timestamp, rec.Present); err != nil {
			return fmt.Errorf("insert attendance record %s: %w", rec.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RosterRepository reads students and their unit registrations from Postgres.
type RosterRepository struct {
	db *sql.DB
}

// NewRosterRepository creates a roster backed by the students tables.
func NewRosterRepository(db *sql.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// Student looks a student up by ID, ignoring case.
func (r *RosterRepository) Student(ctx context.Context, studentID string) (attendance.Student, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT s.student_id, s.name, s.course, COALESCE(string_agg(u.unit_code, ',' ORDER BY u.unit_code), '')
		FROM students s
		LEFT JOIN student_units u ON u.student_id = s.student_id
		WHERE UPPER(s.student_id) = UPPER($1)
		GROUP BY s.student_id, s.name, s.course
	`, studentID)
	st, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.Student{}, false, nil
		}
		return attendance.Student{}, false, err
	}
	return st, true, nil
}

// StudentsRegisteredFor lists the unit's roster ordered by student ID.
func (r *RosterRepository) StudentsRegisteredFor(ctx context.Context, unitCode string) ([]attendance.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.student_id, s.name, s.course, COALESCE(string_agg(a.unit_code, ',' ORDER BY a.unit_code), '')
		FROM students s
		JOIN student_units u ON u.student_id = s.student_id AND u.unit_code = $1
		LEFT JOIN student_units a ON a.student_id = s.student_id
		GROUP BY s.student_id, s.name, s.course
		ORDER BY s.student_id
	`, unitCode)
	if err != nil {
		return nil, fmt.Errorf("query roster for %s: %w", unitCode, err)
	}
	defer rows.Close()

	var res []attendance.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

// IsStudentRegistered reports whether the student is registered for the unit.
func (r *RosterRepository) IsStudentRegistered(ctx context.Context, studentID, unitCode string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM student_units WHERE UPPER(student_id) = UPPER($1) AND unit_code = $2
		)
	`, studentID, unitCode).Scan(&ok)
	return ok, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(s scanner) (attendance.Student, error) {
	var (
		st    attendance.Student
		units string
	)
	if err := s.Scan(&st.ID, &st.Name, &st.Course, &units); err != nil {
		return attendance.Student{}, err
	}
	if units != "" {
		st.RegisteredUnits = strings.Split(units, ",")
	}
	return st, nil
}

// SummaryRepository stores closed-session summaries.
type SummaryRepository struct {
	db *sql.DB
}

// NewSummaryRepository creates a repo.
func NewSummaryRepository(db *sql.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Save writes a summary; replays of the same summary are ignored.
func (r *SummaryRepository) Save(ctx context.Context, s attendance.SessionSummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_summaries (id, unit_code, started_at, ended_at, closed_at, present, absent_marked, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, s.ID, s.UnitCode, s.StartTime, s.EndTime, s.ClosedAt, s.Present, s.AbsentMarked, s.Reason)
	return err
}

// ListByUnit returns the unit's most recent summaries.
func (r *SummaryRepository) ListByUnit(ctx context.Context, unitCode string, limit int) ([]attendance.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, unit_code, started_at, ended_at, closed_at, present, absent_marked, reason
		FROM session_summaries
		WHERE unit_code = $1
		ORDER BY closed_at DESC
		LIMIT $2
	`, unitCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []attendance.SessionSummary{}
	for rows.Next() {
		var s attendance.SessionSummary
		if err := rows.Scan(&s.ID, &s.UnitCode, &s.StartTime, &s.EndTime, &s.ClosedAt, &s.Present, &s.AbsentMarked, &s.Reason); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
