package attendance

import (
	"context"
	"time"
)

// Gateway persists the full record set. Saves replace everything previously stored.
type Gateway interface {
	LoadAttendanceRecords(ctx context.Context) ([]Record, error)
	SaveAttendanceRecords(ctx context.Context, records []Record) error
}

// RosterProvider answers who is registered for what. A missing student is
// reported as found == false with a nil error.
type RosterProvider interface {
	Student(ctx context.Context, studentID string) (Student, bool, error)
	StudentsRegisteredFor(ctx context.Context, unitCode string) ([]Student, error)
	IsStudentRegistered(ctx context.Context, studentID, unitCode string) (bool, error)
}

// Close reasons carried by SessionSummary.
const (
	ReasonEnded   = "ended"
	ReasonExpired = "expired"
)

// SessionSummary describes a session after its absences were reconciled.
type SessionSummary struct {
	ID           string    `json:"id"`
	UnitCode     string    `json:"unit_code"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	ClosedAt     time.Time `json:"closed_at"`
	Present      int       `json:"present"`
	AbsentMarked int       `json:"absent_marked"`
	Reason       string    `json:"reason"`
}

// Notifier is told about every closed session. Errors are logged by the engine.
type Notifier interface {
	SessionClosed(ctx context.Context, summary SessionSummary) error
}

type nopNotifier struct{}

func (nopNotifier) SessionClosed(context.Context, SessionSummary) error { return nil }
