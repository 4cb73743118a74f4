package attendance

import (
	"context"
	"log"
	"strings"
)

// Status messages returned by StatusForStudent.
const (
	StatusMsgInvalid       = "Invalid student or unit information"
	StatusMsgAlreadyMarked = "Attendance already marked for today"
	StatusMsgActive        = "Attendance marking is active - Click to mark"
	StatusMsgInactive      = "Attendance marking not active"
)

// StudentStatus is what a student's page polls to decide whether to show the mark button.
type StudentStatus struct {
	Active        bool   `json:"active"`
	CanMark       bool   `json:"can_mark"`
	AlreadyMarked bool   `json:"already_marked"`
	Message       string `json:"message"`
	RemainingTime string `json:"remaining_time"`
}

// Dashboard summarizes a unit for its lecturer.
type Dashboard struct {
	UnitCode      string  `json:"unit_code"`
	TotalStudents int     `json:"total_students"`
	PresentToday  int     `json:"present_today"`
	TodayRate     float64 `json:"today_rate"`
	OverallRate   float64 `json:"overall_rate"`
	TotalRecords  int     `json:"total_records"`
	IsActive      bool    `json:"is_active"`
}

// StatusForStudent combines session state and today's marks for one student.
// It only mutates state through the lazy eviction of IsOpenForMarking.
func (e *Engine) StatusForStudent(ctx context.Context, studentID, unitCode string) StudentStatus {
	status := StudentStatus{Message: StatusMsgInactive, RemainingTime: "00:00"}
	studentID, unitCode = strings.TrimSpace(studentID), strings.TrimSpace(unitCode)
	if studentID == "" || unitCode == "" {
		status.Message = StatusMsgInvalid
		return status
	}
	studentID = e.canonicalID(ctx, studentID)

	e.mu.Lock()
	open, p := e.openLocked(unitCode)
	already := e.ledger.HasRecordForDay(studentID, unitCode, formatDay(e.now()), true)
	remaining := e.registry.RemainingTime(unitCode)
	e.unlock(ctx, p)

	status.Active = open
	status.AlreadyMarked = already
	switch {
	case already:
		status.Message = StatusMsgAlreadyMarked
	case open:
		status.CanMark = true
		status.Message = StatusMsgActive
		status.RemainingTime = remaining
	}
	return status
}

// Statistics returns record counts and the attendance rate for a unit.
func (e *Engine) Statistics(unitCode string) Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Statistics(strings.TrimSpace(unitCode))
}

// DashboardSummary reports roster size, today's turnout and the overall rate for a unit.
func (e *Engine) DashboardSummary(ctx context.Context, unitCode string) Dashboard {
	unitCode = strings.TrimSpace(unitCode)
	d := Dashboard{UnitCode: unitCode}
	if unitCode == "" {
		return d
	}
	students, err := e.roster.StudentsRegisteredFor(ctx, unitCode)
	if err != nil {
		log.Printf("roster for %s unavailable: %v", unitCode, err)
	}
	d.TotalStudents = len(students)

	e.mu.Lock()
	open, p := e.openLocked(unitCode)
	all := e.ledger.Statistics(unitCode)
	for _, r := range e.ledger.QueryByUnit(unitCode, formatDay(e.now())) {
		if r.Present {
			d.PresentToday++
		}
	}
	e.unlock(ctx, p)

	d.IsActive = open
	d.TotalRecords = all.Total
	d.OverallRate = all.Rate
	d.TodayRate = percent(d.PresentToday, d.TotalStudents)
	return d
}

// StudentHistory returns a student's records, optionally for one unit only.
func (e *Engine) StudentHistory(studentID, unitCode string) []Record {
	if strings.TrimSpace(studentID) == "" {
		return []Record{}
	}
	return e.Records(Filter{StudentID: strings.TrimSpace(studentID), UnitCode: strings.TrimSpace(unitCode)})
}

// UnitRecords returns a unit's records, optionally restricted to a date prefix.
func (e *Engine) UnitRecords(unitCode, dateFilter string) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.QueryByUnit(strings.TrimSpace(unitCode), strings.TrimSpace(dateFilter))
}

// StudentRecords returns every record for a student.
func (e *Engine) StudentRecords(studentID string) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.QueryByStudent(strings.TrimSpace(studentID))
}

// Records returns the records matching f, most recent first.
func (e *Engine) Records(f Filter) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Query(f)
}
