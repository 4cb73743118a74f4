package attendance

import (
	"strings"
	"time"
)

const (
	// DateLayout is the calendar-day form stored in Record.Date.
	DateLayout = "2006-01-02"
	// TimestampLayout is the date+time form stored in Record.Timestamp.
	TimestampLayout = "2006-01-02 15:04:05"

	StatusPresent = "PRESENT"
	StatusAbsent  = "ABSENT"
)

// Record is one attendance fact: a student was present or absent in a unit on a day.
type Record struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId"`
	UnitCode  string `json:"unitCode"`
	Date      string `json:"date"`
	Timestamp string `json:"timestamp"`
	Present   bool   `json:"present"`
}

// Status returns PRESENT or ABSENT.
func (r Record) Status() string {
	if r.Present {
		return StatusPresent
	}
	return StatusAbsent
}

// Time returns the HH:MM part of the timestamp, or "--:--" when there is none.
func (r Record) Time() string {
	if len(r.Timestamp) >= 16 {
		return r.Timestamp[11:16]
	}
	return "--:--"
}

// Student is the read-only view of a registered student.
type Student struct {
	ID              string   `json:"studentId"`
	Name            string   `json:"name"`
	Course          string   `json:"course"`
	RegisteredUnits []string `json:"registeredUnits"`
}

// MaxRegisteredUnits caps how many units a student may register for.
const MaxRegisteredUnits = 8

// IsRegisteredFor reports whether unitCode is among the student's units.
func (s Student) IsRegisteredFor(unitCode string) bool {
	for _, u := range s.RegisteredUnits {
		if u == unitCode {
			return true
		}
	}
	return false
}

func formatDay(t time.Time) string       { return t.Format(DateLayout) }
func formatTimestamp(t time.Time) string { return t.Format(TimestampLayout) }

// parseMarkDate accepts "YYYY-MM-DD" optionally followed by " HH:MM" or " HH:MM:SS"
// and returns the day part plus a full timestamp when a time was given.
func parseMarkDate(date string) (day, timestamp string, ok bool) {
	date = strings.TrimSpace(date)
	dayPart, timePart, hasTime := strings.Cut(date, " ")
	if _, err := time.Parse(DateLayout, dayPart); err != nil {
		return "", "", false
	}
	if !hasTime {
		return dayPart, "", true
	}
	timePart = strings.TrimSpace(timePart)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, timePart); err == nil {
			return dayPart, dayPart + " " + t.Format("15:04:05"), true
		}
	}
	return "", "", false
}
