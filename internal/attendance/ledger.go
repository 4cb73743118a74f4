package attendance

import (
	"math"
	"sort"
	"strings"
)

// Filter narrows ledger queries. Empty fields match everything.
type Filter struct {
	UnitCode  string
	StudentID string
	// Date matches records whose date starts with it.
	Date string
	// Status is PRESENT or ABSENT, case-insensitive.
	Status string
}

func (f Filter) match(r Record) bool {
	if f.UnitCode != "" && r.UnitCode != f.UnitCode {
		return false
	}
	if f.StudentID != "" && !strings.EqualFold(r.StudentID, f.StudentID) {
		return false
	}
	if f.Date != "" && !strings.HasPrefix(r.Date, f.Date) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(r.Status(), f.Status) {
		return false
	}
	return true
}

// Statistics summarizes a unit's records.
type Statistics struct {
	Total   int     `json:"total_records"`
	Present int     `json:"present_count"`
	Absent  int     `json:"absent_count"`
	Rate    float64 `json:"attendance_rate"`
}

// Ledger holds attendance records. Explicit marks supersede same-day records;
// automatic absences only fill gaps. It is not safe for concurrent use.
type Ledger struct {
	records []Record
	version uint64
}

// NewLedger seeds a ledger with previously persisted records.
func NewLedger(records []Record) *Ledger {
	l := &Ledger{records: make([]Record, 0, len(records))}
	l.records = append(l.records, records...)
	return l
}

func sameDay(r Record, studentID, unitCode, day string) bool {
	return r.StudentID == studentID && r.UnitCode == unitCode && strings.HasPrefix(r.Date, day)
}

// UpsertExplicit replaces any record for the same student, unit and day with rec.
func (l *Ledger) UpsertExplicit(rec Record) {
	kept := l.records[:0]
	for _, r := range l.records {
		if !sameDay(r, rec.StudentID, rec.UnitCode, rec.Date) {
			kept = append(kept, r)
		}
	}
	l.records = append(kept, rec)
	l.version++
}

// AppendIfAbsentForDay inserts rec only when no record exists for its student, unit and day.
func (l *Ledger) AppendIfAbsentForDay(rec Record) bool {
	if l.HasRecordForDay(rec.StudentID, rec.UnitCode, rec.Date, false) {
		return false
	}
	l.Append(rec)
	return true
}

// Append adds rec unconditionally.
func (l *Ledger) Append(rec Record) {
	l.records = append(l.records, rec)
	l.version++
}

// HasRecordForDay reports whether a record exists for the triple; presentOnly
// restricts the check to present records.
func (l *Ledger) HasRecordForDay(studentID, unitCode, day string, presentOnly bool) bool {
	for _, r := range l.records {
		if sameDay(r, studentID, unitCode, day) && (!presentOnly || r.Present) {
			return true
		}
	}
	return false
}

// Query returns matching records, most recent first.
func (l *Ledger) Query(f Filter) []Record {
	out := make([]Record, 0)
	for _, r := range l.records {
		if f.match(r) {
			out = append(out, r)
		}
	}
	sortRecentFirst(out)
	return out
}

// QueryByUnit returns a unit's records, optionally restricted by date prefix.
func (l *Ledger) QueryByUnit(unitCode, dateFilter string) []Record {
	if unitCode == "" {
		return []Record{}
	}
	return l.Query(Filter{UnitCode: unitCode, Date: dateFilter})
}

// QueryByStudent returns all of a student's records.
func (l *Ledger) QueryByStudent(studentID string) []Record {
	if studentID == "" {
		return []Record{}
	}
	return l.Query(Filter{StudentID: studentID})
}

// Statistics counts a unit's present and absent records.
func (l *Ledger) Statistics(unitCode string) Statistics {
	var st Statistics
	if unitCode == "" {
		return st
	}
	for _, r := range l.records {
		if r.UnitCode != unitCode {
			continue
		}
		st.Total++
		if r.Present {
			st.Present++
		}
	}
	st.Absent = st.Total - st.Present
	st.Rate = percent(st.Present, st.Total)
	return st
}

// Snapshot copies the records together with the current version.
func (l *Ledger) Snapshot() ([]Record, uint64) {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out, l.version
}

// Len returns the number of records.
func (l *Ledger) Len() int { return len(l.records) }

// ISO dates and timestamps sort lexically in chronological order.
func sortRecentFirst(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Date != recs[j].Date {
			return recs[i].Date > recs[j].Date
		}
		return recs[i].Timestamp > recs[j].Timestamp
	})
}

func percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round1(float64(part) * 100 / float64(total))
}

// round1 rounds half-up to one decimal place.
func round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
