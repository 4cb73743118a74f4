package attendance

import (
	"fmt"
	"sort"
	"time"
)

// DefaultGrace is how long a session stays valid after its end time before it is swept.
const DefaultGrace = 5 * time.Minute

// Session is one attendance window for one unit.
type Session struct {
	UnitCode  string
	StartTime time.Time
	EndTime   time.Time
	Active    bool
	Marked    map[string]struct{}
}

func newSession(unitCode string, start time.Time, d time.Duration) *Session {
	return &Session{
		UnitCode:  unitCode,
		StartTime: start,
		EndTime:   start.Add(d),
		Active:    true,
		Marked:    make(map[string]struct{}),
	}
}

// Valid reports whether the session is still inside end time plus grace.
func (s *Session) Valid(now time.Time, grace time.Duration) bool {
	return !now.After(s.EndTime.Add(grace))
}

// InWindow reports whether now falls inside [StartTime, EndTime].
func (s *Session) InWindow(now time.Time) bool {
	return !now.Before(s.StartTime) && !now.After(s.EndTime)
}

// OpenForMarking reports whether students may self-mark right now.
func (s *Session) OpenForMarking(now time.Time, grace time.Duration) bool {
	return s.Valid(now, grace) && s.Active && s.InWindow(now)
}

// Remaining formats the time left until EndTime as MM:SS.
func (s *Session) Remaining(now time.Time) string {
	if !now.Before(s.EndTime) {
		return "00:00"
	}
	secs := int64(s.EndTime.Sub(now) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// MarkedStudents returns a copy of the self-marked student IDs.
func (s *Session) MarkedStudents() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Marked))
	for id := range s.Marked {
		out[id] = struct{}{}
	}
	return out
}

// SessionInfo is a read-only view of a session for listings.
type SessionInfo struct {
	UnitCode      string    `json:"unit_code"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Active        bool      `json:"active"`
	MarkedCount   int       `json:"marked_count"`
	RemainingTime string    `json:"remaining_time"`
}

// Registry tracks at most one session per unit code.
// It is not safe for concurrent use; Engine serializes access.
type Registry struct {
	sessions map[string]*Session
	grace    time.Duration
	now      func() time.Time
}

// NewRegistry creates an empty registry using the given grace period and clock.
func NewRegistry(grace time.Duration, now func() time.Time) *Registry {
	if grace < 0 {
		grace = DefaultGrace
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{sessions: make(map[string]*Session), grace: grace, now: now}
}

// Start installs a new session unless a valid one already exists for the unit.
// A stale session that had to be evicted is returned so the caller can reconcile it.
func (r *Registry) Start(unitCode string, d time.Duration) (stale *Session, ok bool) {
	now := r.now()
	if existing, found := r.sessions[unitCode]; found {
		if existing.Valid(now, r.grace) {
			return nil, false
		}
		stale = existing
		delete(r.sessions, unitCode)
	}
	r.sessions[unitCode] = newSession(unitCode, now, d)
	return stale, true
}

// End closes the unit's session and removes it from the registry.
func (r *Registry) End(unitCode string) (*Session, bool) {
	s, ok := r.sessions[unitCode]
	if !ok {
		return nil, false
	}
	s.Active = false
	delete(r.sessions, unitCode)
	return s, true
}

// Get returns the unit's session without checking validity.
func (r *Registry) Get(unitCode string) (*Session, bool) {
	s, ok := r.sessions[unitCode]
	return s, ok
}

// OpenForMarking reports whether the unit accepts self-marks now. An invalid
// session found on the way is evicted and returned for reconciliation.
func (r *Registry) OpenForMarking(unitCode string) (open bool, evicted *Session) {
	s, ok := r.sessions[unitCode]
	if !ok {
		return false, nil
	}
	now := r.now()
	if !s.Valid(now, r.grace) {
		s.Active = false
		delete(r.sessions, unitCode)
		return false, s
	}
	return s.Active && s.InWindow(now), nil
}

// MarkPresent records a self-mark in the unit's session, if any.
func (r *Registry) MarkPresent(unitCode, studentID string) {
	if s, ok := r.sessions[unitCode]; ok {
		s.Marked[studentID] = struct{}{}
	}
}

// RemainingTime returns MM:SS until the unit's session ends, "00:00" if none.
func (r *Registry) RemainingTime(unitCode string) string {
	s, ok := r.sessions[unitCode]
	if !ok {
		return "00:00"
	}
	return s.Remaining(r.now())
}

// Expired removes and returns every session past its grace period.
func (r *Registry) Expired() []*Session {
	now := r.now()
	var out []*Session
	for code, s := range r.sessions {
		if !s.Valid(now, r.grace) {
			s.Active = false
			delete(r.sessions, code)
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitCode < out[j].UnitCode })
	return out
}

// Sessions lists the registered sessions ordered by unit code.
func (r *Registry) Sessions() []SessionInfo {
	now := r.now()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, SessionInfo{
			UnitCode:      s.UnitCode,
			StartTime:     s.StartTime,
			EndTime:       s.EndTime,
			Active:        s.Active,
			MarkedCount:   len(s.Marked),
			RemainingTime: s.Remaining(now),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitCode < out[j].UnitCode })
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int { return len(r.sessions) }
