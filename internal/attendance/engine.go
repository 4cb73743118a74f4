package attendance

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"unitattendance/internal/metrics"
)

// Messages returned by MarkAttendance. Callers surface them verbatim.
const (
	MsgInvalidInput    = "Invalid student or unit information."
	MsgNoActiveLecture = "No active lecture for this unit."
	MsgLectureEnded    = "Lecture has ended. Attendance marking closed."
	MsgLectureExpired  = "Lecture time has expired."
	MsgStudentNotFound = "Student not found."
	MsgNotRegistered   = "You are not registered for this unit."
	MsgAlreadyMarked   = "Attendance already marked for today."
	MsgMarked          = "Attendance marked successfully!"
)

// DefaultMaxDuration bounds how long a single lecture window may be.
const DefaultMaxDuration = 4 * time.Hour

// MarkResult is the outcome of a student self-mark.
type MarkResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	RemainingTime string `json:"remaining_time,omitempty"`
}

// Engine owns the session registry and the ledger. A single mutex guards both,
// so every check-then-act sequence below is atomic. Persistence and
// notifications happen after the mutex is released.
type Engine struct {
	mu       sync.Mutex
	registry *Registry
	ledger   *Ledger

	roster   RosterProvider
	gateway  Gateway
	notifier Notifier

	now         func() time.Time
	grace       time.Duration
	maxDuration time.Duration

	flushMu      sync.Mutex
	savedVersion uint64
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithGrace sets how long a session stays valid past its end time.
func WithGrace(d time.Duration) Option { return func(e *Engine) { e.grace = d } }

// WithMaxDuration caps lecture windows.
func WithMaxDuration(d time.Duration) Option { return func(e *Engine) { e.maxDuration = d } }

// WithNotifier receives a summary for each closed session.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// New builds an engine with an empty ledger. Call Load to restore persisted records.
func New(roster RosterProvider, gateway Gateway, opts ...Option) *Engine {
	if roster == nil || gateway == nil {
		panic("attendance: roster and gateway are required")
	}
	e := &Engine{
		roster:      roster,
		gateway:     gateway,
		notifier:    nopNotifier{},
		now:         time.Now,
		grace:       DefaultGrace,
		maxDuration: DefaultMaxDuration,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.grace < 0 {
		e.grace = DefaultGrace
	}
	e.registry = NewRegistry(e.grace, e.now)
	e.ledger = NewLedger(nil)
	return e
}

// MaxDuration is the longest lecture StartLecture accepts.
func (e *Engine) MaxDuration() time.Duration { return e.maxDuration }

// Load replaces the in-memory ledger with the gateway's records.
func (e *Engine) Load(ctx context.Context) error {
	recs, err := e.gateway.LoadAttendanceRecords(ctx)
	if err != nil {
		return fmt.Errorf("load attendance records: %w", err)
	}
	backfilled := 0
	for i := range recs {
		if recs[i].ID == "" {
			recs[i].ID = uuid.NewString()
			backfilled++
		}
	}
	if backfilled > 0 {
		log.Printf("assigned ids to %d attendance records without one", backfilled)
	}
	e.mu.Lock()
	e.ledger = NewLedger(recs)
	e.mu.Unlock()

	e.flushMu.Lock()
	e.savedVersion = 0
	e.flushMu.Unlock()

	log.Printf("loaded %d attendance records", len(recs))
	return nil
}

// pending is work deferred until the engine lock is released.
type pending struct {
	flush   bool
	closing []closing
}

// closing is a session taken out of the registry that still needs its absences recorded.
type closing struct {
	session *Session
	reason  string
}

func (p *pending) add(s *Session, reason string) {
	p.closing = append(p.closing, closing{session: s, reason: reason})
}

func (p *pending) merge(q pending) {
	p.flush = p.flush || q.flush
	p.closing = append(p.closing, q.closing...)
}

// unlock releases e.mu, reconciles closed sessions, then persists and notifies
// as p requires. Roster lookups run without the lock held.
func (e *Engine) unlock(ctx context.Context, p pending) {
	var (
		snap    []Record
		version uint64
	)
	if p.flush && len(p.closing) == 0 {
		snap, version = e.ledger.Snapshot()
	}
	metrics.ActiveLectures.Set(float64(e.registry.Len()))
	e.mu.Unlock()

	var summaries []SessionSummary
	if len(p.closing) > 0 {
		rosters := make([][]Student, len(p.closing))
		for i, c := range p.closing {
			rosters[i] = e.registeredFor(ctx, c.session.UnitCode)
		}
		e.mu.Lock()
		for i, c := range p.closing {
			summaries = append(summaries, e.reconcileLocked(c.session, c.reason, rosters[i]))
		}
		snap, version = e.ledger.Snapshot()
		e.mu.Unlock()
		p.flush = true
	}

	if p.flush {
		_ = e.persist(ctx, snap, version, false)
	}
	for _, s := range summaries {
		if err := e.notifier.SessionClosed(ctx, s); err != nil {
			log.Printf("notify session closed for %s failed: %v", s.UnitCode, err)
		}
	}
}

func (e *Engine) registeredFor(ctx context.Context, unitCode string) []Student {
	students, err := e.roster.StudentsRegisteredFor(ctx, unitCode)
	if err != nil {
		log.Printf("roster for %s unavailable, absences not reconciled: %v", unitCode, err)
	}
	return students
}

// persist writes a snapshot unless a newer one was already saved.
func (e *Engine) persist(ctx context.Context, recs []Record, version uint64, force bool) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	if !force && version <= e.savedVersion {
		return nil
	}
	if err := e.gateway.SaveAttendanceRecords(ctx, recs); err != nil {
		metrics.FlushFailures.Inc()
		log.Printf("persist attendance records failed: %v", err)
		return err
	}
	if version > e.savedVersion {
		e.savedVersion = version
	}
	return nil
}

// Flush writes the current ledger regardless of what was saved before.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	snap, version := e.ledger.Snapshot()
	e.mu.Unlock()
	return e.persist(ctx, snap, version, true)
}

// StartLecture opens a marking window of the given length for a unit.
// It fails when a valid session already exists or the duration is out of range.
func (e *Engine) StartLecture(ctx context.Context, unitCode string, durationMinutes int) bool {
	unitCode = strings.TrimSpace(unitCode)
	d := time.Duration(durationMinutes) * time.Minute
	if unitCode == "" || durationMinutes <= 0 || (e.maxDuration > 0 && d > e.maxDuration) {
		return false
	}

	e.mu.Lock()
	var p pending
	stale, ok := e.registry.Start(unitCode, d)
	if stale != nil {
		p.add(stale, ReasonExpired)
	}
	e.unlock(ctx, p)

	if ok {
		metrics.LecturesStarted.Inc()
		log.Printf("lecture started for %s (%d min)", unitCode, durationMinutes)
	}
	return ok
}

// EndLecture closes the unit's session and marks every registered student who
// did not self-mark as absent. It reports false when there was nothing to end.
func (e *Engine) EndLecture(ctx context.Context, unitCode string) bool {
	unitCode = strings.TrimSpace(unitCode)

	e.mu.Lock()
	var p pending
	s, ok := e.registry.End(unitCode)
	if ok {
		p.add(s, ReasonEnded)
	}
	e.unlock(ctx, p)

	if ok {
		log.Printf("lecture ended for %s", unitCode)
	}
	return ok
}

// reconcileLocked inserts an absence for every roster member of the session's
// unit who did not self-mark and has no record for the day the session started.
// Safe to repeat.
func (e *Engine) reconcileLocked(s *Session, reason string, students []Student) SessionSummary {
	now := e.now()
	day, ts := formatDay(s.StartTime), formatTimestamp(now)
	marked := s.MarkedStudents()

	absent := 0
	for _, st := range students {
		if _, ok := marked[st.ID]; ok {
			continue
		}
		rec := Record{
			ID:        uuid.NewString(),
			StudentID: st.ID,
			UnitCode:  s.UnitCode,
			Date:      day,
			Timestamp: ts,
			Present:   false,
		}
		if e.ledger.AppendIfAbsentForDay(rec) {
			absent++
		}
	}

	metrics.LecturesClosed.WithLabelValues(reason).Inc()
	metrics.AutoAbsences.Add(float64(absent))
	log.Printf("reconciled %s (%s): %d present, %d marked absent of %d registered",
		s.UnitCode, reason, len(marked), absent, len(students))

	return SessionSummary{
		ID:           uuid.NewString(),
		UnitCode:     s.UnitCode,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		ClosedAt:     now,
		Present:      len(marked),
		AbsentMarked: absent,
		Reason:       reason,
	}
}

// MarkAttendance records a student's self-mark. Checks run in a fixed order
// and the first failure decides the message.
func (e *Engine) MarkAttendance(ctx context.Context, studentID, unitCode string) MarkResult {
	studentID, unitCode = strings.TrimSpace(studentID), strings.TrimSpace(unitCode)
	if studentID == "" || unitCode == "" {
		return e.markFailed(MsgInvalidInput, "invalid")
	}

	st, found, err := e.roster.Student(ctx, studentID)
	if err != nil {
		log.Printf("roster lookup for %s failed: %v", studentID, err)
		found = false
	}

	e.mu.Lock()
	res, p := e.markLocked(st, found, unitCode)
	e.unlock(ctx, p)
	return res
}

// markLocked runs the session checks, then the roster checks on the student
// looked up before the lock was taken.
func (e *Engine) markLocked(st Student, found bool, unitCode string) (MarkResult, pending) {
	now := e.now()
	s, ok := e.registry.Get(unitCode)
	if !ok || !s.Valid(now, e.grace) {
		return e.markFailed(MsgNoActiveLecture, "no_session"), pending{}
	}
	if !s.Active {
		return e.markFailed(MsgLectureEnded, "ended"), pending{}
	}
	if !s.InWindow(now) {
		return e.markFailed(MsgLectureExpired, "expired"), pending{}
	}

	if !found {
		return e.markFailed(MsgStudentNotFound, "unknown_student"), pending{}
	}
	if !st.IsRegisteredFor(unitCode) {
		return e.markFailed(MsgNotRegistered, "not_registered"), pending{}
	}

	today := formatDay(now)
	if e.ledger.HasRecordForDay(st.ID, unitCode, today, true) {
		return e.markFailed(MsgAlreadyMarked, "duplicate"), pending{}
	}

	e.registry.MarkPresent(unitCode, st.ID)
	e.ledger.UpsertExplicit(Record{
		ID:        uuid.NewString(),
		StudentID: st.ID,
		UnitCode:  unitCode,
		Date:      today,
		Timestamp: formatTimestamp(now),
		Present:   true,
	})
	metrics.Marks.WithLabelValues("accepted").Inc()

	return MarkResult{Success: true, Message: MsgMarked, RemainingTime: s.Remaining(now)}, pending{flush: true}
}

func (e *Engine) markFailed(msg, outcome string) MarkResult {
	metrics.Marks.WithLabelValues(outcome).Inc()
	return MarkResult{Message: msg}
}

// ManuallyMarkAttendance writes a lecturer or HOD override for the given day,
// replacing whatever was recorded for that student and unit on that day.
// date is YYYY-MM-DD, optionally followed by HH:MM[:SS].
func (e *Engine) ManuallyMarkAttendance(ctx context.Context, studentID, unitCode string, present bool, date string) bool {
	studentID, unitCode = strings.TrimSpace(studentID), strings.TrimSpace(unitCode)
	if studentID == "" || unitCode == "" {
		return false
	}
	day, ts, ok := parseMarkDate(date)
	if !ok {
		log.Printf("manual mark for %s/%s rejected: bad date %q", studentID, unitCode, date)
		return false
	}
	if ts == "" {
		ts = formatTimestamp(e.now())
	}
	studentID = e.canonicalID(ctx, studentID)

	e.mu.Lock()
	e.ledger.UpsertExplicit(Record{
		ID:        uuid.NewString(),
		StudentID: studentID,
		UnitCode:  unitCode,
		Date:      day,
		Timestamp: ts,
		Present:   present,
	})
	e.unlock(ctx, pending{flush: true})

	metrics.ManualMarks.Inc()
	log.Printf("manual mark %s/%s on %s: present=%v", studentID, unitCode, day, present)
	return true
}

// RecordAttendance is ManuallyMarkAttendance taking a PRESENT/ABSENT status string.
// Anything other than PRESENT counts as absent.
func (e *Engine) RecordAttendance(ctx context.Context, studentID, unitCode, status, date string) bool {
	return e.ManuallyMarkAttendance(ctx, studentID, unitCode, strings.EqualFold(strings.TrimSpace(status), StatusPresent), date)
}

// canonicalID maps a student ID onto the roster's spelling when the roster knows it.
func (e *Engine) canonicalID(ctx context.Context, studentID string) string {
	st, found, err := e.roster.Student(ctx, studentID)
	if err != nil || !found || st.ID == "" {
		return studentID
	}
	return st.ID
}

// IsOpenForMarking reports whether students can self-mark for the unit now.
// Side effect: a session past its grace period is evicted and reconciled.
func (e *Engine) IsOpenForMarking(ctx context.Context, unitCode string) bool {
	unitCode = strings.TrimSpace(unitCode)
	if unitCode == "" {
		return false
	}
	e.mu.Lock()
	open, p := e.openLocked(unitCode)
	e.unlock(ctx, p)
	return open
}

func (e *Engine) openLocked(unitCode string) (bool, pending) {
	var p pending
	open, evicted := e.registry.OpenForMarking(unitCode)
	if evicted != nil {
		p.add(evicted, ReasonExpired)
	}
	return open, p
}

// CleanupExpiredLectures reconciles and evicts every session past its grace
// period and returns how many were closed. Running it twice is harmless.
func (e *Engine) CleanupExpiredLectures(ctx context.Context) int {
	e.mu.Lock()
	p := e.sweepLocked()
	e.unlock(ctx, p)
	return len(p.closing)
}

func (e *Engine) sweepLocked() pending {
	var p pending
	for _, s := range e.registry.Expired() {
		p.add(s, ReasonExpired)
	}
	return p
}

// RunSweeper calls CleanupExpiredLectures every interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	log.Printf("lecture sweeper started (every %s)", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("lecture sweeper stopped")
			return
		case <-ticker.C:
			if n := e.CleanupExpiredLectures(ctx); n > 0 {
				log.Printf("sweeper closed %d expired lecture(s)", n)
			}
		}
	}
}

// ActiveLectures sweeps expired sessions, then lists the rest.
func (e *Engine) ActiveLectures(ctx context.Context) []SessionInfo {
	e.mu.Lock()
	p := e.sweepLocked()
	out := e.registry.Sessions()
	e.unlock(ctx, p)
	return out
}

// ActiveUnitsForStudent lists the student's units that are open for marking now.
func (e *Engine) ActiveUnitsForStudent(ctx context.Context, studentID string) []string {
	out := []string{}
	st, found, err := e.roster.Student(ctx, strings.TrimSpace(studentID))
	if err != nil {
		log.Printf("roster lookup for %s failed: %v", studentID, err)
	}
	if err != nil || !found {
		return out
	}

	e.mu.Lock()
	var p pending
	for _, unit := range st.RegisteredUnits {
		open, q := e.openLocked(unit)
		p.merge(q)
		if open {
			out = append(out, unit)
		}
	}
	e.unlock(ctx, p)

	sort.Strings(out)
	return out
}

// CanStudentMark reports whether any of the student's units is open.
func (e *Engine) CanStudentMark(ctx context.Context, studentID string) bool {
	return len(e.ActiveUnitsForStudent(ctx, studentID)) > 0
}
