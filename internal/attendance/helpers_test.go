package attendance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memRoster struct {
	students map[string]Student
	err      error
}

func newRoster(students ...Student) *memRoster {
	r := &memRoster{students: make(map[string]Student)}
	for _, s := range students {
		r.students[strings.ToUpper(s.ID)] = s
	}
	return r
}

func (r *memRoster) Student(_ context.Context, id string) (Student, bool, error) {
	if r.err != nil {
		return Student{}, false, r.err
	}
	s, ok := r.students[strings.ToUpper(id)]
	return s, ok, nil
}

func (r *memRoster) StudentsRegisteredFor(_ context.Context, unit string) ([]Student, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []Student
	for _, s := range r.students {
		if s.IsRegisteredFor(unit) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRoster) IsStudentRegistered(ctx context.Context, id, unit string) (bool, error) {
	s, ok, err := r.Student(ctx, id)
	return ok && s.IsRegisteredFor(unit), err
}

type memGateway struct {
	mu      sync.Mutex
	records []Record
	saves   int
	err     error
}

var errDiskFull = errors.New("disk full")

func (g *memGateway) LoadAttendanceRecords(context.Context) ([]Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Record(nil), g.records...), g.err
}

func (g *memGateway) SaveAttendanceRecords(_ context.Context, recs []Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.saves++
	g.records = append([]Record(nil), recs...)
	return nil
}

func (g *memGateway) saved() []Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Record(nil), g.records...)
}

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []SessionSummary
}

func (n *recordingNotifier) SessionClosed(_ context.Context, s SessionSummary) error {
	n.mu.Lock()
	n.summaries = append(n.summaries, s)
	n.mu.Unlock()
	return nil
}

type fixture struct {
	engine   *Engine
	clock    *fakeClock
	roster   *memRoster
	gateway  *memGateway
	notifier *recordingNotifier
}

// cs101 registers A, B and C for CS101; D is registered elsewhere.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock: newClock(),
		roster: newRoster(
			Student{ID: "A", Name: "Ann", Course: "BSc CS", RegisteredUnits: []string{"CS101", "CS102"}},
			Student{ID: "B", Name: "Ben", Course: "BSc CS", RegisteredUnits: []string{"CS101"}},
			Student{ID: "C", Name: "Cyd", Course: "BSc CS", RegisteredUnits: []string{"CS101"}},
			Student{ID: "D", Name: "Dee", Course: "BSc IT", RegisteredUnits: []string{"IT200"}},
		),
		gateway:  &memGateway{},
		notifier: &recordingNotifier{},
	}
	f.engine = New(f.roster, f.gateway, WithClock(f.clock.Now), WithNotifier(f.notifier))
	return f
}

func countFor(recs []Record, studentID string, present bool) int {
	n := 0
	for _, r := range recs {
		if r.StudentID == studentID && r.Present == present {
			n++
		}
	}
	return n
}
