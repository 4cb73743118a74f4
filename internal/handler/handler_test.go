package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitattendance/internal/attendance"
	"unitattendance/internal/auth"
	"unitattendance/internal/store"
)

const (
	testKey    = "test-key"
	testIssuer = "unit-attendance"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeSummaries struct {
	got []attendance.SessionSummary
	err error
}

func (f *fakeSummaries) ListByUnit(_ context.Context, unit string, limit int) ([]attendance.SessionSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []attendance.SessionSummary
	for _, s := range f.got {
		if s.UnitCode == unit && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

type testServer struct {
	t       *testing.T
	router  *gin.Engine
	eng     *attendance.Engine
	ledger  *store.FileLedger
	now     time.Time
	summary *fakeSummaries
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	roster := store.NewStaticRoster(
		attendance.Student{ID: "A", Name: "Ann", Course: "BSc CS", RegisteredUnits: []string{"CS101", "CS102"}},
		attendance.Student{ID: "B", Name: "Ben", Course: "BSc CS", RegisteredUnits: []string{"CS101"}},
		attendance.Student{ID: "C", Name: "Cyd", Course: "BSc CS", RegisteredUnits: []string{"CS101"}},
		attendance.Student{ID: "D", Name: "Dee", Course: "BSc IT", RegisteredUnits: []string{"IT200"}},
	)
	ledger, err := store.NewFileLedger(t.TempDir())
	require.NoError(t, err)

	s := &testServer{t: t, now: t0, ledger: ledger, summary: &fakeSummaries{}}
	s.eng = attendance.New(roster, ledger, attendance.WithClock(func() time.Time { return s.now }))

	s.router = gin.New()
	New(Config{
		Engine:     s.eng,
		Roster:     roster,
		Summaries:  s.summary,
		SigningKey: testKey,
		Issuer:     testIssuer,
	}).Register(s.router)
	return s
}

func (s *testServer) do(method, path, subject, role string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		tok, err := auth.Issue(subject, role, testIssuer, testKey, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestStartLecture(t *testing.T) {
	s := newServer(t)
	start := gin.H{"duration_minutes": 30}

	tests := []struct {
		name string
		role string
		body any
		want int
	}{
		{"no token", "", start, http.StatusUnauthorized},
		{"student", auth.RoleStudent, start, http.StatusForbidden},
		{"missing duration", auth.RoleLecturer, gin.H{}, http.StatusBadRequest},
		{"negative", auth.RoleLecturer, gin.H{"duration_minutes": -5}, http.StatusBadRequest},
		{"too long", auth.RoleLecturer, gin.H{"duration_minutes": 241}, http.StatusBadRequest},
		{"ok", auth.RoleLecturer, start, http.StatusCreated},
		{"already active", auth.RoleHOD, start, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/v1/lectures/CS101/start", "L1", tt.role, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := s.do(http.MethodGet, "/v1/lectures/active", "L1", auth.RoleLecturer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	active := decode[struct {
		Lectures []attendance.SessionInfo `json:"lectures"`
	}](t, w)
	require.Len(t, active.Lectures, 1)
	assert.Equal(t, "CS101", active.Lectures[0].UnitCode)
}

func TestLectureFlow(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/lectures/CS101/start", "L1", auth.RoleLecturer, gin.H{"duration_minutes": 60}).Code)

	s.now = t0.Add(5 * time.Minute)

	w := s.do(http.MethodGet, "/v1/attendance/status?unit_code=CS101", "A", auth.RoleStudent, nil)
	status := decode[attendance.StudentStatus](t, w)
	assert.True(t, status.CanMark)
	assert.Equal(t, "55:00", status.RemainingTime)

	w = s.do(http.MethodGet, "/v1/attendance/active-units", "a", auth.RoleStudent, nil)
	units := decode[struct {
		Units   []string `json:"units"`
		CanMark bool     `json:"can_mark"`
	}](t, w)
	assert.Equal(t, []string{"CS101"}, units.Units)
	assert.True(t, units.CanMark)

	res := decode[attendance.MarkResult](t, s.do(http.MethodPost, "/v1/attendance/mark", "A", auth.RoleStudent, gin.H{"unit_code": "CS101"}))
	assert.True(t, res.Success)
	assert.Equal(t, attendance.MsgMarked, res.Message)

	res = decode[attendance.MarkResult](t, s.do(http.MethodPost, "/v1/attendance/mark", "A", auth.RoleStudent, gin.H{"unit_code": "CS101"}))
	assert.False(t, res.Success)
	assert.Equal(t, attendance.MsgAlreadyMarked, res.Message)

	w = s.do(http.MethodPost, "/v1/attendance/mark", "D", auth.RoleStudent, gin.H{"unit_code": "CS101"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, attendance.MsgNotRegistered, decode[attendance.MarkResult](t, w).Message)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/attendance/mark", "A", auth.RoleStudent, gin.H{}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/v1/attendance/mark", "L1", auth.RoleLecturer, gin.H{"unit_code": "CS101"}).Code)

	dash := decode[attendance.Dashboard](t, s.do(http.MethodGet, "/v1/lectures/CS101/dashboard", "L1", auth.RoleLecturer, nil))
	assert.Equal(t, 3, dash.TotalStudents)
	assert.Equal(t, 1, dash.PresentToday)
	assert.True(t, dash.IsActive)

	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/lectures/CS101/end", "L1", auth.RoleLecturer, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/v1/lectures/CS101/end", "L1", auth.RoleLecturer, nil).Code)

	w = s.do(http.MethodGet, "/v1/units/CS101/records", "L1", auth.RoleLecturer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	recs := decode[struct {
		Records []recordView `json:"records"`
	}](t, w)
	require.Len(t, recs.Records, 3)
	byID := map[string]recordView{}
	for _, r := range recs.Records {
		byID[r.StudentID] = r
	}
	assert.Equal(t, attendance.StatusPresent, byID["A"].Status)
	assert.Equal(t, "09:05", byID["A"].Time)
	assert.Equal(t, "Ann", byID["A"].StudentName)
	assert.Equal(t, attendance.StatusAbsent, byID["B"].Status)
	assert.Equal(t, attendance.StatusAbsent, byID["C"].Status)

	stats := decode[attendance.Statistics](t, s.do(http.MethodGet, "/v1/units/CS101/statistics", "L1", auth.RoleHOD, nil))
	assert.Equal(t, attendance.Statistics{Total: 3, Present: 1, Absent: 2, Rate: 33.3}, stats)

	saved, err := s.ledger.LoadAttendanceRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, saved, 3)
}

func TestManualAndRecord(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodPost, "/v1/attendance/manual", "L1", auth.RoleLecturer, gin.H{"student_id": "B", "unit_code": "CS101", "date": "2026-03-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "present is required")

	res := decode[attendance.MarkResult](t, s.do(http.MethodPost, "/v1/attendance/manual", "L1", auth.RoleLecturer,
		gin.H{"student_id": "B", "unit_code": "CS101", "present": false, "date": "2026-03-01 10:15"}))
	assert.True(t, res.Success)

	res = decode[attendance.MarkResult](t, s.do(http.MethodPost, "/v1/attendance/record", "L1", auth.RoleHOD,
		gin.H{"student_id": "A", "unit_code": "CS101", "status": "present", "date": "2026-03-01"}))
	assert.True(t, res.Success)

	res = decode[attendance.MarkResult](t, s.do(http.MethodPost, "/v1/attendance/record", "L1", auth.RoleHOD,
		gin.H{"student_id": "A", "unit_code": "CS101", "status": "present", "date": "01/03/2026"}))
	assert.False(t, res.Success)
	assert.Equal(t, msgNotRecorded, res.Message)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/v1/attendance/record", "A", auth.RoleStudent,
		gin.H{"student_id": "A", "unit_code": "CS101", "status": "present", "date": "2026-03-01"}).Code)

	recs := s.eng.UnitRecords("CS101", "2026-03-01")
	assert.Len(t, recs, 2)
}

func TestStudentHistory(t *testing.T) {
	s := newServer(t)
	require.True(t, s.eng.RecordAttendance(context.Background(), "A", "CS101", "present", "2026-03-01"))
	require.True(t, s.eng.RecordAttendance(context.Background(), "A", "CS102", "absent", "2026-03-01"))

	w := s.do(http.MethodGet, "/v1/students/A/history", "a", auth.RoleStudent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Records []recordView `json:"records"`
	}](t, w).Records, 2)

	w = s.do(http.MethodGet, "/v1/students/A/history?unit_code=CS102", "L1", auth.RoleLecturer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Records []recordView `json:"records"`
	}](t, w).Records, 1)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/students/A/history", "B", auth.RoleStudent, nil).Code)
}

func TestCSVReport(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	require.True(t, s.eng.RecordAttendance(ctx, "A", "CS101", "present", "2026-03-01 09:10"))
	require.True(t, s.eng.RecordAttendance(ctx, "B", "CS101", "absent", "2026-03-01"))
	require.True(t, s.eng.RecordAttendance(ctx, "GHOST", "CS101", "absent", "2026-02-28"))
	require.True(t, s.eng.RecordAttendance(ctx, "D", "IT200", "present", "2026-03-01"))

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/reports/attendance.csv", "L1", auth.RoleLecturer, nil).Code)

	w := s.do(http.MethodGet, "/v1/reports/attendance.csv?unit_code=CS101", "H1", auth.RoleHOD, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance_report.csv")

	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])
	// B has no explicit time, so it is stamped with the current clock and sorts first within the day.
	assert.Equal(t, []string{"B", "Ben", "BSc CS", "CS101", "2026-03-01", "09:00", "ABSENT"}, rows[1])
	assert.Equal(t, []string{"A", "Ann", "BSc CS", "CS101", "2026-03-01", "09:10", "PRESENT"}, rows[2])
	assert.Equal(t, []string{"GHOST", unknownStudent, unknownCourse, "CS101", "2026-02-28", "09:00", "ABSENT"}, rows[3])

	w = s.do(http.MethodGet, "/v1/reports/attendance.csv?status=absent", "H1", auth.RoleHOD, nil)
	rows, err = csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSessionHistoryAndFlush(t *testing.T) {
	s := newServer(t)
	s.summary.got = []attendance.SessionSummary{
		{ID: "s1", UnitCode: "CS101", Present: 10, Reason: attendance.ReasonEnded},
		{ID: "s2", UnitCode: "CS102", Present: 4, Reason: attendance.ReasonExpired},
	}

	w := s.do(http.MethodGet, "/v1/lectures/CS101/sessions", "L1", auth.RoleLecturer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Sessions []attendance.SessionSummary `json:"sessions"`
	}](t, w)
	require.Len(t, got.Sessions, 1)
	assert.Equal(t, "s1", got.Sessions[0].ID)

	s.summary.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, s.do(http.MethodGet, "/v1/lectures/CS101/sessions", "L1", auth.RoleLecturer, nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/v1/admin/flush", "L1", auth.RoleLecturer, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/admin/flush", "H1", auth.RoleHOD, nil).Code)
	saved, err := s.ledger.LoadAttendanceRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, saved)
}
