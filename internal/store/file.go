package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"unitattendance/internal/attendance"
)

const (
	attendanceFile = "attendance.json"
	studentsFile   = "students.json"
)

// FileLedger keeps the attendance ledger as a JSON array under a data directory.
type FileLedger struct {
	path string
	mu   sync.Mutex
}

// NewFileLedger creates the data directory if needed.
func NewFileLedger(dir string) (*FileLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileLedger{path: filepath.Join(dir, attendanceFile)}, nil
}

// LoadAttendanceRecords reads the ledger; a missing file is an empty ledger.
func (f *FileLedger) LoadAttendanceRecords(context.Context) ([]attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("no attendance file at %s, starting empty", f.path)
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	var recs []attendance.Record
	if err := json.Unmarshal(buf, &recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return recs, nil
}

// SaveAttendanceRecords rewrites the ledger file atomically.
func (f *FileLedger) SaveAttendanceRecords(_ context.Context, records []attendance.Record) error {
	if records == nil {
		records = []attendance.Record{}
	}
	buf, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode attendance records: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAtomic(f.path, buf)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// FileRoster serves students from students.json, a map of student ID to student.
// IDs are matched case-insensitively.
type FileRoster struct {
	students map[string]attendance.Student
}

// NewFileRoster loads students.json from dir; a missing file is an empty roster.
func NewFileRoster(dir string) (*FileRoster, error) {
	path := filepath.Join(dir, studentsFile)
	r := &FileRoster{students: make(map[string]attendance.Student)}

	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("no students file at %s, roster is empty", path)
			return r, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var raw map[string]attendance.Student
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for key, st := range raw {
		if st.ID == "" {
			st.ID = key
		}
		if len(st.RegisteredUnits) > attendance.MaxRegisteredUnits {
			log.Printf("student %s has %d units, more than %d", st.ID, len(st.RegisteredUnits), attendance.MaxRegisteredUnits)
		}
		r.students[strings.ToUpper(st.ID)] = st
	}
	log.Printf("loaded %d students from %s", len(r.students), path)
	return r, nil
}

// NewStaticRoster builds a roster from an in-memory student list.
func NewStaticRoster(students ...attendance.Student) *FileRoster {
	r := &FileRoster{students: make(map[string]attendance.Student, len(students))}
	for _, st := range students {
		r.students[strings.ToUpper(st.ID)] = st
	}
	return r
}

// Student looks a student up by ID, ignoring case.
func (r *FileRoster) Student(_ context.Context, studentID string) (attendance.Student, bool, error) {
	st, ok := r.students[strings.ToUpper(strings.TrimSpace(studentID))]
	return st, ok, nil
}

// StudentsRegisteredFor lists the unit's roster ordered by student ID.
func (r *FileRoster) StudentsRegisteredFor(_ context.Context, unitCode string) ([]attendance.Student, error) {
	var out []attendance.Student
	for _, st := range r.students {
		if st.IsRegisteredFor(unitCode) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// IsStudentRegistered reports whether the student is registered for the unit.
func (r *FileRoster) IsStudentRegistered(ctx context.Context, studentID, unitCode string) (bool, error) {
	st, ok, _ := r.Student(ctx, studentID)
	return ok && st.IsRegisteredFor(unitCode), nil
}
