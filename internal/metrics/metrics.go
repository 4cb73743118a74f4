package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LecturesStarted counts accepted StartLecture calls.
	LecturesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_lectures_started_total",
		Help: "Lecture sessions opened.",
	})

	// LecturesClosed counts reconciled sessions by reason (ended, expired).
	LecturesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_lectures_closed_total",
		Help: "Lecture sessions closed and reconciled.",
	}, []string{"reason"})

	// ActiveLectures tracks sessions currently held in memory.
	ActiveLectures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_active_lectures",
		Help: "Lecture sessions currently registered.",
	})

	// Marks counts self-mark attempts by outcome.
	Marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Student self-mark attempts by outcome.",
	}, []string{"outcome"})

	// ManualMarks counts lecturer/HOD overrides.
	ManualMarks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_manual_marks_total",
		Help: "Manual attendance overrides written.",
	})

	// AutoAbsences counts absence records created by reconciliation.
	AutoAbsences = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_auto_absences_total",
		Help: "Absence records inserted when sessions closed.",
	})

	// FlushFailures counts persistence writes that failed.
	FlushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_flush_failures_total",
		Help: "Failed attempts to persist the attendance ledger.",
	})
)
