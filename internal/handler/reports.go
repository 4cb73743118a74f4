package handler

import (
	"encoding/csv"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"unitattendance/internal/attendance"
)

const (
	unknownStudent = "Unknown Student"
	unknownCourse  = "N/A"
)

var csvHeader = []string{"Student ID", "Student Name", "Course", "Unit Code", "Date", "Time", "Status"}

// recordView is a record joined with the student's roster entry.
type recordView struct {
	attendance.Record
	StudentName string `json:"studentName"`
	Course      string `json:"course"`
	Time        string `json:"time"`
	Status      string `json:"status"`
}

// views resolves names once per student.
func (h *Handler) views(c *gin.Context, recs []attendance.Record) []recordView {
	type who struct{ name, course string }
	seen := make(map[string]who)
	out := make([]recordView, 0, len(recs))
	for _, r := range recs {
		w, ok := seen[r.StudentID]
		if !ok {
			w = who{unknownStudent, unknownCourse}
			st, found, err := h.roster.Student(c.Request.Context(), r.StudentID)
			if err != nil {
				log.Printf("roster lookup %s failed: %v", r.StudentID, err)
			} else if found {
				w = who{st.Name, st.Course}
			}
			seen[r.StudentID] = w
		}
		out = append(out, recordView{Record: r, StudentName: w.name, Course: w.course, Time: r.Time(), Status: r.Status()})
	}
	return out
}

func (h *Handler) unitRecords(c *gin.Context) {
	recs := h.eng.UnitRecords(c.Param("unit"), c.Query("date"))
	c.JSON(http.StatusOK, gin.H{"records": h.views(c, recs)})
}

func (h *Handler) statistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.eng.Statistics(c.Param("unit")))
}

func (h *Handler) csvReport(c *gin.Context) {
	recs := h.eng.Records(attendance.Filter{
		UnitCode:  c.Query("unit_code"),
		StudentID: c.Query("student_id"),
		Date:      c.Query("date"),
		Status:    c.Query("status"),
	})

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="attendance_report.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(csvHeader)
	for _, v := range h.views(c, recs) {
		_ = w.Write([]string{v.StudentID, v.StudentName, v.Course, v.UnitCode, v.Date, v.Time, v.Status})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Printf("write csv report: %v", err)
	}
}
