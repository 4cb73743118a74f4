package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"unitattendance/internal/attendance"
	"unitattendance/internal/auth"
)

const msgNotRecorded = "Could not record attendance."

func (h *Handler) mark(c *gin.Context) {
	var req struct {
		UnitCode string `json:"unit_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	c.JSON(http.StatusOK, h.eng.MarkAttendance(c.Request.Context(), claims.Subject, req.UnitCode))
}

func (h *Handler) status(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	c.JSON(http.StatusOK, h.eng.StatusForStudent(c.Request.Context(), claims.Subject, c.Query("unit_code")))
}

func (h *Handler) activeUnits(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	units := h.eng.ActiveUnitsForStudent(c.Request.Context(), claims.Subject)
	c.JSON(http.StatusOK, gin.H{"units": units, "can_mark": len(units) > 0})
}

func (h *Handler) manualMark(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		UnitCode  string `json:"unit_code" binding:"required"`
		Present   *bool  `json:"present" binding:"required"`
		Date      string `json:"date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ok := h.eng.ManuallyMarkAttendance(c.Request.Context(), req.StudentID, req.UnitCode, *req.Present, req.Date)
	writeManual(c, ok)
}

func (h *Handler) record(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		UnitCode  string `json:"unit_code" binding:"required"`
		Status    string `json:"status" binding:"required"`
		Date      string `json:"date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ok := h.eng.RecordAttendance(c.Request.Context(), req.StudentID, req.UnitCode, req.Status, req.Date)
	writeManual(c, ok)
}

func writeManual(c *gin.Context, ok bool) {
	if !ok {
		c.JSON(http.StatusOK, attendance.MarkResult{Success: false, Message: msgNotRecorded})
		return
	}
	c.JSON(http.StatusOK, attendance.MarkResult{Success: true, Message: "Attendance recorded."})
}

func (h *Handler) studentHistory(c *gin.Context) {
	id := c.Param("id")
	claims, _ := auth.ClaimsFrom(c)
	if !claims.IsStaff() && !strings.EqualFold(claims.Subject, id) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	recs := h.eng.StudentHistory(id, c.Query("unit_code"))
	c.JSON(http.StatusOK, gin.H{"records": h.views(c, recs)})
}
