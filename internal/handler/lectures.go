package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) startLecture(c *gin.Context) {
	var req struct {
		DurationMinutes int `json:"duration_minutes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	unit := c.Param("unit")
	maxMinutes := int(h.eng.MaxDuration() / time.Minute)
	if req.DurationMinutes <= 0 || (maxMinutes > 0 && req.DurationMinutes > maxMinutes) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration_minutes must be between 1 and " + strconv.Itoa(maxMinutes)})
		return
	}

	if !h.eng.StartLecture(c.Request.Context(), unit, req.DurationMinutes) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "A lecture is already active for this unit."})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"message":   "Lecture started.",
		"unit_code": unit,
		"duration":  req.DurationMinutes,
	})
}

func (h *Handler) endLecture(c *gin.Context) {
	if !h.eng.EndLecture(c.Request.Context(), c.Param("unit")) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No active lecture for this unit."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Lecture ended. Absent students recorded."})
}

func (h *Handler) activeLectures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lectures": h.eng.ActiveLectures(c.Request.Context())})
}

func (h *Handler) dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.eng.DashboardSummary(c.Request.Context(), c.Param("unit")))
}

func (h *Handler) sessionHistory(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	sessions, err := h.summaries.ListByUnit(c.Request.Context(), c.Param("unit"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
