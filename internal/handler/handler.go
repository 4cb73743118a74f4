package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"unitattendance/internal/attendance"
	"unitattendance/internal/auth"
)

// SummaryLister returns past session summaries for a unit.
type SummaryLister interface {
	ListByUnit(ctx context.Context, unitCode string, limit int) ([]attendance.SessionSummary, error)
}

// Handler serves the attendance HTTP API on top of one Engine.
type Handler struct {
	eng        *attendance.Engine
	roster     attendance.RosterProvider
	summaries  SummaryLister
	signingKey string
	issuer     string
}

// Config wires a Handler.
type Config struct {
	Engine     *attendance.Engine
	Roster     attendance.RosterProvider
	Summaries  SummaryLister // optional
	SigningKey string
	Issuer     string
}

// New builds a Handler.
func New(cfg Config) *Handler {
	return &Handler{
		eng:        cfg.Engine,
		roster:     cfg.Roster,
		summaries:  cfg.Summaries,
		signingKey: cfg.SigningKey,
		issuer:     cfg.Issuer,
	}
}

// Register mounts the /v1 routes. Extra middleware runs after authentication.
func (h *Handler) Register(r gin.IRouter, mw ...gin.HandlerFunc) {
	v1 := r.Group("/v1", auth.Bearer(h.signingKey, h.issuer))
	v1.Use(mw...)

	staff := auth.RequireRole(auth.RoleLecturer, auth.RoleHOD)
	student := auth.RequireRole(auth.RoleStudent)
	hod := auth.RequireRole(auth.RoleHOD)

	lectures := v1.Group("/lectures")
	lectures.GET("/active", staff, h.activeLectures)
	lectures.POST("/:unit/start", staff, h.startLecture)
	lectures.POST("/:unit/end", staff, h.endLecture)
	lectures.GET("/:unit/dashboard", staff, h.dashboard)
	if h.summaries != nil {
		lectures.GET("/:unit/sessions", staff, h.sessionHistory)
	}

	att := v1.Group("/attendance")
	att.POST("/mark", student, h.mark)
	att.GET("/status", student, h.status)
	att.GET("/active-units", student, h.activeUnits)
	att.POST("/manual", staff, h.manualMark)
	att.POST("/record", staff, h.record)

	v1.GET("/units/:unit/records", staff, h.unitRecords)
	v1.GET("/units/:unit/statistics", staff, h.statistics)
	v1.GET("/students/:id/history", h.studentHistory)

	v1.GET("/reports/attendance.csv", hod, h.csvReport)
	v1.POST("/admin/flush", hod, h.flush)
}

func (h *Handler) flush(c *gin.Context) {
	if err := h.eng.Flush(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "flush failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "flushed"})
}
