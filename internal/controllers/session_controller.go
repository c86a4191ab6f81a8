package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"examgate_backend/internal/models"
	"examgate_backend/internal/sessions"
	"examgate_backend/internal/ws"
)

type SessionController struct {
	Registry *sessions.Registry
	Hubs     *ws.Hubs
}

type startSessionRequest struct {
	CourseID        string `json:"course_id" binding:"required"`
	Level           int    `json:"level" binding:"required,min=1"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1"`
}

// Start opens a manual session, superseding any running one for the same
// (course, level).
func (sc *SessionController) Start(c *gin.Context) {
	uVal, _ := c.Get("user")
	admin := uVal.(models.User)

	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := sc.Registry.Start(req.CourseID, req.Level, req.DurationMinutes, admin.UserID)
	if err != nil {
		serviceError(c, err)
		return
	}

	if sc.Hubs != nil {
		sc.Hubs.Proctor.Broadcast(ws.ProctorEvent{
			Type:      ws.EventSessionStarted,
			CourseID:  session.CourseID,
			Level:     session.Level,
			SessionID: session.ID,
			At:        time.Now(),
		})
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":               session.ID,
		"course_id":        session.CourseID,
		"level":            session.Level,
		"start_time":       session.StartTime,
		"duration_minutes": session.DurationMinutes,
		"ends_at":          session.EndsAt(),
		"created_by":       session.CreatedBy,
	})
}

type endSessionRequest struct {
	Reason string `json:"reason"`
}

// End deactivates a manual session; the registry's cascade consumes its
// attendance records and blocks the affected students best-effort.
func (sc *SessionController) End(c *gin.Context) {
	var req endSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := sc.Registry.End(c.Param("id"), req.Reason)
	if err != nil {
		serviceError(c, err)
		return
	}

	if sc.Hubs != nil {
		sc.Hubs.Proctor.Broadcast(ws.ProctorEvent{
			Type:      ws.EventSessionEnded,
			CourseID:  session.CourseID,
			Level:     session.Level,
			SessionID: session.ID,
			Reason:    session.EndedReason,
			At:        time.Now(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           session.ID,
		"is_active":    session.IsActive,
		"ended_reason": session.EndedReason,
		"forced_end":   session.ForcedEnd,
	})
}

// Active lists every active session and window annotated against now.
func (sc *SessionController) Active(c *gin.Context) {
	all, err := sc.Registry.AllActive()
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": all})
}

// Current resolves the session governing one (course, level), if any.
func (sc *SessionController) Current(c *gin.Context) {
	courseID := c.Query("course_id")
	level, _ := strconv.Atoi(c.Query("level"))
	if courseID == "" || level < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course_id and level are required"})
		return
	}

	session, err := sc.Registry.FindActive(courseID, level)
	if err != nil {
		serviceError(c, err)
		return
	}
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

type windowRequest struct {
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
	Active    *bool  `json:"active"`
}

// CreateWindow adds a recurring daily window ("HH:MM", same-day only).
func (sc *SessionController) CreateWindow(c *gin.Context) {
	var req windowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	window, err := sc.Registry.CreateWindow(req.StartTime, req.EndTime, active)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, windowResponse(window))
}

type windowUpdateRequest struct {
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Active    *bool   `json:"active"`
}

func (sc *SessionController) UpdateWindow(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req windowUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	window, err := sc.Registry.UpdateWindow(uint(id), req.StartTime, req.EndTime, req.Active)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, windowResponse(window))
}

func (sc *SessionController) ListWindows(c *gin.Context) {
	windows, err := sc.Registry.ListWindows()
	if err != nil {
		serviceError(c, err)
		return
	}
	out := make([]gin.H, 0, len(windows))
	for i := range windows {
		out = append(out, windowResponse(&windows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (sc *SessionController) DeleteWindow(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := sc.Registry.DeleteWindow(uint(id)); err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func windowResponse(w *models.RecurringWindow) gin.H {
	return gin.H{
		"id":         w.ID,
		"session_id": w.SessionID(),
		"start_time": w.StartTime,
		"end_time":   w.EndTime,
		"is_active":  w.IsActive,
	}
}
