package controllers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"examgate_backend/internal/attempts"
	"examgate_backend/internal/attendance"
	"examgate_backend/internal/models"
	"examgate_backend/internal/ws"
)

// ForceSubmitFeedback tags attempts finalized through an admin unlock.
const ForceSubmitFeedback = "Force-submitted by admin"

type AttendanceController struct {
	Ledger   *attendance.Ledger
	Attempts *attempts.Aggregator
	Hubs     *ws.Hubs
}

type attendanceRequest struct {
	CourseID string `json:"course_id" binding:"required"`
	Level    int    `json:"level" binding:"required,min=1"`
}

// Request files (or revives) the student's access request for the
// currently active session.
func (ac *AttendanceController) Request(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := ac.Ledger.Request(user.UserID, req.CourseID, req.Level)
	if err != nil {
		serviceError(c, err)
		return
	}
	broadcastAttendance(ac.Hubs, record, ws.EventAttendanceUpdate, "")

	c.JSON(http.StatusOK, gin.H{
		"attendance_id": record.ID,
		"status":        record.Status,
		"session_id":    record.SessionID,
		"requested_at":  record.RequestedAt,
	})
}

// Status reports the student's current standing for one assessment,
// including the resolver-derived effective end time of the live session.
func (ac *AttendanceController) Status(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	courseID := c.Query("course_id")
	level, _ := strconv.Atoi(c.Query("level"))

	view, err := ac.Ledger.Status(user.UserID, courseID, level)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type lockRequest struct {
	CourseID       string `json:"course_id" binding:"required"`
	Level          int    `json:"level" binding:"required,min=1"`
	Reason         string `json:"reason" binding:"required"`
	ViolationCount int    `json:"violation_count"`
}

// Lock is called by the exam client when the violation threshold trips.
func (ac *AttendanceController) Lock(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := ac.Ledger.Lock(user.UserID, req.CourseID, req.Level, req.Reason, req.ViolationCount)
	if err != nil {
		serviceError(c, err)
		return
	}
	broadcastAttendance(ac.Hubs, record, ws.EventAttendanceUpdate, req.Reason)

	c.JSON(http.StatusOK, gin.H{
		"attendance_id":   record.ID,
		"status":          record.Status,
		"locked":          record.IsLocked(),
		"locked_reason":   record.LockedReason,
		"violation_count": record.ViolationCount,
	})
}

type approveRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// Approve decides a pending request.
func (ac *AttendanceController) Approve(c *gin.Context) {
	uVal, _ := c.Get("user")
	admin := uVal.(models.User)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := ac.Ledger.Approve(uint(id), admin.UserID, *req.Accept)
	if err != nil {
		serviceError(c, err)
		return
	}
	broadcastAttendance(ac.Hubs, record, ws.EventAttendanceUpdate, "")

	c.JSON(http.StatusOK, gin.H{
		"attendance_id": record.ID,
		"status":        record.Status,
		"approved_at":   record.ApprovedAt,
		"approved_by":   record.ApprovedBy,
	})
}

type unlockRequest struct {
	Action string `json:"action" binding:"required"`
}

// Unlock releases a locked record. The submit action also force-finalizes
// the student's open attempts for that assessment.
func (ac *AttendanceController) Unlock(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := ac.Ledger.Unlock(uint(id), req.Action)
	if err != nil {
		serviceError(c, err)
		return
	}

	event := ws.EventAttendanceUpdate
	if req.Action == attendance.ActionSubmit {
		event = ws.EventForceSubmitted
		ac.forceCompleteAttempts(record)
	}
	broadcastAttendance(ac.Hubs, record, event, record.LockedReason)

	c.JSON(http.StatusOK, gin.H{
		"attendance_id":   record.ID,
		"status":          record.Status,
		"locked":          record.IsLocked(),
		"locked_reason":   record.LockedReason,
		"violation_count": record.ViolationCount,
		"is_used":         record.IsUsed(),
	})
}

func (ac *AttendanceController) forceCompleteAttempts(record *models.AttendanceRecord) {
	courseID, level, ok := models.ParseTestIdentifier(record.TestIdentifier)
	if !ok {
		log.Printf("unlock: unparseable test identifier %q", record.TestIdentifier)
		return
	}
	open, err := ac.Attempts.ListOpen(record.UserID, courseID, level)
	if err != nil {
		log.Printf("unlock: listing open attempts for %s: %v", record.UserID, err)
		return
	}
	for _, attempt := range open {
		if _, err := ac.Attempts.Complete(attempt.ID, ForceSubmitFeedback); err != nil {
			log.Printf("unlock: completing attempt %d for %s: %v", attempt.ID, record.UserID, err)
		}
	}
}

type manualApproveRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	CourseID string `json:"course_id" binding:"required"`
	Level    int    `json:"level" binding:"required,min=1"`
}

// ManualApprove grants access proactively, with or without a live session.
func (ac *AttendanceController) ManualApprove(c *gin.Context) {
	uVal, _ := c.Get("user")
	admin := uVal.(models.User)

	var req manualApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := ac.Ledger.ManualApprove(req.UserID, req.CourseID, req.Level, admin.UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	broadcastAttendance(ac.Hubs, record, ws.EventAttendanceUpdate, "")

	c.JSON(http.StatusOK, gin.H{
		"attendance_id": record.ID,
		"status":        record.Status,
		"session_id":    record.SessionID,
		"approved_at":   record.ApprovedAt,
		"approved_by":   record.ApprovedBy,
	})
}

type bulkApproveRequest struct {
	Emails   []string `json:"emails" binding:"required,min=1"`
	CourseID string   `json:"course_id" binding:"required"`
	Level    int      `json:"level" binding:"required,min=1"`
}

// BulkApprove manual-approves a list of students by email. Per-email
// failures are reported in the response, not fatal.
func (ac *AttendanceController) BulkApprove(c *gin.Context) {
	uVal, _ := c.Get("user")
	admin := uVal.(models.User)

	var req bulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := ac.Ledger.BulkApprove(req.Emails, req.CourseID, req.Level, admin.UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
