package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"examgate_backend/internal/attempts"
	"examgate_backend/internal/models"
)

type AttemptController struct {
	Attempts *attempts.Aggregator
}

type createAttemptRequest struct {
	CourseID string `json:"course_id" binding:"required"`
	Level    int    `json:"level" binding:"required,min=1"`
}

// Create starts a new attempt for the calling student.
func (tc *AttemptController) Create(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	var req createAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attempt, err := tc.Attempts.Create(user.UserID, req.CourseID, req.Level)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attemptResponse(attempt))
}

type addSubmissionRequest struct {
	SubmissionID string `json:"submission_id" binding:"required"`
}

// AddSubmission links a graded submission into the attempt.
func (tc *AttemptController) AddSubmission(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req addSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attempt, err := tc.ownAttempt(uint(id), user)
	if err != nil {
		serviceError(c, err)
		return
	}
	if attempt == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your attempt"})
		return
	}

	attempt, err = tc.Attempts.AddSubmission(uint(id), req.SubmissionID)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, attemptResponse(attempt))
}

type completeAttemptRequest struct {
	Feedback string `json:"feedback"`
}

// Complete finalizes and grades the attempt.
func (tc *AttemptController) Complete(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req completeAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attempt, err := tc.ownAttempt(uint(id), user)
	if err != nil {
		serviceError(c, err)
		return
	}
	if attempt == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your attempt"})
		return
	}

	attempt, err = tc.Attempts.Complete(uint(id), req.Feedback)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, attemptResponse(attempt))
}

// Get returns one attempt. Students see only their own; proctors and
// admins see any.
func (tc *AttemptController) Get(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	attempt, err := tc.Attempts.Get(uint(id))
	if err != nil {
		serviceError(c, err)
		return
	}
	if user.Role == "student" && attempt.UserID != user.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your attempt"})
		return
	}
	c.JSON(http.StatusOK, attemptResponse(attempt))
}

// ownAttempt loads the attempt and returns nil when a student tries to
// touch someone else's.
func (tc *AttemptController) ownAttempt(id uint, user models.User) (*models.Attempt, error) {
	attempt, err := tc.Attempts.Get(id)
	if err != nil {
		return nil, err
	}
	if user.Role == "student" && attempt.UserID != user.UserID {
		return nil, nil
	}
	return attempt, nil
}

func attemptResponse(a *models.Attempt) gin.H {
	submissionIDs := make([]string, 0, len(a.Submissions))
	for _, link := range a.Submissions {
		submissionIDs = append(submissionIDs, link.SubmissionID)
	}
	return gin.H{
		"id":              a.ID,
		"user_id":         a.UserID,
		"course_id":       a.CourseID,
		"level":           a.Level,
		"submission_ids":  submissionIDs,
		"total_questions": a.TotalQuestions,
		"passed_count":    a.PassedCount,
		"overall_status":  a.OverallStatus,
		"started_at":      a.StartedAt,
		"completed_at":    a.CompletedAt,
		"user_feedback":   a.UserFeedback,
	}
}
