package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"examgate_backend/internal/models"
)

// SubmissionController records graded per-question results. The grading
// engine itself is external; this is its write path into the aggregator's
// world.
type SubmissionController struct {
	DB *gorm.DB
}

type recordSubmissionRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	CourseID string `json:"course_id" binding:"required"`
	Level    int    `json:"level" binding:"required,min=1"`
	Status   string `json:"status" binding:"required"`
	Passed   bool   `json:"passed"`
}

func (sc *SubmissionController) Record(c *gin.Context) {
	var req recordSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := models.Submission{
		UserID:   req.UserID,
		CourseID: req.CourseID,
		Level:    req.Level,
		Status:   req.Status,
		Passed:   req.Passed,
	}
	if err := sc.DB.Create(&sub).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         sub.ID,
		"user_id":    sub.UserID,
		"course_id":  sub.CourseID,
		"level":      sub.Level,
		"status":     sub.Status,
		"passed":     sub.Passed,
		"created_at": sub.CreatedAt,
	})
}
