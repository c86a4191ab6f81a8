package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"examgate_backend/internal/attempts"
	"examgate_backend/internal/attendance"
	"examgate_backend/internal/sessions"
)

// serviceError maps service sentinel errors onto HTTP status codes:
// validation 400, not found 404, conflict 409, everything else 500.
func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sessions.ErrInvalidInput),
		errors.Is(err, sessions.ErrInvalidWindow),
		errors.Is(err, attendance.ErrInvalidInput),
		errors.Is(err, attendance.ErrUnknownAction),
		errors.Is(err, attempts.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, sessions.ErrNotFound),
		errors.Is(err, attendance.ErrNotFound),
		errors.Is(err, attempts.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrInvalidTransition),
		errors.Is(err, attempts.ErrNoSubmissions),
		errors.Is(err, attempts.ErrAlreadyCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
