package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reasons a manual session stopped being active.
const (
	EndedNormal  = "NORMAL"
	EndedForced  = "FORCED"
	EndedTimeout = "TIMEOUT"
)

// RecurringSessionPrefix tags synthetic session IDs derived from a
// RecurringWindow, e.g. "daily_12".
const RecurringSessionPrefix = "daily_"

// ManualSession is an admin-started, absolute-time-bounded access window
// for one (course, level). At most one is active per (course, level);
// starting a new one forcibly ends the previous.
type ManualSession struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	CourseID        string `gorm:"index:idx_sessions_course_level"`
	Level           int    `gorm:"index:idx_sessions_course_level"`
	StartTime       time.Time
	DurationMinutes int
	IsActive        bool `gorm:"index"`
	EndedReason     string
	ForcedEnd       bool
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s *ManualSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// EndsAt is the scheduled end of the session window.
func (s *ManualSession) EndsAt() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// RecurringWindow is a daily repeating access window. StartTime and EndTime
// are "HH:MM" clock strings evaluated against today's date in the service's
// fixed timezone. Windows never span midnight (end must be after start).
type RecurringWindow struct {
	ID        uint   `gorm:"primaryKey"`
	StartTime string `gorm:"size:5"`
	EndTime   string `gorm:"size:5"`
	IsActive  bool   `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionID is the synthetic session id attendance records bind to when
// access was granted through this window.
func (w *RecurringWindow) SessionID() string {
	return fmt.Sprintf("%s%d", RecurringSessionPrefix, w.ID)
}

// TestIdentifier is the composite key attendance records use for one
// (course, level) assessment.
func TestIdentifier(courseID string, level int) string {
	return fmt.Sprintf("%s_%d", courseID, level)
}

// ParseTestIdentifier splits a composite key back into course id and level.
func ParseTestIdentifier(testID string) (string, int, bool) {
	i := strings.LastIndex(testID, "_")
	if i < 1 || i == len(testID)-1 {
		return "", 0, false
	}
	level, err := strconv.Atoi(testID[i+1:])
	if err != nil || level < 1 {
		return "", 0, false
	}
	return testID[:i], level, true
}
