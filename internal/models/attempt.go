package models

import (
	"time"
)

// Attempt grading outcomes.
const (
	AttemptPassed = "passed"
	AttemptFailed = "failed"
)

// Attempt aggregates one student's submissions for a (course, level)
// assessment and is graded as a unit. CompletedAt is set exactly once.
type Attempt struct {
	ID             uint   `gorm:"primaryKey"`
	UserID         string `gorm:"index"`
	CourseID       string `gorm:"index"`
	Level          int
	TotalQuestions int
	PassedCount    int
	OverallStatus  string
	StartedAt      time.Time
	CompletedAt    *time.Time `gorm:"index"`
	UserFeedback   string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Submissions []AttemptSubmission `gorm:"foreignKey:AttemptID"`
}

// AttemptSubmission links a submission into an attempt. Position preserves
// insertion order; the unique index keeps the list append-only without
// duplicates.
type AttemptSubmission struct {
	ID           uint   `gorm:"primaryKey"`
	AttemptID    uint   `gorm:"index:idx_attempt_submission,unique"`
	SubmissionID string `gorm:"index:idx_attempt_submission,unique"`
	Position     int
	CreatedAt    time.Time
}
