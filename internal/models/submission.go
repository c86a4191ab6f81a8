package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Submission is a graded per-question result recorded by the external
// grading engine. The aggregator only reads id/status/passed.
type Submission struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"index"`
	CourseID  string `gorm:"index"`
	Level     int
	Status    string
	Passed    bool
	CreatedAt time.Time
}

func (s *Submission) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Accepted reports whether this submission counts as passed for grading.
func (s *Submission) Accepted() bool {
	return s.Passed || s.Status == AttemptPassed
}
