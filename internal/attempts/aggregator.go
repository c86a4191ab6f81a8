// Package attempts groups a student's submissions into one gradable
// attempt and finalizes it. Grading is strict all-or-nothing: a single
// failed question fails the attempt.
package attempts

import (
	"time"

	"gorm.io/gorm"

	"examgate_backend/internal/models"
)

// Aggregator creates, grows and finalizes attempts. Now is injectable for
// tests.
type Aggregator struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{DB: db, Now: time.Now}
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Create starts a new empty attempt. The overall status defaults to failed
// until completion proves otherwise.
func (a *Aggregator) Create(userID, courseID string, level int) (*models.Attempt, error) {
	if userID == "" || courseID == "" || level < 1 {
		return nil, ErrInvalidInput
	}
	attempt := models.Attempt{
		UserID:        userID,
		CourseID:      courseID,
		Level:         level,
		OverallStatus: models.AttemptFailed,
		StartedAt:     a.now(),
	}
	if err := a.DB.Create(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Get loads an attempt with its submission links.
func (a *Aggregator) Get(attemptID uint) (*models.Attempt, error) {
	var attempt models.Attempt
	err := a.DB.Preload("Submissions", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&attempt, attemptID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// AddSubmission appends a submission to the attempt if it is not already
// linked, and recounts total questions. Finalized attempts reject new
// submissions.
func (a *Aggregator) AddSubmission(attemptID uint, submissionID string) (*models.Attempt, error) {
	if submissionID == "" {
		return nil, ErrInvalidInput
	}
	attempt, err := a.Get(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.CompletedAt != nil {
		return nil, ErrAlreadyCompleted
	}

	linked := false
	for _, s := range attempt.Submissions {
		if s.SubmissionID == submissionID {
			linked = true
			break
		}
	}
	if !linked {
		link := models.AttemptSubmission{
			AttemptID:    attempt.ID,
			SubmissionID: submissionID,
			Position:     len(attempt.Submissions),
		}
		if err := a.DB.Create(&link).Error; err != nil {
			return nil, err
		}
		attempt.Submissions = append(attempt.Submissions, link)
	}

	attempt.TotalQuestions = len(attempt.Submissions)
	if err := a.DB.Model(attempt).Update("total_questions", attempt.TotalQuestions).Error; err != nil {
		return nil, err
	}
	return attempt, nil
}

// Complete finalizes an attempt: loads every linked submission, counts the
// passed ones, and marks the attempt passed only if every question passed.
// Completing an empty attempt is a hard error. Completing twice is a no-op
// returning the already-finalized attempt, never a re-grade.
func (a *Aggregator) Complete(attemptID uint, feedback string) (*models.Attempt, error) {
	attempt, err := a.Get(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.CompletedAt != nil {
		return attempt, nil
	}
	if len(attempt.Submissions) == 0 {
		return nil, ErrNoSubmissions
	}

	err = a.DB.Transaction(func(tx *gorm.DB) error {
		var current models.Attempt
		if err := tx.First(&current, attempt.ID).Error; err != nil {
			return err
		}
		if current.CompletedAt != nil {
			attempt = &current
			return nil
		}

		ids := make([]string, 0, len(attempt.Submissions))
		for _, link := range attempt.Submissions {
			ids = append(ids, link.SubmissionID)
		}
		var subs []models.Submission
		if err := tx.Where("id IN ?", ids).Find(&subs).Error; err != nil {
			return err
		}

		passed := 0
		for _, s := range subs {
			if s.Accepted() {
				passed++
			}
		}

		now := a.now()
		attempt.TotalQuestions = len(attempt.Submissions)
		attempt.PassedCount = passed
		attempt.OverallStatus = models.AttemptFailed
		if passed == attempt.TotalQuestions {
			attempt.OverallStatus = models.AttemptPassed
		}
		attempt.CompletedAt = &now
		if feedback != "" {
			attempt.UserFeedback = feedback
		}
		return tx.Save(attempt).Error
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// ListOpen returns the user's attempts with no completion timestamp.
// courseID narrows to one assessment when non-empty.
func (a *Aggregator) ListOpen(userID, courseID string, level int) ([]models.Attempt, error) {
	q := a.DB.Where("user_id = ? AND completed_at IS NULL", userID)
	if courseID != "" {
		q = q.Where("course_id = ? AND level = ?", courseID, level)
	}
	var open []models.Attempt
	if err := q.Find(&open).Error; err != nil {
		return nil, err
	}
	return open, nil
}
