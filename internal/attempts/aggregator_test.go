package attempts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examgate_backend/internal/models"
	"examgate_backend/internal/testutil"
)

func newTestAggregator(t *testing.T) (*Aggregator, *time.Time) {
	db := testutil.OpenDB(t)
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	a := NewAggregator(db)
	a.Now = func() time.Time { return now }
	return a, &now
}

func (a *Aggregator) mustRecordSubmission(t *testing.T, userID string, passed bool) string {
	t.Helper()
	status := models.AttemptFailed
	if passed {
		status = models.AttemptPassed
	}
	sub := models.Submission{UserID: userID, CourseID: "course-1", Level: 1, Status: status, Passed: passed}
	require.NoError(t, a.DB.Create(&sub).Error)
	return sub.ID
}

func TestCreateDefaults(t *testing.T) {
	a, _ := newTestAggregator(t)

	attempt, err := a.Create("student-1", "course-1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptFailed, attempt.OverallStatus)
	assert.Nil(t, attempt.CompletedAt)
	assert.Zero(t, attempt.TotalQuestions)

	_, err = a.Create("", "course-1", 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddSubmissionAppendsOnce(t *testing.T) {
	a, _ := newTestAggregator(t)

	attempt, err := a.Create("student-1", "course-1", 1)
	require.NoError(t, err)

	s1 := a.mustRecordSubmission(t, "student-1", true)
	s2 := a.mustRecordSubmission(t, "student-1", true)

	attempt, err = a.AddSubmission(attempt.ID, s1)
	require.NoError(t, err)
	attempt, err = a.AddSubmission(attempt.ID, s1) // duplicate ignored
	require.NoError(t, err)
	attempt, err = a.AddSubmission(attempt.ID, s2)
	require.NoError(t, err)

	assert.Equal(t, 2, attempt.TotalQuestions)
	require.Len(t, attempt.Submissions, 2)
	assert.Equal(t, s1, attempt.Submissions[0].SubmissionID)
	assert.Equal(t, s2, attempt.Submissions[1].SubmissionID)
}

func TestCompleteEmptyFails(t *testing.T) {
	a, _ := newTestAggregator(t)

	attempt, err := a.Create("student-1", "course-1", 1)
	require.NoError(t, err)

	_, err = a.Complete(attempt.ID, "")
	assert.ErrorIs(t, err, ErrNoSubmissions)

	reloaded, err := a.Get(attempt.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.CompletedAt)
}

func TestCompleteAllOrNothing(t *testing.T) {
	a, _ := newTestAggregator(t)

	attempt, err := a.Create("student-1", "course-1", 1)
	require.NoError(t, err)
	_, err = a.AddSubmission(attempt.ID, a.mustRecordSubmission(t, "student-1", true))
	require.NoError(t, err)
	_, err = a.AddSubmission(attempt.ID, a.mustRecordSubmission(t, "student-1", false))
	require.NoError(t, err)

	done, err := a.Complete(attempt.ID, "felt rushed")
	require.NoError(t, err)
	assert.Equal(t, 2, done.TotalQuestions)
	assert.Equal(t, 1, done.PassedCount)
	assert.Equal(t, models.AttemptFailed, done.OverallStatus)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, "felt rushed", done.UserFeedback)
}

func TestCompleteAllPassed(t *testing.T) {
	a, _ := newTestAggregator(t)

	attempt, err := a.Create("student-1", "course-1", 1)
	require.NoError(t, err)
	_, err = a.AddSubmission(attempt.ID, a.mustRecordSubmission(t, "student-1", true))
	require.NoError(t, err)
	_, err = a.AddSubmission(attempt.ID, a.mustRecordSubmission(t, "student-1", true))
	require.NoError(t, err)

	done, err := a.Complete(attempt.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptPassed, done.OverallStatus)
	assert.Equal(t, 2, done.PassedCount)
}

func TestCompleteStatusStringCounts(t *testing.T) {
	a, _ := newTestAggregator(t)

	attempt, err := a.Create("student-1", "course-1", 1)
	require.NoError(t, err)

	// passed=false but status says passed: the grader's word counts.
	sub := models.Submission{UserID: "student-1", CourseID: "course-1", Level: 1, Status: models.AttemptPassed, Passed: false}
	require.NoError(t, a.DB.Create(&sub).Error)
	_, err = a.AddSubmission(attempt.ID, sub.ID)
	require.NoError(t, err)

	done, err := a.Complete(attempt.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptPassed, done.OverallStatus)
}

func TestCompleteTwiceNeverRegrades(t *testing.T) {
	a, now := newTestAggregator(t)

	attempt, err := a.Create("student-1", "course-1", 1)
	require.NoError(t, err)
	subID := a.mustRecordSubmission(t, "student-1", true)
	_, err = a.AddSubmission(attempt.ID, subID)
	require.NoError(t, err)

	first, err := a.Complete(attempt.ID, "first")
	require.NoError(t, err)
	firstCompleted := *first.CompletedAt

	// Flip the underlying submission and move the clock: the second call
	// must return the original grading untouched.
	require.NoError(t, a.DB.Model(&models.Submission{}).Where("id = ?", subID).
		Updates(map[string]any{"passed": false, "status": models.AttemptFailed}).Error)
	*now = now.Add(10 * time.Minute)

	second, err := a.Complete(attempt.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptPassed, second.OverallStatus)
	assert.True(t, second.CompletedAt.Equal(firstCompleted))
	assert.Equal(t, "first", second.UserFeedback)
}

func TestAddSubmissionAfterCompleteRejected(t *testing.T) {
	a, _ := newTestAggregator(t)

	attempt, err := a.Create("student-1", "course-1", 1)
	require.NoError(t, err)
	_, err = a.AddSubmission(attempt.ID, a.mustRecordSubmission(t, "student-1", true))
	require.NoError(t, err)
	_, err = a.Complete(attempt.ID, "")
	require.NoError(t, err)

	_, err = a.AddSubmission(attempt.ID, a.mustRecordSubmission(t, "student-1", true))
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestListOpen(t *testing.T) {
	a, _ := newTestAggregator(t)

	open, err := a.Create("student-1", "course-1", 1)
	require.NoError(t, err)
	closed, err := a.Create("student-1", "course-1", 1)
	require.NoError(t, err)
	_, err = a.AddSubmission(closed.ID, a.mustRecordSubmission(t, "student-1", true))
	require.NoError(t, err)
	_, err = a.Complete(closed.ID, "")
	require.NoError(t, err)
	_, err = a.Create("student-2", "course-1", 1)
	require.NoError(t, err)

	got, err := a.ListOpen("student-1", "", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)

	got, err = a.ListOpen("student-1", "course-2", 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}
