package guardian

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"examgate_backend/internal/attempts"
	"examgate_backend/internal/models"
	"examgate_backend/internal/sessions"
	"examgate_backend/internal/testutil"
)

var wib = time.FixedZone("WIB", 7*3600)

type sweepFixture struct {
	db       *gorm.DB
	guardian *Guardian
	registry *sessions.Registry
	attempts *attempts.Aggregator
	now      *time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	db := testutil.OpenDB(t)
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, wib)
	clock := func() time.Time { return now }

	registry := sessions.NewRegistry(db, wib)
	registry.Now = clock
	aggregator := attempts.NewAggregator(db)
	aggregator.Now = clock

	g := New(db, registry, aggregator, nil)
	g.Now = clock

	return &sweepFixture{db: db, guardian: g, registry: registry, attempts: aggregator, now: &now}
}

func (f *sweepFixture) addStudent(t *testing.T, userID string) *models.User {
	t.Helper()
	u := models.User{UserID: userID, Email: userID + "@example.com", Role: "student", Active: true}
	require.NoError(t, f.db.Create(&u).Error)
	return &u
}

func (f *sweepFixture) bindAttendance(t *testing.T, userID string, sessionID *string) *models.AttendanceRecord {
	t.Helper()
	rec := models.AttendanceRecord{
		UserID:         userID,
		TestIdentifier: models.TestIdentifier("course-1", 1),
		SessionID:      sessionID,
		Status:         models.AttendanceApproved,
		RequestedAt:    f.guardian.now(),
	}
	require.NoError(t, f.db.Create(&rec).Error)
	return &rec
}

func (f *sweepFixture) isBlocked(t *testing.T, userID string) bool {
	t.Helper()
	var u models.User
	require.NoError(t, f.db.Where("user_id = ?", userID).First(&u).Error)
	return u.IsBlocked
}

func TestSweepBlocksExpiredManualSession(t *testing.T) {
	f := newSweepFixture(t)
	f.addStudent(t, "student-1")

	session, err := f.registry.Start("course-1", 1, 60, "admin-1")
	require.NoError(t, err)
	record := f.bindAttendance(t, "student-1", &session.ID)

	attempt, err := f.attempts.Create("student-1", "course-1", 1)
	require.NoError(t, err)
	sub := models.Submission{UserID: "student-1", CourseID: "course-1", Level: 1, Status: models.AttemptPassed, Passed: true}
	require.NoError(t, f.db.Create(&sub).Error)
	_, err = f.attempts.AddSubmission(attempt.ID, sub.ID)
	require.NoError(t, err)

	// Inside the window: nothing to reconcile.
	stats, err := f.guardian.Sweep()
	require.NoError(t, err)
	assert.Zero(t, stats.Blocked)
	assert.False(t, f.isBlocked(t, "student-1"))

	// Past the window plus grace.
	*f.now = session.StartTime.Add(61 * time.Minute)
	stats, err = f.guardian.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Blocked)

	assert.True(t, f.isBlocked(t, "student-1"))

	var rec models.AttendanceRecord
	require.NoError(t, f.db.First(&rec, record.ID).Error)
	assert.Equal(t, models.AttendanceUsed, rec.Status)

	done, err := f.attempts.Get(attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, SystemTerminatedFeedback, done.UserFeedback)
	assert.Equal(t, models.AttemptPassed, done.OverallStatus)
}

func TestSweepSkipsStudentsWithoutRecords(t *testing.T) {
	f := newSweepFixture(t)
	f.addStudent(t, "student-1")

	// No attendance at all: never auto-block. This is what protects a
	// freshly unblocked student who has not acted yet.
	stats, err := f.guardian.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scanned)
	assert.Zero(t, stats.Blocked)
	assert.False(t, f.isBlocked(t, "student-1"))
}

func TestSweepBypassRecordFollowsLiveSessions(t *testing.T) {
	f := newSweepFixture(t)
	f.addStudent(t, "student-1")
	f.bindAttendance(t, "student-1", nil)

	// A live recurring window anywhere keeps the bypass grant alive.
	_, err := f.registry.CreateWindow("09:00", "11:00", true)
	require.NoError(t, err)

	stats, err := f.guardian.Sweep()
	require.NoError(t, err)
	assert.Zero(t, stats.Blocked)
	assert.False(t, f.isBlocked(t, "student-1"))

	// Once nothing is live, the grant lapses.
	*f.now = time.Date(2025, 3, 10, 12, 0, 0, 0, wib)
	stats, err = f.guardian.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Blocked)
	assert.True(t, f.isBlocked(t, "student-1"))
}

func TestSweepExpiredRecurringWindow(t *testing.T) {
	f := newSweepFixture(t)
	f.addStudent(t, "student-1")

	window, err := f.registry.CreateWindow("09:00", "11:00", true)
	require.NoError(t, err)
	sessionID := window.SessionID()
	f.bindAttendance(t, "student-1", &sessionID)

	stats, err := f.guardian.Sweep()
	require.NoError(t, err)
	assert.Zero(t, stats.Blocked)

	*f.now = time.Date(2025, 3, 10, 11, 5, 0, 0, wib)
	stats, err = f.guardian.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Blocked)
	assert.True(t, f.isBlocked(t, "student-1"))
}

func TestSweepOrphanedSessionReference(t *testing.T) {
	f := newSweepFixture(t)
	f.addStudent(t, "student-1")

	orphan := "daily_999"
	f.bindAttendance(t, "student-1", &orphan)

	stats, err := f.guardian.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Blocked)
	assert.True(t, f.isBlocked(t, "student-1"))
}

func TestSweepIsolatesPerStudentFailures(t *testing.T) {
	f := newSweepFixture(t)
	f.addStudent(t, "student-1")
	f.addStudent(t, "student-2")

	// student-1 carries an open attempt with no submissions: completion
	// fails, but the block still lands and student-2 is still processed.
	session, err := f.registry.Start("course-1", 1, 30, "admin-1")
	require.NoError(t, err)
	f.bindAttendance(t, "student-1", &session.ID)
	f.bindAttendance(t, "student-2", &session.ID)
	_, err = f.attempts.Create("student-1", "course-1", 1)
	require.NoError(t, err)

	*f.now = session.StartTime.Add(31 * time.Minute)
	stats, err := f.guardian.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Blocked)
	assert.True(t, f.isBlocked(t, "student-1"))
	assert.True(t, f.isBlocked(t, "student-2"))
}

func TestSweepSkippedWhileInFlight(t *testing.T) {
	f := newSweepFixture(t)
	f.addStudent(t, "student-1")

	f.guardian.inFlight.Store(true)
	stats, err := f.guardian.Sweep()
	require.NoError(t, err)
	assert.True(t, stats.Skipped)
	assert.Zero(t, stats.Scanned)

	f.guardian.inFlight.Store(false)
	stats, err = f.guardian.Sweep()
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
	assert.Equal(t, 1, stats.Scanned)
}

func TestSweepCountsCheckErrors(t *testing.T) {
	f := newSweepFixture(t)
	f.addStudent(t, "student-1")
	f.addStudent(t, "student-2")

	window, err := f.registry.CreateWindow("09:00", "11:00", true)
	require.NoError(t, err)
	windowID := window.SessionID()
	f.bindAttendance(t, "student-2", &windowID)

	// student-1's record points at a manual session, and the sessions
	// table is gone: the lookup fails, the error is counted, and the
	// sweep still handles student-2.
	manualID := "b2d9c4ce-0000-0000-0000-000000000001"
	f.bindAttendance(t, "student-1", &manualID)
	require.NoError(t, f.db.Exec("DROP TABLE manual_sessions").Error)

	*f.now = time.Date(2025, 3, 10, 12, 0, 0, 0, wib)
	stats, err := f.guardian.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Blocked)
	assert.False(t, f.isBlocked(t, "student-1"))
	assert.True(t, f.isBlocked(t, "student-2"))
}

func TestSweepLeavesBlockedStudentsAlone(t *testing.T) {
	f := newSweepFixture(t)
	u := f.addStudent(t, "student-1")
	require.NoError(t, f.db.Model(u).Update("is_blocked", true).Error)

	stats, err := f.guardian.Sweep()
	require.NoError(t, err)
	assert.Zero(t, stats.Scanned)
}
