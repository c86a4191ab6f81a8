package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examgate_backend/internal/models"
	"examgate_backend/internal/testutil"
	"examgate_backend/internal/timewindow"
)

var wib = time.FixedZone("WIB", 7*3600)

func newTestRegistry(t *testing.T) (*Registry, *time.Time) {
	db := testutil.OpenDB(t)
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, wib)
	r := NewRegistry(db, wib)
	r.Now = func() time.Time { return now }
	return r, &now
}

func TestStartSupersedesPrevious(t *testing.T) {
	r, _ := newTestRegistry(t)

	first, err := r.Start("course-1", 2, 60, "admin-1")
	require.NoError(t, err)
	second, err := r.Start("course-1", 2, 90, "admin-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	var actives []models.ManualSession
	require.NoError(t, r.DB.Where("course_id = ? AND level = ? AND is_active = ?", "course-1", 2, true).Find(&actives).Error)
	require.Len(t, actives, 1)
	assert.Equal(t, second.ID, actives[0].ID)

	var old models.ManualSession
	require.NoError(t, r.DB.First(&old, "id = ?", first.ID).Error)
	assert.False(t, old.IsActive)
	assert.Equal(t, models.EndedForced, old.EndedReason)
	assert.True(t, old.ForcedEnd)
}

func TestStartValidatesInput(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Start("", 1, 60, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = r.Start("course-1", 0, 60, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = r.Start("course-1", 1, 0, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFindActiveManualBeatsRecurring(t *testing.T) {
	r, _ := newTestRegistry(t)

	// Recurring window covering 10:00 local.
	window, err := r.CreateWindow("09:00", "11:00", true)
	require.NoError(t, err)

	manual, err := r.Start("course-1", 1, 60, "admin-1")
	require.NoError(t, err)

	resolved, err := r.FindActive("course-1", 1)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, manual.ID, resolved.ID)
	assert.Equal(t, KindManual, resolved.Kind)

	// With the manual session gone, the recurring window takes over.
	_, err = r.End(manual.ID, models.EndedNormal)
	require.NoError(t, err)

	resolved, err = r.FindActive("course-1", 1)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, window.SessionID(), resolved.ID)
	assert.Equal(t, KindRecurring, resolved.Kind)
}

func TestFindActiveOutsideWindow(t *testing.T) {
	r, now := newTestRegistry(t)

	_, err := r.CreateWindow("09:00", "11:00", true)
	require.NoError(t, err)

	*now = time.Date(2025, 3, 10, 12, 0, 0, 0, wib)
	resolved, err := r.FindActive("course-1", 1)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestFindActiveSkipsExpiredManual(t *testing.T) {
	r, now := newTestRegistry(t)

	_, err := r.Start("course-1", 1, 30, "admin-1")
	require.NoError(t, err)

	// Session window over, flag still set: fall through to nothing.
	*now = now.Add(45 * time.Minute)
	resolved, err := r.FindActive("course-1", 1)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestEndCascadeConsumesAndBlocks(t *testing.T) {
	r, _ := newTestRegistry(t)

	session, err := r.Start("course-1", 1, 60, "admin-1")
	require.NoError(t, err)

	student := models.User{UserID: "student-1", Email: "s1@example.com", Role: "student", Active: true}
	proctor := models.User{UserID: "proctor-1", Email: "p1@example.com", Role: "proctor", Active: true}
	require.NoError(t, r.DB.Create(&student).Error)
	require.NoError(t, r.DB.Create(&proctor).Error)

	testID := models.TestIdentifier("course-1", 1)
	open := models.AttendanceRecord{
		UserID: "student-1", TestIdentifier: testID, SessionID: &session.ID,
		Status: models.AttendanceApproved, RequestedAt: r.now(),
	}
	consumed := models.AttendanceRecord{
		UserID: "proctor-1", TestIdentifier: testID, SessionID: &session.ID,
		Status: models.AttendanceUsed, RequestedAt: r.now(),
	}
	require.NoError(t, r.DB.Create(&open).Error)
	require.NoError(t, r.DB.Create(&consumed).Error)

	ended, err := r.End(session.ID, models.EndedForced)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	assert.True(t, ended.ForcedEnd)

	var rec models.AttendanceRecord
	require.NoError(t, r.DB.First(&rec, open.ID).Error)
	assert.Equal(t, models.AttendanceUsed, rec.Status)

	require.NoError(t, r.DB.First(&student, student.ID).Error)
	assert.True(t, student.IsBlocked)
	// Cascade blocks students only.
	require.NoError(t, r.DB.First(&proctor, proctor.ID).Error)
	assert.False(t, proctor.IsBlocked)
}

func TestEndUnknownSession(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.End("b2d9c4ce-0000-0000-0000-000000000000", models.EndedNormal)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionExpired(t *testing.T) {
	r, now := newTestRegistry(t)

	session, err := r.Start("course-1", 1, 60, "admin-1")
	require.NoError(t, err)

	*now = session.StartTime.Add(59 * time.Minute)
	expired, err := r.SessionExpired(session.ID, timewindow.DefaultGrace)
	require.NoError(t, err)
	assert.False(t, expired)

	*now = session.StartTime.Add(61 * time.Minute)
	expired, err = r.SessionExpired(session.ID, timewindow.DefaultGrace)
	require.NoError(t, err)
	assert.True(t, expired)

	// Orphaned references count as expired.
	expired, err = r.SessionExpired("b2d9c4ce-0000-0000-0000-000000000000", timewindow.DefaultGrace)
	require.NoError(t, err)
	assert.True(t, expired)
	expired, err = r.SessionExpired("daily_999", timewindow.DefaultGrace)
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestSessionExpiredRecurring(t *testing.T) {
	r, now := newTestRegistry(t)

	window, err := r.CreateWindow("09:00", "11:00", true)
	require.NoError(t, err)

	*now = time.Date(2025, 3, 10, 10, 30, 0, 0, wib)
	expired, err := r.SessionExpired(window.SessionID(), timewindow.DefaultGrace)
	require.NoError(t, err)
	assert.False(t, expired)

	*now = time.Date(2025, 3, 10, 11, 1, 0, 0, wib)
	expired, err = r.SessionExpired(window.SessionID(), timewindow.DefaultGrace)
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestWindowValidation(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.CreateWindow("18:00", "17:00", true)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = r.CreateWindow("18:00", "18:00", true)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = r.CreateWindow("6pm", "19:00", true)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestAllActivePhasesAndOrder(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.CreateWindow("07:00", "08:00", true) // ended by 10:00
	require.NoError(t, err)
	_, err = r.CreateWindow("09:00", "11:00", true) // live
	require.NoError(t, err)
	_, err = r.CreateWindow("15:00", "16:00", true) // upcoming
	require.NoError(t, err)
	_, err = r.Start("course-1", 1, 60, "admin-1")
	require.NoError(t, err)

	all, err := r.AllActive()
	require.NoError(t, err)
	require.Len(t, all, 4)

	phases := map[string]string{}
	for _, s := range all {
		phases[s.ID] = s.Phase
	}
	assert.Equal(t, PhaseEnded, phases["daily_1"])
	assert.Equal(t, PhaseLive, phases["daily_2"])
	assert.Equal(t, PhaseUpcoming, phases["daily_3"])

	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].StartsAt.Before(all[i-1].StartsAt), "sorted by start ascending")
	}

	live, err := r.AnyLive()
	require.NoError(t, err)
	assert.True(t, live)
}
