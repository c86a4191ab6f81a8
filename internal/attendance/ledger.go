// Package attendance is the per-student access state machine. Records are
// bound to the session that was active at request time; a grant never
// leaks into a later window (see Status).
package attendance

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"examgate_backend/internal/models"
	"examgate_backend/internal/sessions"
	"examgate_backend/internal/timewindow"
)

// StatusNone is reported when a student has no (current) record for an
// assessment, including when their latest record belongs to a prior window.
const StatusNone = "none"

// Unlock actions.
const (
	ActionContinue = "continue"
	ActionSubmit   = "submit"
)

// SessionView is the client-facing description of the active session,
// including the resolver-derived effective end time.
type SessionView struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
	EffectiveEndsAt  time.Time `json:"effective_ends_at"`
	EndSource        string    `json:"end_source"`
	TimeLimitMinutes int       `json:"time_limit_minutes"`
}

// StatusView is what a status query reports for one (user, assessment).
type StatusView struct {
	AttendanceID   uint         `json:"attendance_id,omitempty"`
	Status         string       `json:"status"`
	ApprovedAt     *time.Time   `json:"approved_at,omitempty"`
	IsUsed         bool         `json:"is_used"`
	Locked         bool         `json:"locked"`
	LockedReason   string       `json:"locked_reason,omitempty"`
	UnlockAction   string       `json:"unlock_action,omitempty"`
	ViolationCount int          `json:"violation_count"`
	Session        *SessionView `json:"session,omitempty"`
}

// BulkResult reports the outcome of a bulk approval.
type BulkResult struct {
	Approved []string          `json:"approved"`
	Failed   map[string]string `json:"failed"`
}

// Ledger mutates and reads attendance records. Now is injectable for tests.
type Ledger struct {
	DB       *gorm.DB
	Registry *sessions.Registry
	Now      func() time.Time
}

func NewLedger(db *gorm.DB, registry *sessions.Registry) *Ledger {
	return &Ledger{DB: db, Registry: registry, Now: time.Now}
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Request creates (or revives) the student's record for the currently
// active session. Idempotent: an existing unused record is returned
// unchanged; a used record flips back to requested (re-entry after
// consumption is allowed). With no live session the record is bound to the
// assessment alone (bypass mode, nil session id).
func (l *Ledger) Request(userID, courseID string, level int) (*models.AttendanceRecord, error) {
	if userID == "" || courseID == "" || level < 1 {
		return nil, ErrInvalidInput
	}

	active, err := l.Registry.FindActive(courseID, level)
	if err != nil {
		return nil, err
	}
	testID := models.TestIdentifier(courseID, level)

	var record models.AttendanceRecord
	q := l.DB.Where("user_id = ? AND test_identifier = ?", userID, testID)
	if active != nil {
		q = q.Where("session_id = ?", active.ID)
	} else {
		q = q.Where("session_id IS NULL")
	}
	err = q.First(&record).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if err == nil {
		if !record.IsUsed() {
			return &record, nil
		}
		record.Status = models.AttendanceRequested
		record.RequestedAt = l.now()
		record.ApprovedAt = nil
		record.ApprovedBy = ""
		record.LockedReason = ""
		record.ViolationCount = 0
		if err := l.DB.Save(&record).Error; err != nil {
			return nil, err
		}
		return &record, nil
	}

	record = models.AttendanceRecord{
		UserID:         userID,
		TestIdentifier: testID,
		Status:         models.AttendanceRequested,
		RequestedAt:    l.now(),
	}
	if active != nil {
		id := active.ID
		record.SessionID = &id
	}
	if err := l.DB.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// Status reports the student's most recent record for an assessment.
// Staleness rule: if the record is bound to a different session than the
// one currently active, the status is "none" regardless of the stored
// value. A prior window's approval never carries over.
func (l *Ledger) Status(userID, courseID string, level int) (*StatusView, error) {
	if userID == "" || courseID == "" || level < 1 {
		return nil, ErrInvalidInput
	}

	active, err := l.Registry.FindActive(courseID, level)
	if err != nil {
		return nil, err
	}
	sessionView := l.sessionView(active, courseID, level)

	var record models.AttendanceRecord
	err = l.DB.Where("user_id = ? AND test_identifier = ?", userID, models.TestIdentifier(courseID, level)).
		Order("requested_at DESC, id DESC").
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &StatusView{Status: StatusNone, Session: sessionView}, nil
		}
		return nil, err
	}

	recordSession := ""
	if record.SessionID != nil {
		recordSession = *record.SessionID
	}
	activeSession := ""
	if active != nil {
		activeSession = active.ID
	}
	if recordSession != activeSession {
		return &StatusView{Status: StatusNone, Session: sessionView}, nil
	}

	return &StatusView{
		AttendanceID:   record.ID,
		Status:         record.Status,
		ApprovedAt:     record.ApprovedAt,
		IsUsed:         record.IsUsed(),
		Locked:         record.IsLocked(),
		LockedReason:   record.LockedReason,
		UnlockAction:   unlockAction(record.LockedReason),
		ViolationCount: record.ViolationCount,
		Session:        sessionView,
	}, nil
}

// Approve decides a pending request. Only requested records can be decided.
func (l *Ledger) Approve(requestID uint, adminID string, accept bool) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	if err := l.DB.First(&record, requestID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	next := models.AttendanceApproved
	if !accept {
		next = models.AttendanceRejected
	}
	if !models.CanTransition(record.Status, next) {
		return nil, ErrInvalidTransition
	}

	now := l.now()
	record.Status = next
	record.ApprovedAt = &now
	record.ApprovedBy = adminID
	if err := l.DB.Save(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ManualApprove upserts a grant for (user, assessment): insert-or-update to
// approved, unused, keyed to the currently active session. The session is
// nullable; proactive authorization works with no live session too. Records
// bound to other sessions are left alone, a grant never rebinds them. Admin
// override; bypasses the transition table.
func (l *Ledger) ManualApprove(userID, courseID string, level int, adminID string) (*models.AttendanceRecord, error) {
	if userID == "" || courseID == "" || level < 1 {
		return nil, ErrInvalidInput
	}

	active, err := l.Registry.FindActive(courseID, level)
	if err != nil {
		return nil, err
	}

	now := l.now()
	testID := models.TestIdentifier(courseID, level)

	var record models.AttendanceRecord
	q := l.DB.Where("user_id = ? AND test_identifier = ?", userID, testID)
	if active != nil {
		q = q.Where("session_id = ?", active.ID)
	} else {
		q = q.Where("session_id IS NULL")
	}
	err = q.First(&record).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if err == gorm.ErrRecordNotFound {
		record = models.AttendanceRecord{
			UserID:         userID,
			TestIdentifier: testID,
			RequestedAt:    now,
		}
		if active != nil {
			id := active.ID
			record.SessionID = &id
		}
	}

	record.Status = models.AttendanceApproved
	record.ApprovedAt = &now
	record.ApprovedBy = adminID
	record.LockedReason = ""
	record.ViolationCount = 0
	if err := l.DB.Save(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// BulkApprove resolves each email to a user and manual-approves them.
// Per-email failures are reported, not fatal.
func (l *Ledger) BulkApprove(emails []string, courseID string, level int, adminID string) (*BulkResult, error) {
	if len(emails) == 0 || courseID == "" || level < 1 {
		return nil, ErrInvalidInput
	}

	result := &BulkResult{Approved: []string{}, Failed: map[string]string{}}
	for _, email := range emails {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		var user models.User
		if err := l.DB.Where("email = ?", email).First(&user).Error; err != nil {
			result.Failed[email] = "user not found"
			continue
		}
		if _, err := l.ManualApprove(user.UserID, courseID, level, adminID); err != nil {
			result.Failed[email] = err.Error()
			continue
		}
		result.Approved = append(result.Approved, email)
	}
	return result, nil
}

// Lock marks the student's current record locked with a reason and a
// snapshot of the violation count. Unconditional and idempotent: repeated
// calls last-write-win.
func (l *Ledger) Lock(userID, courseID string, level int, reason string, violationCount int) (*models.AttendanceRecord, error) {
	if userID == "" || courseID == "" || level < 1 {
		return nil, ErrInvalidInput
	}

	var record models.AttendanceRecord
	err := l.DB.Where("user_id = ? AND test_identifier = ?", userID, models.TestIdentifier(courseID, level)).
		Order("requested_at DESC, id DESC").
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	record.Status = models.AttendanceLocked
	record.LockedReason = reason
	record.ViolationCount = violationCount
	if err := l.DB.Save(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// Unlock releases a locked record. "continue" re-approves and resets the
// violation counter; "submit" consumes the grant, and the caller is expected
// to force-finalize the student's open attempt.
func (l *Ledger) Unlock(attendanceID uint, action string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	if err := l.DB.First(&record, attendanceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	switch action {
	case ActionContinue:
		if !models.CanTransition(record.Status, models.AttendanceApproved) {
			return nil, ErrInvalidTransition
		}
		record.Status = models.AttendanceApproved
		record.ViolationCount = 0
		record.LockedReason = models.UnlockReasonContinue
	case ActionSubmit:
		if !models.CanTransition(record.Status, models.AttendanceUsed) {
			return nil, ErrInvalidTransition
		}
		record.Status = models.AttendanceUsed
		record.LockedReason = models.UnlockReasonSubmit
	default:
		return nil, ErrUnknownAction
	}

	if err := l.DB.Save(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// sessionView decorates the resolved session with the effective end time
// from the course's time-limit configuration.
func (l *Ledger) sessionView(active *sessions.ResolvedSession, courseID string, level int) *SessionView {
	if active == nil {
		return nil
	}
	limit := 0
	var course models.Course
	if err := l.DB.First(&course, "id = ?", courseID).Error; err == nil {
		limit = timewindow.ResolveTimeLimit(timewindow.ParseCourseConfig(course.Config), level)
	}
	end, source := timewindow.ComputeLevelEndTime(active.StartsAt, active.EndsAt, limit)
	return &SessionView{
		ID:               active.ID,
		Kind:             active.Kind,
		StartsAt:         active.StartsAt,
		EndsAt:           active.EndsAt,
		EffectiveEndsAt:  end,
		EndSource:        source,
		TimeLimitMinutes: limit,
	}
}

func unlockAction(lockedReason string) string {
	if strings.HasPrefix(lockedReason, "Admin:") {
		return strings.TrimPrefix(lockedReason, "Admin:")
	}
	return ""
}
