package models

import (
	"time"
)

// Attendance states. One tagged value per record; the REST layer derives
// the locked/is_used booleans clients expect.
const (
	AttendanceRequested = "requested"
	AttendanceApproved  = "approved"
	AttendanceRejected  = "rejected"
	AttendanceLocked    = "locked"
	AttendanceUsed      = "used"
)

// Unlock reasons stamped by admin actions.
const (
	UnlockReasonContinue = "Admin:continue"
	UnlockReasonSubmit   = "Admin:submit"
)

// attendanceTransitions is the validated transition table for the normal
// request/approve/consume flow. Admin overrides (ManualApprove, Lock) are
// allowed to bypass it and are the only writers that do.
var attendanceTransitions = map[string][]string{
	AttendanceRequested: {AttendanceApproved, AttendanceRejected},
	AttendanceApproved:  {AttendanceLocked, AttendanceUsed},
	AttendanceLocked:    {AttendanceApproved, AttendanceUsed},
	AttendanceUsed:      {AttendanceRequested},
	AttendanceRejected:  {},
}

// CanTransition reports whether the normal flow permits from -> to.
func CanTransition(from, to string) bool {
	for _, next := range attendanceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AttendanceRecord is a student's access grant for one assessment, bound to
// the session that was active when it was requested. SessionID is nil when
// the request arrived with no live session (bypass mode).
type AttendanceRecord struct {
	ID             uint    `gorm:"primaryKey"`
	UserID         string  `gorm:"index:idx_attendance_user_test_session,unique"`
	TestIdentifier string  `gorm:"index:idx_attendance_user_test_session,unique"`
	SessionID      *string `gorm:"index:idx_attendance_user_test_session,unique"`
	Status         string  `gorm:"index"`
	LockedReason   string
	ViolationCount int
	RequestedAt    time.Time
	ApprovedAt     *time.Time
	ApprovedBy     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsUsed reports whether the grant has been consumed.
func (a *AttendanceRecord) IsUsed() bool {
	return a.Status == AttendanceUsed
}

// IsLocked reports whether the grant is currently locked by a violation.
func (a *AttendanceRecord) IsLocked() bool {
	return a.Status == AttendanceLocked
}
