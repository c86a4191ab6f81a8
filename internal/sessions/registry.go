// Package sessions resolves which access window, if any, currently applies
// to a (course, level): admin-started manual sessions take precedence over
// recurring daily windows.
package sessions

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"examgate_backend/internal/models"
	"examgate_backend/internal/timewindow"
)

// Session kinds.
const (
	KindManual    = "manual"
	KindRecurring = "recurring"
)

// Phases reported by AllActive.
const (
	PhaseUpcoming = "upcoming"
	PhaseLive     = "live"
	PhaseEnded    = "ended"
)

// ResolvedSession is the outcome of FindActive: either a manual session or
// a synthetic view of a recurring window evaluated for today.
type ResolvedSession struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	CourseID string    `json:"course_id,omitempty"`
	Level    int       `json:"level,omitempty"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// SessionInfo is one entry of the AllActive listing.
type SessionInfo struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CourseID  string    `json:"course_id,omitempty"`
	Level     int       `json:"level,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Phase     string    `json:"phase"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Registry manages manual sessions and recurring windows. Loc is the fixed
// civil timezone recurring windows are evaluated in; Now is injectable for
// tests and defaults to time.Now.
type Registry struct {
	DB  *gorm.DB
	Loc *time.Location
	Now func() time.Time
}

func NewRegistry(db *gorm.DB, loc *time.Location) *Registry {
	return &Registry{DB: db, Loc: loc, Now: time.Now}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Start deactivates any active manual session for (courseID, level) and
// inserts a new one. Starting always supersedes whatever was running.
//
// The deactivate+insert pair is deliberately not wrapped in a transaction;
// two concurrent starts for the same (course, level) can briefly leave two
// active sessions. Admin starts are operator-serialized in practice and the
// next Start or End heals the overlap.
func (r *Registry) Start(courseID string, level, durationMinutes int, createdBy string) (*models.ManualSession, error) {
	if courseID == "" || level < 1 || durationMinutes < 1 {
		return nil, ErrInvalidInput
	}

	err := r.DB.Model(&models.ManualSession{}).
		Where("course_id = ? AND level = ? AND is_active = ?", courseID, level, true).
		Updates(map[string]any{
			"is_active":    false,
			"ended_reason": models.EndedForced,
			"forced_end":   true,
		}).Error
	if err != nil {
		return nil, err
	}

	session := models.ManualSession{
		CourseID:        courseID,
		Level:           level,
		StartTime:       r.now(),
		DurationMinutes: durationMinutes,
		IsActive:        true,
		CreatedBy:       createdBy,
	}
	if err := r.DB.Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// End deactivates a manual session and then, best-effort, consumes every
// unused attendance record bound to it and blocks the students those
// records belong to. Cascade failures are logged, never propagated: the
// deactivation itself always sticks.
func (r *Registry) End(id, reason string) (*models.ManualSession, error) {
	switch reason {
	case models.EndedNormal, models.EndedForced, models.EndedTimeout:
	case "":
		reason = models.EndedNormal
	default:
		return nil, ErrInvalidInput
	}

	var session models.ManualSession
	if err := r.DB.First(&session, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	session.IsActive = false
	session.EndedReason = reason
	session.ForcedEnd = reason == models.EndedForced
	if err := r.DB.Save(&session).Error; err != nil {
		return nil, err
	}

	r.cascadeEnd(&session)
	return &session, nil
}

// cascadeEnd consumes the session's unused attendance records and blocks
// the students they belong to, atomically. The cascade is still best-effort
// relative to the deactivation: a failure here is logged, never propagated.
func (r *Registry) cascadeEnd(session *models.ManualSession) {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var records []models.AttendanceRecord
		if err := tx.Where("session_id = ? AND status <> ?", session.ID, models.AttendanceUsed).
			Find(&records).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		userIDs := make([]string, 0, len(records))
		for _, rec := range records {
			userIDs = append(userIDs, rec.UserID)
		}

		if err := tx.Model(&models.AttendanceRecord{}).
			Where("session_id = ? AND status <> ?", session.ID, models.AttendanceUsed).
			Update("status", models.AttendanceUsed).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("user_id IN ? AND role = ?", userIDs, "student").
			Update("is_blocked", true).Error
	})
	if err != nil {
		log.Printf("session end cascade for %s: %v", session.ID, err)
	}
}

// FindActive resolves the session currently governing (courseID, level).
// An active, non-expired manual session always wins; otherwise the first
// active recurring window containing now (evaluated for today in the fixed
// timezone) is returned as a synthetic daily session; otherwise nil.
func (r *Registry) FindActive(courseID string, level int) (*ResolvedSession, error) {
	now := r.now()

	var manual models.ManualSession
	err := r.DB.Where("course_id = ? AND level = ? AND is_active = ?", courseID, level, true).
		Order("start_time DESC").
		First(&manual).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if err == nil && now.Before(manual.EndsAt()) {
		return &ResolvedSession{
			ID:       manual.ID,
			Kind:     KindManual,
			CourseID: manual.CourseID,
			Level:    manual.Level,
			StartsAt: manual.StartTime,
			EndsAt:   manual.EndsAt(),
		}, nil
	}

	var windows []models.RecurringWindow
	if err := r.DB.Where("is_active = ?", true).Order("id ASC").Find(&windows).Error; err != nil {
		return nil, err
	}
	for _, w := range windows {
		start, end, err := r.windowBoundsToday(&w, now)
		if err != nil {
			log.Printf("registry: skipping malformed window %d: %v", w.ID, err)
			continue
		}
		if !now.Before(start) && !now.After(end) {
			return &ResolvedSession{
				ID:       w.SessionID(),
				Kind:     KindRecurring,
				StartsAt: start,
				EndsAt:   end,
			}, nil
		}
	}
	return nil, nil
}

// AllActive lists every active recurring window (annotated against now)
// together with every active manual session, sorted by start ascending.
func (r *Registry) AllActive() ([]SessionInfo, error) {
	now := r.now()
	out := []SessionInfo{}

	var windows []models.RecurringWindow
	if err := r.DB.Where("is_active = ?", true).Find(&windows).Error; err != nil {
		return nil, err
	}
	for _, w := range windows {
		start, end, err := r.windowBoundsToday(&w, now)
		if err != nil {
			log.Printf("registry: skipping malformed window %d: %v", w.ID, err)
			continue
		}
		out = append(out, SessionInfo{
			ID:       w.SessionID(),
			Kind:     KindRecurring,
			StartsAt: start,
			EndsAt:   end,
			Phase:    phaseOf(now, start, end),
		})
	}

	var sessions []models.ManualSession
	if err := r.DB.Where("is_active = ?", true).Find(&sessions).Error; err != nil {
		return nil, err
	}
	for _, s := range sessions {
		out = append(out, SessionInfo{
			ID:        s.ID,
			Kind:      KindManual,
			CourseID:  s.CourseID,
			Level:     s.Level,
			StartsAt:  s.StartTime,
			EndsAt:    s.EndsAt(),
			Phase:     phaseOf(now, s.StartTime, s.EndsAt()),
			CreatedBy: s.CreatedBy,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// AnyLive reports whether any session (manual or recurring) is live now.
func (r *Registry) AnyLive() (bool, error) {
	all, err := r.AllActive()
	if err != nil {
		return false, err
	}
	for _, s := range all {
		if s.Phase == PhaseLive {
			return true, nil
		}
	}
	return false, nil
}

// SessionExpired reports whether the window behind a bound session id has
// elapsed (with grace). Orphaned references, ids whose row no longer
// exists, count as expired.
func (r *Registry) SessionExpired(sessionID string, grace time.Duration) (bool, error) {
	now := r.now()

	if windowID, ok := ParseRecurringID(sessionID); ok {
		var w models.RecurringWindow
		if err := r.DB.First(&w, windowID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return true, nil
			}
			return false, err
		}
		start, end, err := r.windowBoundsToday(&w, now)
		if err != nil {
			return true, nil
		}
		return timewindow.IsExpired(now, start, end, 0, grace), nil
	}

	var s models.ManualSession
	if err := r.DB.First(&s, "id = ?", sessionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return true, nil
		}
		return false, err
	}
	return timewindow.IsExpired(now, s.StartTime, s.EndsAt(), 0, grace), nil
}

// CreateWindow validates and stores a recurring daily window.
func (r *Registry) CreateWindow(startTime, endTime string, active bool) (*models.RecurringWindow, error) {
	if err := validateWindowTimes(startTime, endTime); err != nil {
		return nil, err
	}
	w := models.RecurringWindow{StartTime: startTime, EndTime: endTime, IsActive: active}
	if err := r.DB.Create(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateWindow updates times and/or the active flag of a window.
func (r *Registry) UpdateWindow(id uint, startTime, endTime *string, active *bool) (*models.RecurringWindow, error) {
	var w models.RecurringWindow
	if err := r.DB.First(&w, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if startTime != nil {
		w.StartTime = *startTime
	}
	if endTime != nil {
		w.EndTime = *endTime
	}
	if err := validateWindowTimes(w.StartTime, w.EndTime); err != nil {
		return nil, err
	}
	if active != nil {
		w.IsActive = *active
	}
	if err := r.DB.Save(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWindows returns every recurring window, active or not.
func (r *Registry) ListWindows() ([]models.RecurringWindow, error) {
	var windows []models.RecurringWindow
	if err := r.DB.Order("id ASC").Find(&windows).Error; err != nil {
		return nil, err
	}
	return windows, nil
}

// DeleteWindow removes a recurring window.
func (r *Registry) DeleteWindow(id uint) error {
	res := r.DB.Delete(&models.RecurringWindow{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ParseRecurringID extracts the window id from a synthetic "daily_<id>"
// session id.
func ParseRecurringID(sessionID string) (uint, bool) {
	if !strings.HasPrefix(sessionID, models.RecurringSessionPrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(sessionID, models.RecurringSessionPrefix), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// windowBoundsToday computes the absolute start/end instants of a window
// for now's calendar date in the registry's fixed timezone. Computed once
// per evaluation; never compared as strings.
func (r *Registry) windowBoundsToday(w *models.RecurringWindow, now time.Time) (time.Time, time.Time, error) {
	local := now.In(r.Loc)
	start, err := clockOn(local, w.StartTime, r.Loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := clockOn(local, w.EndTime, r.Loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, ErrInvalidWindow
	}
	return start, end, nil
}

func clockOn(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad clock value %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

func validateWindowTimes(startTime, endTime string) error {
	start, err := time.Parse("15:04", startTime)
	if err != nil {
		return ErrInvalidWindow
	}
	end, err := time.Parse("15:04", endTime)
	if err != nil {
		return ErrInvalidWindow
	}
	if !end.After(start) {
		return ErrInvalidWindow
	}
	return nil
}

func phaseOf(now, start, end time.Time) string {
	switch {
	case now.Before(start):
		return PhaseUpcoming
	case now.After(end):
		return PhaseEnded
	default:
		return PhaseLive
	}
}
