// Package guardian is the background reconciliation loop: it periodically
// force-blocks students whose bound access window has elapsed and
// force-completes their open attempts. It is the piece that keeps the
// block flag honest when no client is polling.
package guardian

import (
	"log"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"examgate_backend/internal/attempts"
	"examgate_backend/internal/models"
	"examgate_backend/internal/sessions"
	"examgate_backend/internal/timewindow"
	"examgate_backend/internal/ws"
)

// SystemTerminatedFeedback tags attempts the sweep finalized.
const SystemTerminatedFeedback = "Terminated by system: access window expired"

// Defaults for the loop timing.
const (
	DefaultInterval     = 60 * time.Second
	DefaultStartupDelay = 10 * time.Second
)

// SweepStats summarizes one sweep for logging and tests.
type SweepStats struct {
	Scanned int
	Blocked int
	Skipped bool
	Errors  int
}

// Guardian runs the sweep on a fixed timer. One sweep at a time: a tick
// that fires while a sweep is still in flight is dropped, not queued.
type Guardian struct {
	DB           *gorm.DB
	Registry     *sessions.Registry
	Attempts     *attempts.Aggregator
	Hubs         *ws.Hubs
	Interval     time.Duration
	StartupDelay time.Duration
	Grace        time.Duration
	Now          func() time.Time

	inFlight atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

func New(db *gorm.DB, registry *sessions.Registry, aggregator *attempts.Aggregator, hubs *ws.Hubs) *Guardian {
	return &Guardian{
		DB:           db,
		Registry:     registry,
		Attempts:     aggregator,
		Hubs:         hubs,
		Interval:     DefaultInterval,
		StartupDelay: DefaultStartupDelay,
		Grace:        timewindow.DefaultGrace,
		Now:          time.Now,
	}
}

// Start launches the timer loop. Call Stop to halt it.
func (g *Guardian) Start() {
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	go g.run()
	log.Printf("guardian: started (interval %s, startup delay %s)", g.Interval, g.StartupDelay)
}

// Stop halts the loop and waits for a sweep in flight to finish.
func (g *Guardian) Stop() {
	if g.stop == nil {
		return
	}
	close(g.stop)
	<-g.done
}

func (g *Guardian) run() {
	defer close(g.done)

	select {
	case <-time.After(g.StartupDelay):
	case <-g.stop:
		return
	}

	ticker := time.NewTicker(g.Interval)
	defer ticker.Stop()

	g.sweepAndLog()
	for {
		select {
		case <-ticker.C:
			g.sweepAndLog()
		case <-g.stop:
			return
		}
	}
}

func (g *Guardian) sweepAndLog() {
	stats, err := g.Sweep()
	if err != nil {
		log.Printf("guardian: sweep aborted: %v", err)
		return
	}
	if stats.Blocked > 0 || stats.Errors > 0 {
		log.Printf("guardian: sweep scanned=%d blocked=%d errors=%d", stats.Scanned, stats.Blocked, stats.Errors)
	}
}

// Sweep runs one reconciliation pass. Per-student failures are logged and
// never abort the pass for the remaining students; a failure fetching the
// student list aborts only this pass; the next tick is the retry.
func (g *Guardian) Sweep() (SweepStats, error) {
	var stats SweepStats
	if !g.inFlight.CompareAndSwap(false, true) {
		stats.Skipped = true
		return stats, nil
	}
	defer g.inFlight.Store(false)

	var students []models.User
	if err := g.DB.Where("role = ? AND is_blocked = ?", "student", false).Find(&students).Error; err != nil {
		return stats, err
	}

	for _, student := range students {
		stats.Scanned++
		expired, record, err := g.checkStudent(&student)
		if err != nil {
			stats.Errors++
			log.Printf("guardian: checking %s: %v", student.UserID, err)
			continue
		}
		if !expired {
			continue
		}
		if err := g.expireStudent(&student, record); err != nil {
			stats.Errors++
			log.Printf("guardian: expiring %s: %v", student.UserID, err)
			continue
		}
		stats.Blocked++
	}
	return stats, nil
}

// checkStudent decides whether a student's access has lapsed. A student
// with no attendance record at all is never auto-blocked: that would
// clobber a just-granted admin unblock before the student has acted.
func (g *Guardian) checkStudent(student *models.User) (bool, *models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	err := g.DB.Where("user_id = ?", student.UserID).
		Order("requested_at DESC, id DESC").
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil, nil
		}
		return false, nil, err
	}

	if record.SessionID == nil {
		// Bypass-mode grant: lapses only once nothing is live anywhere.
		live, err := g.Registry.AnyLive()
		if err != nil {
			return false, nil, err
		}
		return !live, &record, nil
	}

	expired, err := g.Registry.SessionExpired(*record.SessionID, g.Grace)
	if err != nil {
		return false, nil, err
	}
	return expired, &record, nil
}

func (g *Guardian) expireStudent(student *models.User, record *models.AttendanceRecord) error {
	// The block and the consume land atomically.
	err := g.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("user_id = ?", student.UserID).
			Update("is_blocked", true).Error; err != nil {
			return err
		}
		return tx.Model(&models.AttendanceRecord{}).
			Where("id = ?", record.ID).
			Update("status", models.AttendanceUsed).Error
	})
	if err != nil {
		return err
	}

	open, err := g.Attempts.ListOpen(student.UserID, "", 0)
	if err != nil {
		log.Printf("guardian: listing open attempts for %s: %v", student.UserID, err)
	}
	for _, attempt := range open {
		if _, err := g.Attempts.Complete(attempt.ID, SystemTerminatedFeedback); err != nil {
			log.Printf("guardian: completing attempt %d for %s: %v", attempt.ID, student.UserID, err)
		}
	}

	if g.Hubs != nil {
		sessionID := ""
		if record.SessionID != nil {
			sessionID = *record.SessionID
		}
		g.Hubs.Student.Notify(student.UserID, ws.StudentMessage{
			Type:      ws.EventForceBlocked,
			Blocked:   true,
			Reason:    SystemTerminatedFeedback,
			SessionID: sessionID,
		})
		g.Hubs.Proctor.Broadcast(ws.ProctorEvent{
			Type:           ws.EventForceBlocked,
			UserID:         student.UserID,
			TestIdentifier: record.TestIdentifier,
			SessionID:      sessionID,
			Blocked:        true,
			Reason:         SystemTerminatedFeedback,
			At:             g.now(),
		})
	}
	return nil
}

func (g *Guardian) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
