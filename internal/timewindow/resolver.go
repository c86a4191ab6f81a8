// Package timewindow computes effective session end instants from a
// schedule window and an optional per-level time cap. Pure functions,
// no I/O; callers supply "now".
package timewindow

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DefaultGrace is the tolerance added to a computed end time before the
// window counts as expired.
const DefaultGrace = 30 * time.Second

// End-time sources reported by ComputeLevelEndTime.
const (
	SourceSchedule    = "schedule"
	SourceLevelLimit  = "level_limit"
	SourceScheduleCap = "schedule_cap"
)

// ComputeLevelEndTime returns the effective end of a student's window: the
// earlier of the schedule end and start+timeLimit. A non-positive limit
// means unlimited and yields the schedule end.
func ComputeLevelEndTime(scheduleStart, scheduleEnd time.Time, timeLimitMinutes int) (time.Time, string) {
	if timeLimitMinutes <= 0 {
		return scheduleEnd, SourceSchedule
	}
	levelEnd := scheduleStart.Add(time.Duration(timeLimitMinutes) * time.Minute)
	if levelEnd.Before(scheduleEnd) {
		return levelEnd, SourceLevelLimit
	}
	return scheduleEnd, SourceScheduleCap
}

// IsExpired reports whether now is past the effective end time plus grace.
func IsExpired(now, scheduleStart, scheduleEnd time.Time, timeLimitMinutes int, grace time.Duration) bool {
	end, _ := ComputeLevelEndTime(scheduleStart, scheduleEnd, timeLimitMinutes)
	return now.After(end.Add(grace))
}

// ResolveTimeLimit walks the fallback chain over a course's loosely-typed
// config document: per-level override, then course-wide limit, then 0
// (unlimited). Malformed values fall through to the next link.
func ResolveTimeLimit(courseConfig map[string]any, level int) int {
	if courseConfig == nil {
		return 0
	}
	if overrides, ok := courseConfig["level_time_limits"].(map[string]any); ok {
		if raw, ok := overrides[strconv.Itoa(level)]; ok {
			if minutes, ok := toMinutes(raw); ok {
				return minutes
			}
		}
	}
	if minutes, ok := toMinutes(courseConfig["time_limit_minutes"]); ok {
		return minutes
	}
	return 0
}

// ParseCourseConfig decodes a course config JSON document. An empty or
// invalid document resolves as unlimited rather than erroring.
func ParseCourseConfig(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil
	}
	return cfg
}

func toMinutes(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return int(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 0 {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || i < 0 {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
