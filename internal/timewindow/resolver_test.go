package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	start = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	end   = start.Add(2 * time.Hour)
)

func TestComputeLevelEndTime(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		wantEnd    time.Time
		wantSource string
	}{
		{"no limit uses schedule end", 0, end, SourceSchedule},
		{"negative limit uses schedule end", -5, end, SourceSchedule},
		{"limit before schedule end wins", 30, start.Add(30 * time.Minute), SourceLevelLimit},
		{"limit past schedule end is capped", 180, end, SourceScheduleCap},
		{"limit equal to schedule end is capped", 120, end, SourceScheduleCap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := ComputeLevelEndTime(start, end, tt.limit)
			assert.True(t, got.Equal(tt.wantEnd), "end time")
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestIsExpired(t *testing.T) {
	sessionStart := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	sessionEnd := sessionStart.Add(60 * time.Minute)

	// 61 minutes in: a minute past the end, beyond the 30s grace.
	assert.True(t, IsExpired(sessionStart.Add(61*time.Minute), sessionStart, sessionEnd, 0, DefaultGrace))
	// 59 minutes in: still inside the window.
	assert.False(t, IsExpired(sessionStart.Add(59*time.Minute), sessionStart, sessionEnd, 0, DefaultGrace))
	// Just inside the grace.
	assert.False(t, IsExpired(sessionEnd.Add(29*time.Second), sessionStart, sessionEnd, 0, DefaultGrace))
	// A per-level limit pulls the deadline forward.
	assert.True(t, IsExpired(sessionStart.Add(31*time.Minute), sessionStart, sessionEnd, 30, DefaultGrace))
}

func TestResolveTimeLimit(t *testing.T) {
	tests := []struct {
		name  string
		cfg   map[string]any
		level int
		want  int
	}{
		{"nil config is unlimited", nil, 1, 0},
		{"empty config is unlimited", map[string]any{}, 1, 0},
		{
			"per-level override wins",
			map[string]any{
				"time_limit_minutes": float64(45),
				"level_time_limits":  map[string]any{"2": float64(20)},
			},
			2, 20,
		},
		{
			"missing level falls to course-wide",
			map[string]any{
				"time_limit_minutes": float64(45),
				"level_time_limits":  map[string]any{"2": float64(20)},
			},
			3, 45,
		},
		{
			"string numbers are accepted",
			map[string]any{"time_limit_minutes": "30"},
			1, 30,
		},
		{
			"malformed override falls through",
			map[string]any{
				"time_limit_minutes": float64(45),
				"level_time_limits":  map[string]any{"2": "soon"},
			},
			2, 45,
		},
		{
			"negative values fall through to unlimited",
			map[string]any{"time_limit_minutes": float64(-10)},
			1, 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveTimeLimit(tt.cfg, tt.level))
		})
	}
}

func TestParseCourseConfig(t *testing.T) {
	assert.Nil(t, ParseCourseConfig(""))
	assert.Nil(t, ParseCourseConfig("not json"))

	cfg := ParseCourseConfig(`{"time_limit_minutes": 25}`)
	assert.Equal(t, 25, ResolveTimeLimit(cfg, 1))
}
