package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Course carries the per-course exam configuration, including the
// loosely-typed time-limit settings consumed by the timewindow resolver.
// Config is a JSON document: {"time_limit_minutes": N, "level_time_limits": {"2": M}}.
type Course struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	MaxLevel  int
	Config    string `gorm:"type:text"`
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Course) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
