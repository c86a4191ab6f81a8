package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port       string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret    string
	JWTExpiresIn string // minutes

	AdminEmail    string
	AdminPassword string
	AdminFullName string

	// Exam window settings
	Timezone                 string // fixed civil timezone for recurring windows
	GracePeriodSeconds       string
	SweepIntervalSeconds     string
	SweepStartupDelaySeconds string
}

func Load() *Config {
	return &Config{
		Port:       getenv("PORT", "8080"),
		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: getenv("DB_PASSWORD", "postgres"),
		DBName:     getenv("DB_NAME", "examgate_db"),
		DBSSLMode:  getenv("DB_SSLMODE", "disable"),

		JWTSecret:    getenv("JWT_SECRET", "supersecret_change_me"),
		JWTExpiresIn: getenv("JWT_EXPIRES_IN", "60"),

		AdminEmail:    getenv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword: getenv("ADMIN_PASSWORD", "admin123"),
		AdminFullName: getenv("ADMIN_FULL_NAME", "Administrator"),

		Timezone:                 getenv("TIMEZONE", "Asia/Jakarta"),
		GracePeriodSeconds:       getenv("GRACE_PERIOD_SECONDS", "30"),
		SweepIntervalSeconds:     getenv("SWEEP_INTERVAL_SECONDS", "60"),
		SweepStartupDelaySeconds: getenv("SWEEP_STARTUP_DELAY_SECONDS", "10"),
	}
}

// GracePeriod returns the expiry grace as a duration, falling back to 30s
// on a malformed value.
func (c *Config) GracePeriod() time.Duration {
	return secondsOr(c.GracePeriodSeconds, 30)
}

// SweepInterval returns the guardian tick interval, default 60s.
func (c *Config) SweepInterval() time.Duration {
	return secondsOr(c.SweepIntervalSeconds, 60)
}

// SweepStartupDelay returns the delay before the first sweep, default 10s.
func (c *Config) SweepStartupDelay() time.Duration {
	return secondsOr(c.SweepStartupDelaySeconds, 10)
}

func secondsOr(v string, fallback int) time.Duration {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
