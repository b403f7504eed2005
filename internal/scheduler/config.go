package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/backoffice/internal/config"
)

// Config controls the cron schedule and per-job limits.
type Config struct {
	Schedule   string
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Schedule:   "@every 1m",
		JobTimeout: 30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{Schedule: cfg.SubscriptionSweepSchedule}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = defaults.Schedule
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
