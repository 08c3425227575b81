package scheduler

import "time"

// Config controls scheduler intervals.
type Config struct {
	RunInterval    time.Duration
	JobTimeout     time.Duration
	RollupLookback int
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Minute,
		JobTimeout:     30 * time.Second,
		RollupLookback: 2,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.RollupLookback <= 0 {
		c.RollupLookback = defaults.RollupLookback
	}
	return c
}
