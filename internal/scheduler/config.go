package scheduler

import (
	"time"
)

const DefaultMaxRefires = 3

// Config controls the cron engine and the re-fire budget applied to each
// firing. A MaxRefires of zero takes the default; a negative value disables
// re-fire.
type Config struct {
	MaxRefires  int
	RefireDelay time.Duration
	Location    *time.Location
}

func DefaultConfig() Config {
	return Config{
		MaxRefires: DefaultMaxRefires,
		Location:   time.UTC,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	switch {
	case c.MaxRefires == 0:
		c.MaxRefires = defaults.MaxRefires
	case c.MaxRefires < 0:
		c.MaxRefires = 0
	}
	if c.RefireDelay < 0 {
		c.RefireDelay = 0
	}
	if c.Location == nil {
		c.Location = defaults.Location
	}
	return c
}

// RefireBudget converts a configured attempt count, where zero means no
// re-fire, into a Config.MaxRefires value.
func RefireBudget(maxAttempts int) int {
	if maxAttempts <= 0 {
		return -1
	}
	return maxAttempts
}
