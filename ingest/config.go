package ingest

import (
	"time"

	"github.com/fwojciec/harvest"
)

// Config controls pacing and retry for a batch.
type Config struct {
	// Delay is the minimum interval between articles. Zero disables pacing.
	Delay time.Duration

	// MaxRetries is the number of retries after the first failed embedding.
	MaxRetries int

	// BaseDelay is the backoff before the first retry; it doubles per retry.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Zero leaves it uncapped.
	MaxDelay time.Duration
}

// DefaultConfig returns the settings used by the CLI when none are given.
func DefaultConfig() Config {
	return Config{
		Delay:      500 * time.Millisecond,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Validate returns an error if the config contains invalid fields.
func (c Config) Validate() error {
	switch {
	case c.Delay < 0:
		return harvest.Errorf(harvest.EINVALID, "delay must not be negative")
	case c.MaxRetries < 0:
		return harvest.Errorf(harvest.EINVALID, "max retries must not be negative")
	case c.BaseDelay < 0:
		return harvest.Errorf(harvest.EINVALID, "base delay must not be negative")
	case c.MaxDelay < 0:
		return harvest.Errorf(harvest.EINVALID, "max delay must not be negative")
	}
	return nil
}

// Backoff returns the wait before retry number attempt (zero-based):
// BaseDelay doubled attempt times, capped at MaxDelay.
func (c Config) Backoff(attempt int) time.Duration {
	d := c.BaseDelay
	for range attempt {
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			break
		}
		if d > time.Duration(1<<62) {
			break
		}
		d *= 2
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}
