package focusflow

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aadithya-v/focusflow/store"
)

// Config contains configuration options for the Service.
type Config struct {
	// Namespace prefixes every key written to the store.
	// Default: "focusflow".
	Namespace string

	// Store is the ephemeral key-value store.
	// Default: an in-memory store (single instance only).
	Store store.Store

	// RetryAttempts is the number of attempts made for each store call.
	// Default: 3.
	RetryAttempts int

	// RetryBaseDelay is the wait after the first failed attempt.
	// It doubles after every further failure.
	// Default: 100ms.
	RetryBaseDelay time.Duration

	// DistractionLimit is the number of session cancellations allowed
	// per DistractionWindow.
	// Default: 5.
	DistractionLimit int

	// DistractionWindow is the fixed window for DistractionLimit.
	// Default: 1 hour.
	DistractionWindow time.Duration

	// Location determines calendar days for leaderboards and streaks.
	// Default: UTC.
	Location *time.Location

	// Now returns the current time.
	// Default: time.Now.
	Now func() time.Time

	// Breaker configures the circuit breaker around store calls.
	Breaker BreakerConfig

	// GeoIPDatabasePath is the path to a MaxMind GeoLite2-City.mmdb file.
	// Optional. When set, presence records can carry a coarse location.
	GeoIPDatabasePath string

	// Logger receives warnings for swallowed store errors.
	// Default: the global logger with component=focusflow.
	Logger *zerolog.Logger
}

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	// Disabled turns the circuit breaker off.
	Disabled bool

	// FailureThreshold is the number of consecutive failed store calls
	// that opens the breaker.
	// Default: 5.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before letting
	// trial requests through.
	// Default: 30 seconds.
	OpenTimeout time.Duration

	// HalfOpenRequests is the number of trial requests allowed while half-open.
	// Default: 1.
	HalfOpenRequests uint32
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:         "focusflow",
		RetryAttempts:     3,
		RetryBaseDelay:    100 * time.Millisecond,
		DistractionLimit:  5,
		DistractionWindow: time.Hour,
		Location:          time.UTC,
		Now:               time.Now,
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
			HalfOpenRequests: 1,
		},
	}
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Namespace == "" {
		c.Namespace = defaults.Namespace
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if c.DistractionLimit <= 0 {
		c.DistractionLimit = defaults.DistractionLimit
	}
	if c.DistractionWindow <= 0 {
		c.DistractionWindow = defaults.DistractionWindow
	}
	if c.Location == nil {
		c.Location = defaults.Location
	}
	if c.Now == nil {
		c.Now = defaults.Now
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = defaults.Breaker.FailureThreshold
	}
	if c.Breaker.OpenTimeout <= 0 {
		c.Breaker.OpenTimeout = defaults.Breaker.OpenTimeout
	}
	if c.Breaker.HalfOpenRequests == 0 {
		c.Breaker.HalfOpenRequests = defaults.Breaker.HalfOpenRequests
	}
}
