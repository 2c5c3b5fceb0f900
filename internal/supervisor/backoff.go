package supervisor

import (
	"math"
	"time"

	"github.com/radio-control/mavbridge/internal/config"
)

// Backoff yields an exponential reconnect schedule: Initial, Initial*Factor,
// ... capped at Max. Not safe for concurrent use.
type Backoff struct {
	cfg     config.BackoffConfig
	current time.Duration
}

// NewBackoff creates a schedule starting at cfg.Initial.
func NewBackoff(cfg config.BackoffConfig) *Backoff {
	return &Backoff{cfg: cfg, current: cfg.Initial}
}

// Next returns the delay to wait now and advances the schedule.
func (b *Backoff) Next() time.Duration {
	delay := min(b.current, b.cfg.Max)
	grown := time.Duration(math.Round(float64(b.current) * b.cfg.Factor))
	b.current = min(b.cfg.Max, grown)
	return delay
}

// Reset returns the schedule to its floor.
func (b *Backoff) Reset() {
	b.current = b.cfg.Initial
}

// Configure applies new parameters, keeping the current delay within the new
// bounds.
func (b *Backoff) Configure(cfg config.BackoffConfig) {
	if cfg == b.cfg {
		return
	}
	b.cfg = cfg
	b.current = max(cfg.Initial, min(b.current, cfg.Max))
}
