package supervisor

import (
	"testing"
	"time"

	"github.com/radio-control/mavbridge/internal/config"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(config.Defaults().Link.Backoff)

	want := []time.Duration{
		1 * time.Second,
		1800 * time.Millisecond,
		3240 * time.Millisecond,
		5832 * time.Millisecond,
		10 * time.Second,
		10 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("step %d: got %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Errorf("after reset: got %v, want 1s", got)
	}
}

func TestBackoffConfigure(t *testing.T) {
	b := NewBackoff(config.BackoffConfig{Initial: time.Second, Factor: 2, Max: 30 * time.Second})
	for i := 0; i < 4; i++ {
		b.Next()
	}

	b.Configure(config.BackoffConfig{Initial: 100 * time.Millisecond, Factor: 2, Max: time.Second})
	if got := b.Next(); got != time.Second {
		t.Errorf("Expected delay clamped to new max, got %v", got)
	}

	b.Configure(config.BackoffConfig{Initial: 5 * time.Second, Factor: 2, Max: 10 * time.Second})
	if got := b.Next(); got != 5*time.Second {
		t.Errorf("Expected delay raised to new floor, got %v", got)
	}
}
