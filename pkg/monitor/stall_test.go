package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestStalled tests the elapsed-time stall predicate
func TestStalled(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		since   time.Time
		timeout time.Duration
		want    bool
	}{
		{name: "within timeout", since: now.Add(-5 * time.Minute), timeout: 10 * time.Minute, want: false},
		{name: "exactly at timeout", since: now.Add(-10 * time.Minute), timeout: 10 * time.Minute, want: false},
		{name: "past timeout", since: now.Add(-11 * time.Minute), timeout: 10 * time.Minute, want: true},
		{name: "zero anchor never stalls", since: time.Time{}, timeout: 10 * time.Minute, want: false},
		{name: "zero timeout disables the check", since: now.Add(-time.Hour), timeout: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stalled(tt.since, now, tt.timeout))
		})
	}
}
