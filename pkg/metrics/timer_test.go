package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

// TestTimerDuration verifies elapsed time is measured
func TestTimerDuration(t *testing.T) {
	timer := NewTimer(nil)
	time.Sleep(10 * time.Millisecond)

	d := timer.Duration()
	assert.GreaterOrEqual(t, d, 10*time.Millisecond)
}

// TestTimerObserve verifies the observation reaches the histogram
func TestTimerObserve(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_timer_seconds",
	})

	timer := NewTimer(hist)
	d := timer.ObserveDuration()
	assert.Greater(t, d, time.Duration(0))
}

// TestTimerNilObserver verifies ObserveDuration tolerates a nil observer
func TestTimerNilObserver(t *testing.T) {
	timer := NewTimer(nil)
	assert.NotPanics(t, func() { timer.ObserveDuration() })
}
