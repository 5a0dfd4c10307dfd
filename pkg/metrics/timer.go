package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures an elapsed duration and optionally feeds it into a
// histogram
type Timer struct {
	start time.Time
	obs   prometheus.Observer
}

// NewTimer starts a timer. The observer may be nil when only Duration is
// wanted.
func NewTimer(obs prometheus.Observer) *Timer {
	return &Timer{start: time.Now(), obs: obs}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time into the observer and returns it
func (t *Timer) ObserveDuration() time.Duration {
	d := t.Duration()
	if t.obs != nil {
		t.obs.Observe(d.Seconds())
	}
	return d
}
