package monitor

import "time"

// Stalled reports whether more than timeout has passed since the last
// forward event. It backs both failure clocks in the state machine: the
// stall check in processing (last forward progress) and the unresponsive
// check in syncing (first failed probe). A zero anchor or non-positive
// timeout never counts as stalled.
func Stalled(since, now time.Time, timeout time.Duration) bool {
	if timeout <= 0 || since.IsZero() {
		return false
	}
	return now.Sub(since) > timeout
}
