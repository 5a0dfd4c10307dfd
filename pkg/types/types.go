package types

import (
	"time"
)

// InstanceState represents the lifecycle state of a monitored instance
type InstanceState string

const (
	// InstanceWaiting means the node has not yet answered a probe (still booting)
	InstanceWaiting InstanceState = "waiting"

	// InstanceSyncing means the node is reachable and performing bulk sync
	InstanceSyncing InstanceState = "syncing"

	// InstanceSynced means bulk sync finished; transient, settles into processing
	InstanceSynced InstanceState = "synced"

	// InstanceProcessing means the node is being observed for sustained progress
	InstanceProcessing InstanceState = "processing"

	// InstanceSuccess is terminal: the node synced and kept making progress
	InstanceSuccess InstanceState = "success"

	// InstanceFailed is terminal: see Instance.Error for the reason
	InstanceFailed InstanceState = "failed"
)

// Terminal reports whether the state admits no further transitions
func (s InstanceState) Terminal() bool {
	return s == InstanceSuccess || s == InstanceFailed
}

// Instance is one monitored worker node tracked through its lifecycle.
// All fields are mutated only by the monitor state machine on poll ticks.
type Instance struct {
	// Identity
	Name      string // unique within a fleet run
	Endpoint  string // health-check address (JSON-RPC URL)
	Container string // containerd container ID for inspection and log fetch

	// Lifecycle
	State          InstanceState
	StateEnteredAt time.Time

	// Progress tracking. LastProgress is non-decreasing while HasProgress
	// holds; ProgressBaseline is recorded on entering processing.
	HasProgress      bool
	LastProgress     uint64
	LastProgressAt   time.Time
	ProgressBaseline uint64

	// SyncDuration is set exactly once, on the transition into synced
	SyncDuration time.Duration

	// Error is non-empty iff State == InstanceFailed, immutable once set
	Error string
}

// Reset returns the instance to its initial waiting state for a new run cycle
func (i *Instance) Reset(now time.Time) {
	i.State = InstanceWaiting
	i.StateEnteredAt = now
	i.HasProgress = false
	i.LastProgress = 0
	i.LastProgressAt = time.Time{}
	i.ProgressBaseline = 0
	i.SyncDuration = 0
	i.Error = ""
}

// Result captures the instance outcome for a closed run
func (i *Instance) Result() InstanceResult {
	return InstanceResult{
		Name:         i.Name,
		State:        i.State,
		SyncDuration: i.SyncDuration,
		LastProgress: i.LastProgress,
		Error:        i.Error,
	}
}

// InstanceResult is the immutable per-instance outcome captured when a run closes
type InstanceResult struct {
	Name         string        `json:"name"`
	State        InstanceState `json:"state"`
	SyncDuration time.Duration `json:"sync_duration"`
	LastProgress uint64        `json:"last_progress"`
	Error        string        `json:"error,omitempty"`
}

// RunRecord is one fleet-wide monitoring cycle, closed when every instance
// reached a terminal state. Immutable thereafter.
type RunRecord struct {
	ID        string           `json:"id"`    // timestamp-derived, e.g. 20260823_141530
	Count     int              `json:"count"` // monotonic counter recovered from history
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Commit    string           `json:"commit,omitempty"` // source revision when auto-update ran
	Instances []InstanceResult `json:"instances"`
}

// AllSucceeded is derived from the per-instance states, never stored independently
func (r *RunRecord) AllSucceeded() bool {
	for _, inst := range r.Instances {
		if inst.State != InstanceSuccess {
			return false
		}
	}
	return len(r.Instances) > 0
}

// Observation is the normalized result of one health probe. A probe never
// fails: unreachable endpoints collapse to Reachable == false.
type Observation struct {
	Reachable bool
	Progress  *uint64 // block height; nil when the node did not answer
	Syncing   *bool   // nil when the sync status is unknown
}

// ProcessStatus is the normalized result of one container inspection
type ProcessStatus struct {
	Running  bool
	ExitCode *int // nil while running or when the exit status is unknown
}
