/*
Package types defines the core data structures used throughout Shepherd.

This package contains the fundamental types that represent Shepherd's domain
model: monitored instances and their lifecycle states, fleet run records,
normalized probe and inspection results, and the explicit configuration
struct handed to the orchestrator at construction time.

# Instance lifecycle

An Instance moves through a fixed set of states:

	waiting ──> syncing ──> synced ──> processing ──> success
	               │                       │
	               └───────────────────────┴────────> failed

success and failed are terminal: once reached, no field of the instance
changes again. Instance.Error is non-empty exactly when the state is failed.

# Runs

A RunRecord captures one complete fleet-wide monitoring cycle, from instance
reset to all-terminal. Its Count field is a monotonic counter recovered from
the run history store across process restarts; its outcome (AllSucceeded) is
always derived from the per-instance states, never stored separately.

# Configuration

Config is loaded from a YAML file via LoadConfig and validated up front.
All timeouts, the polling cadence, the instance set, and the flap policy for
the unresponsive latch live here; nothing reads configuration from ambient
process state.
*/
package types
