package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/shepherd/pkg/inspect"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/probe"
	"github.com/cuemby/shepherd/pkg/types"
)

// logTailLines bounds how much log output is scanned when enriching a
// failure reason after a worker exits
const logTailLines = 200

// MachineConfig holds the thresholds one state machine evaluates on every
// observation
type MachineConfig struct {
	SyncTimeout         time.Duration
	UnresponsiveTimeout time.Duration
	StallTimeout        time.Duration
	ProcessingDuration  time.Duration
	FlapPolicy          types.FlapPolicy
	FailurePatterns     []string
}

// Machine drives one instance through its lifecycle. It owns all mutation
// of the instance: callers feed it observations and read the instance back.
type Machine struct {
	inst      *types.Instance
	prober    probe.Prober
	inspector inspect.Inspector
	cfg       MachineConfig
	logger    zerolog.Logger

	// Unresponsive latch. unreachableSince is the first failed probe of
	// the current outage; downAccrued carries prior outages forward under
	// the cumulative flap policy.
	unreachableSince time.Time
	downAccrued      time.Duration
}

// NewMachine creates a state machine for one instance. The inspector may be
// nil, in which case failure reasons are never enriched with exit codes.
func NewMachine(inst *types.Instance, prober probe.Prober, inspector inspect.Inspector, cfg MachineConfig) *Machine {
	return &Machine{
		inst:      inst,
		prober:    prober,
		inspector: inspector,
		cfg:       cfg,
		logger:    log.WithInstance(inst.Name),
	}
}

// Instance returns the instance this machine drives
func (m *Machine) Instance() *types.Instance {
	return m.inst
}

// Recover places the instance directly into syncing with the given entry
// time. Used when its container was already running before monitoring
// began, so the sync timeout counts from the real start.
func (m *Machine) Recover(startedAt time.Time) {
	m.inst.State = types.InstanceSyncing
	m.inst.StateEnteredAt = startedAt
	m.logger.Info().
		Time("started_at", startedAt).
		Msg("Recovered already-running instance into syncing")
}

// Reset returns the instance and the latch to the initial waiting state for
// a new run cycle
func (m *Machine) Reset(now time.Time) {
	m.inst.Reset(now)
	m.unreachableSince = time.Time{}
	m.downAccrued = 0
}

// Update probes the instance once and applies the observation. Returns true
// when the instance changed state.
func (m *Machine) Update(ctx context.Context) bool {
	if m.inst.State.Terminal() {
		return false
	}

	obs := m.prober.Probe(ctx, m.inst.Endpoint)
	if obs.Reachable {
		metrics.ProbesTotal.WithLabelValues("reachable").Inc()
	} else {
		metrics.ProbesTotal.WithLabelValues("unreachable").Inc()
	}

	return m.Apply(ctx, obs, time.Now())
}

// Apply feeds one observation into the state machine at the given time.
// Terminal states absorb every observation unchanged. Returns true when the
// instance changed state.
func (m *Machine) Apply(ctx context.Context, obs types.Observation, now time.Time) bool {
	switch m.inst.State {
	case types.InstanceWaiting:
		return m.applyWaiting(obs, now)
	case types.InstanceSyncing:
		return m.applySyncing(ctx, obs, now)
	case types.InstanceSynced:
		// Transient; settles into processing on the next observation
		m.enterProcessing(now)
		return true
	case types.InstanceProcessing:
		return m.applyProcessing(obs, now)
	default:
		return false
	}
}

func (m *Machine) applyWaiting(obs types.Observation, now time.Time) bool {
	if !obs.Reachable {
		return false
	}

	m.recordProgress(obs, now)
	m.setState(types.InstanceSyncing, now)
	return true
}

func (m *Machine) applySyncing(ctx context.Context, obs types.Observation, now time.Time) bool {
	if elapsed := now.Sub(m.inst.StateEnteredAt); elapsed > m.cfg.SyncTimeout {
		m.fail(now, fmt.Sprintf("sync timed out after %s", FormatDuration(elapsed)))
		return true
	}

	if !obs.Reachable {
		if m.unreachableSince.IsZero() {
			m.unreachableSince = now
			m.logger.Warn().Msg("Instance stopped responding")
		}

		down := now.Sub(m.unreachableSince) + m.downAccrued
		if down > m.cfg.UnresponsiveTimeout {
			m.failUnresponsive(ctx, now, down)
			return true
		}
		return false
	}

	m.releaseLatch(now)
	m.recordProgress(obs, now)

	if obs.Syncing != nil && !*obs.Syncing {
		m.inst.SyncDuration = now.Sub(m.inst.StateEnteredAt)
		metrics.SyncDurationSeconds.Observe(m.inst.SyncDuration.Seconds())
		m.setState(types.InstanceSynced, now)
		m.logger.Info().
			Str("duration", FormatDuration(m.inst.SyncDuration)).
			Msg("Instance finished syncing")

		m.enterProcessing(now)
		return true
	}

	return false
}

func (m *Machine) applyProcessing(obs types.Observation, now time.Time) bool {
	m.recordProgress(obs, now)

	if Stalled(m.inst.LastProgressAt, now, m.cfg.StallTimeout) {
		m.fail(now, fmt.Sprintf("stalled at block %d for over %s",
			m.inst.LastProgress, FormatDuration(m.cfg.StallTimeout)))
		return true
	}

	if now.Sub(m.inst.StateEnteredAt) > m.cfg.ProcessingDuration {
		if m.inst.HasProgress && m.inst.LastProgress > m.inst.ProgressBaseline {
			m.setState(types.InstanceSuccess, now)
			m.logger.Info().
				Uint64("blocks", m.inst.LastProgress-m.inst.ProgressBaseline).
				Msg("Instance kept making progress, marking success")
		} else {
			m.fail(now, fmt.Sprintf("no progress beyond block %d during the %s observation window",
				m.inst.ProgressBaseline, FormatDuration(m.cfg.ProcessingDuration)))
		}
		return true
	}

	return false
}

// enterProcessing records the progress baseline and restarts the stall
// clock so time spent syncing never counts against the stall timeout
func (m *Machine) enterProcessing(now time.Time) {
	m.inst.ProgressBaseline = m.inst.LastProgress
	m.inst.LastProgressAt = now
	m.setState(types.InstanceProcessing, now)
}

// releaseLatch handles a successful probe after an outage according to the
// configured flap policy
func (m *Machine) releaseLatch(now time.Time) {
	if m.unreachableSince.IsZero() {
		return
	}

	if m.cfg.FlapPolicy == types.FlapPolicyCumulative {
		m.downAccrued += now.Sub(m.unreachableSince)
	} else {
		m.downAccrued = 0
	}
	m.unreachableSince = time.Time{}
	m.logger.Info().Msg("Instance responding again")
}

// recordProgress folds an observed block height into the instance. Heights
// never decrease: an observation below the recorded height is treated as no
// forward progress.
func (m *Machine) recordProgress(obs types.Observation, now time.Time) {
	if obs.Progress == nil {
		return
	}
	if !m.inst.HasProgress || *obs.Progress > m.inst.LastProgress {
		m.inst.HasProgress = true
		m.inst.LastProgress = *obs.Progress
		m.inst.LastProgressAt = now
	}
}

// failUnresponsive closes the instance with an unresponsive reason,
// enriched with the exit code and any matched failure-log pattern when the
// backing process turns out to be dead
func (m *Machine) failUnresponsive(ctx context.Context, now time.Time, down time.Duration) {
	reason := fmt.Sprintf("unresponsive for %s", FormatDuration(down))

	if m.inspector != nil && m.inst.Container != "" {
		status, err := m.inspector.Inspect(ctx, m.inst.Container)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Failed to inspect container")
		} else if !status.Running && status.ExitCode != nil {
			reason = fmt.Sprintf("%s, process exited with code %d", reason, *status.ExitCode)

			tail, err := m.inspector.LogTail(ctx, m.inst.Container, logTailLines)
			if err != nil {
				m.logger.Warn().Err(err).Msg("Failed to fetch container logs")
			} else if pattern, ok := inspect.ScanLogPatterns(tail, m.cfg.FailurePatterns); ok {
				reason = fmt.Sprintf("%s (matched %q)", reason, pattern)
			}
		}
	}

	m.fail(now, reason)
}

// fail moves the instance to failed with the given reason. The first
// failure wins: a failed instance is never re-failed with a new reason.
func (m *Machine) fail(now time.Time, reason string) {
	if m.inst.State == types.InstanceFailed {
		return
	}
	m.inst.Error = reason
	m.setState(types.InstanceFailed, now)
	m.logger.Error().Str("reason", reason).Msg("Instance failed")
}

func (m *Machine) setState(state types.InstanceState, now time.Time) {
	m.inst.State = state
	m.inst.StateEnteredAt = now
	metrics.TransitionsTotal.WithLabelValues(string(state)).Inc()
}
