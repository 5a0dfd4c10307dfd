package monitor

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/shepherd/pkg/events"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/types"
)

// SchedulerConfig holds the polling cadence and output settings for one
// fleet scheduler
type SchedulerConfig struct {
	TickInterval       time.Duration
	StatusInterval     time.Duration
	ProcessingDuration time.Duration

	// Output receives status snapshots; defaults to os.Stdout
	Output io.Writer

	// ClearScreen redraws the snapshot in place instead of appending
	ClearScreen bool
}

// Scheduler polls a fleet of state machines from a single loop until every
// instance reaches a terminal state or the context is cancelled. Instances
// are always polled in the order given at construction.
type Scheduler struct {
	machines []*Machine
	broker   *events.Broker
	runID    string
	cfg      SchedulerConfig
	logger   zerolog.Logger
}

// NewScheduler creates a scheduler over the given machines. The broker may
// be nil when no subscribers exist.
func NewScheduler(machines []*Machine, broker *events.Broker, runID string, cfg SchedulerConfig) *Scheduler {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	return &Scheduler{
		machines: machines,
		broker:   broker,
		runID:    runID,
		cfg:      cfg,
		logger:   log.WithComponent("scheduler"),
	}
}

// Run drives the polling loop. It returns once every instance is terminal
// or the context is cancelled; either way a final status snapshot is
// written before returning. Cancellation is only honored between ticks:
// an in-flight poll pass always completes. Returns true when every
// instance succeeded.
func (s *Scheduler) Run(ctx context.Context) bool {
	s.logger.Info().
		Str("run_id", s.runID).
		Int("instances", len(s.machines)).
		Dur("tick", s.cfg.TickInterval).
		Msg("Starting fleet polling loop")

	var lastStatus time.Time
	for {
		changed := false
		for _, m := range s.machines {
			before := m.Instance().State
			if m.Update(ctx) {
				changed = true
				s.publishTransition(m.Instance(), before)
			}
		}
		s.updateGauges()

		now := time.Now()
		rendered := changed || now.Sub(lastStatus) >= s.cfg.StatusInterval
		if rendered {
			s.render(now)
			lastStatus = now
		}

		if s.allTerminal() {
			if !rendered {
				s.render(time.Now())
			}
			return s.allSucceeded()
		}

		select {
		case <-ctx.Done():
			s.logger.Warn().Msg("Polling interrupted, writing final snapshot")
			s.render(time.Now())
			return s.allSucceeded()
		case <-time.After(s.cfg.TickInterval):
		}
	}
}

// Instances returns the fleet in polling order
func (s *Scheduler) Instances() []*types.Instance {
	instances := make([]*types.Instance, len(s.machines))
	for i, m := range s.machines {
		instances[i] = m.Instance()
	}
	return instances
}

func (s *Scheduler) publishTransition(inst *types.Instance, before types.InstanceState) {
	if s.broker == nil {
		return
	}

	s.broker.Publish(events.Event{
		Type:     events.EventInstanceStateChanged,
		Instance: inst.Name,
		RunID:    s.runID,
		Data: map[string]interface{}{
			"from": string(before),
			"to":   string(inst.State),
		},
	})

	if inst.State == types.InstanceFailed {
		s.broker.Publish(events.Event{
			Type:     events.EventInstanceFailed,
			Instance: inst.Name,
			RunID:    s.runID,
			Data: map[string]interface{}{
				"reason": inst.Error,
			},
		})
	}
}

func (s *Scheduler) updateGauges() {
	counts := make(map[types.InstanceState]int)
	for _, m := range s.machines {
		counts[m.Instance().State]++
	}
	for _, state := range []types.InstanceState{
		types.InstanceWaiting, types.InstanceSyncing, types.InstanceSynced,
		types.InstanceProcessing, types.InstanceSuccess, types.InstanceFailed,
	} {
		metrics.InstancesByState.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (s *Scheduler) render(now time.Time) {
	if s.cfg.ClearScreen {
		io.WriteString(s.cfg.Output, "\033[2J\033[H")
	}
	io.WriteString(s.cfg.Output, Render(now, s.Instances(), s.cfg.ProcessingDuration))
}

func (s *Scheduler) allTerminal() bool {
	for _, m := range s.machines {
		if !m.Instance().State.Terminal() {
			return false
		}
	}
	return true
}

func (s *Scheduler) allSucceeded() bool {
	for _, m := range s.machines {
		if m.Instance().State != types.InstanceSuccess {
			return false
		}
	}
	return len(s.machines) > 0
}
