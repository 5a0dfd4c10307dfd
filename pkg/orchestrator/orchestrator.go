package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/shepherd/pkg/api"
	"github.com/cuemby/shepherd/pkg/build"
	"github.com/cuemby/shepherd/pkg/events"
	"github.com/cuemby/shepherd/pkg/history"
	"github.com/cuemby/shepherd/pkg/inspect"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/monitor"
	"github.com/cuemby/shepherd/pkg/notify"
	"github.com/cuemby/shepherd/pkg/probe"
	"github.com/cuemby/shepherd/pkg/types"
)

// savedLogLines bounds how much container log is archived per instance per run
const savedLogLines = 1000

// Archive stores closed run records for later inspection
type Archive interface {
	Put(record types.RunRecord) error
}

// Orchestrator runs monitoring cycles over a fleet: optionally update and
// rebuild the worker, restart or adopt the containers, poll the fleet to
// completion, then persist and announce the outcome. It loops when
// configured to, resetting every instance between cycles.
type Orchestrator struct {
	cfg      types.Config
	runtime  inspect.Runtime // nil when no container runtime is configured
	notifier notify.Notifier
	store    *history.FileStore
	archive  Archive // nil disables archiving
	updater  *build.Updater
	broker   *events.Broker
	machines []*monitor.Machine
	logger   zerolog.Logger

	mu       sync.RWMutex
	runID    string
	runCount int
	statuses map[string]api.InstanceStatus
}

// New wires an orchestrator from its collaborators. The prober is used for
// every instance; runtime and archive may be nil.
func New(cfg types.Config, prober probe.Prober, runtime inspect.Runtime, notifier notify.Notifier, store *history.FileStore, archive Archive, broker *events.Broker) *Orchestrator {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if broker == nil {
		broker = events.NewBroker()
	}

	o := &Orchestrator{
		cfg:      cfg,
		runtime:  runtime,
		notifier: notifier,
		store:    store,
		archive:  archive,
		broker:   broker,
		logger:   log.WithComponent("orchestrator"),
		statuses: make(map[string]api.InstanceStatus),
	}

	if cfg.Update.Enabled {
		o.updater = build.NewUpdater(cfg.Update)
	}

	machineCfg := monitor.MachineConfig{
		SyncTimeout:         cfg.SyncTimeout,
		UnresponsiveTimeout: cfg.UnresponsiveTimeout,
		StallTimeout:        cfg.StallTimeout,
		ProcessingDuration:  cfg.ProcessingDuration,
		FlapPolicy:          cfg.FlapPolicy,
		FailurePatterns:     cfg.FailurePatterns,
	}

	var inspector inspect.Inspector
	if runtime != nil {
		inspector = runtime
	}

	now := time.Now()
	for _, ic := range cfg.Instances {
		inst := &types.Instance{
			Name:           ic.Name,
			Endpoint:       ic.Endpoint,
			Container:      ic.Container,
			State:          types.InstanceWaiting,
			StateEnteredAt: now,
		}
		o.machines = append(o.machines, monitor.NewMachine(inst, prober, inspector, machineCfg))
	}

	broker.SubscribeAll(o.trackStatus)
	return o
}

// Broker returns the event broker the orchestrator publishes on
func (o *Orchestrator) Broker() *events.Broker {
	return o.broker
}

// Run executes monitoring cycles until the context is cancelled or, when
// looping is off, the first cycle closes. Returns whether every instance of
// every executed cycle succeeded. Setup failures (source update, build,
// worker restart) are fatal and returned as errors.
func (o *Orchestrator) Run(ctx context.Context) (bool, error) {
	runCount := o.store.NextRunCount()
	o.logger.Info().Int("run_count", runCount).Msg("Recovered run counter")

	allOK := true
	for {
		ok, err := o.runCycle(ctx, runCount)
		if err != nil {
			return false, err
		}
		allOK = allOK && ok

		if !o.cfg.Loop || ctx.Err() != nil {
			return allOK, nil
		}

		runCount++
		now := time.Now()
		for _, m := range o.machines {
			m.Reset(now)
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context, runCount int) (bool, error) {
	startedAt := time.Now()
	runID := startedAt.Format("20060102_150405")
	logger := log.WithRun(runID)

	o.mu.Lock()
	o.runID = runID
	o.runCount = runCount
	for _, m := range o.machines {
		inst := m.Instance()
		o.statuses[inst.Name] = api.InstanceStatus{Name: inst.Name, State: inst.State, Since: inst.StateEnteredAt}
	}
	o.mu.Unlock()

	logger.Info().Int("count", runCount).Msg("Starting run")

	commit, err := o.updateWorker(ctx)
	if err != nil {
		return false, err
	}

	if err := o.prepareWorkers(ctx, runCount); err != nil {
		return false, err
	}

	o.broker.Publish(events.Event{
		Type:  events.EventRunStarted,
		RunID: runID,
		Data:  map[string]interface{}{"count": runCount},
	})

	sched := monitor.NewScheduler(o.machines, o.broker, runID, monitor.SchedulerConfig{
		TickInterval:       o.cfg.TickInterval,
		StatusInterval:     o.cfg.StatusInterval,
		ProcessingDuration: o.cfg.ProcessingDuration,
	})
	allOK := sched.Run(ctx)

	record := types.RunRecord{
		ID:        runID,
		Count:     runCount,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Commit:    commit,
	}
	for _, m := range o.machines {
		record.Instances = append(record.Instances, m.Instance().Result())
	}

	o.closeRun(ctx, logger, record)
	return allOK, nil
}

// updateWorker pulls and rebuilds the worker source when auto-update is
// enabled. Both steps are fatal on failure.
func (o *Orchestrator) updateWorker(ctx context.Context) (string, error) {
	if o.updater == nil {
		if o.cfg.Update.RepoDir != "" {
			_, commit := build.GitInfo(ctx, o.cfg.Update.RepoDir)
			return commit, nil
		}
		return "", nil
	}

	commit, err := o.updater.PullLatest(ctx)
	if err != nil {
		return "", fmt.Errorf("source update failed: %w", err)
	}
	if err := o.updater.Build(ctx); err != nil {
		return "", fmt.Errorf("worker build failed: %w", err)
	}
	return commit, nil
}

// prepareWorkers restarts every container, or on the first cycle without
// restarts adopts containers that are already running so their real start
// time counts against the sync timeout
func (o *Orchestrator) prepareWorkers(ctx context.Context, runCount int) error {
	if o.runtime == nil {
		return nil
	}

	for i, m := range o.machines {
		inst := m.Instance()
		if inst.Container == "" {
			continue
		}

		if o.cfg.RestartWorkers {
			ic := o.cfg.Instances[i]
			err := o.runtime.Restart(ctx, *inst, inspect.RestartConfig{
				Image:   ic.Image,
				DataDir: ic.DataDir,
				Env:     ic.Env,
			})
			if err != nil {
				return fmt.Errorf("failed to restart %s: %w", inst.Name, err)
			}
			continue
		}

		if startedAt, ok := o.runtime.StartedAt(ctx, inst.Container); ok {
			m.Recover(startedAt)
		}
	}
	return nil
}

// closeRun persists and announces a finished cycle. Everything here is
// best effort: history, archive, log capture, and notification failures
// are logged and never fail the run.
func (o *Orchestrator) closeRun(ctx context.Context, logger zerolog.Logger, record types.RunRecord) {
	outcome := "failed"
	if record.AllSucceeded() {
		outcome = "success"
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.RunDurationSeconds.Observe(record.Duration.Seconds())

	logger.Info().
		Str("outcome", outcome).
		Str("duration", monitor.FormatDuration(record.Duration)).
		Msg("Run closed")

	if err := o.store.Append(record); err != nil {
		logger.Error().Err(err).Msg("Failed to append run history")
	}

	if o.archive != nil {
		if err := o.archive.Put(record); err != nil {
			logger.Error().Err(err).Msg("Failed to archive run record")
		}
	}

	o.saveWorkerLogs(ctx, logger, record.ID)

	o.notifier.Notify(ctx, notify.BuildMessage(record))

	o.broker.Publish(events.Event{
		Type:  events.EventRunCompleted,
		RunID: record.ID,
		Data:  map[string]interface{}{"outcome": outcome, "count": record.Count},
	})
}

// saveWorkerLogs archives the tail of each worker's container log under the
// run's log directory
func (o *Orchestrator) saveWorkerLogs(ctx context.Context, logger zerolog.Logger, runID string) {
	if o.runtime == nil || o.cfg.LogDir == "" {
		return
	}

	dir := filepath.Join(o.cfg.LogDir, "run_"+runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error().Err(err).Msg("Failed to create run log directory")
		return
	}

	for _, m := range o.machines {
		inst := m.Instance()
		if inst.Container == "" {
			continue
		}

		tail, err := o.runtime.LogTail(ctx, inst.Container, savedLogLines)
		if err != nil {
			logger.Warn().Err(err).Str("instance", inst.Name).Msg("Failed to capture worker logs")
			continue
		}

		path := filepath.Join(dir, inst.Name+".log")
		if err := os.WriteFile(path, []byte(tail), 0644); err != nil {
			logger.Warn().Err(err).Str("instance", inst.Name).Msg("Failed to save worker logs")
		}
	}
}

// trackStatus maintains the race-free status cache the API server reads
func (o *Orchestrator) trackStatus(e events.Event) {
	if e.Type != events.EventInstanceStateChanged && e.Type != events.EventInstanceFailed {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, m := range o.machines {
		inst := m.Instance()
		if inst.Name != e.Instance {
			continue
		}
		o.statuses[inst.Name] = api.InstanceStatus{
			Name:  inst.Name,
			State: inst.State,
			Since: inst.StateEnteredAt,
			Block: inst.LastProgress,
			Error: inst.Error,
		}
	}
}

// Snapshot returns the current fleet status for the API server
func (o *Orchestrator) Snapshot() api.FleetStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status := api.FleetStatus{RunID: o.runID, RunCount: o.runCount}
	for _, m := range o.machines {
		if s, ok := o.statuses[m.Instance().Name]; ok {
			status.Instances = append(status.Instances, s)
		}
	}
	return status
}

// FleetHealthy reports whether no instance has failed, for the gRPC health
// service
func (o *Orchestrator) FleetHealthy() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, s := range o.statuses {
		if s.State == types.InstanceFailed {
			return false
		}
	}
	return true
}
