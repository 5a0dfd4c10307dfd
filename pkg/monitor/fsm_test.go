package monitor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	m.Run()
}

func testMachineConfig() MachineConfig {
	return MachineConfig{
		SyncTimeout:         3 * time.Hour,
		UnresponsiveTimeout: 5 * time.Minute,
		StallTimeout:        10 * time.Minute,
		ProcessingDuration:  30 * time.Minute,
		FlapPolicy:          types.FlapPolicyReset,
	}
}

func newTestMachine(cfg MachineConfig) (*Machine, *types.Instance) {
	inst := &types.Instance{
		Name:      "node1",
		Endpoint:  "http://localhost:8545",
		Container: "node1",
		State:     types.InstanceWaiting,
	}
	return NewMachine(inst, nil, nil, cfg), inst
}

func obsDown() types.Observation {
	return types.Observation{}
}

func obsSyncing(height uint64) types.Observation {
	syncing := true
	return types.Observation{Reachable: true, Progress: &height, Syncing: &syncing}
}

func obsSynced(height uint64) types.Observation {
	syncing := false
	return types.Observation{Reachable: true, Progress: &height, Syncing: &syncing}
}

// TestHappyPath walks an instance through the full lifecycle to success
func TestHappyPath(t *testing.T) {
	ctx := context.Background()
	m, inst := newTestMachine(testMachineConfig())
	t0 := time.Now()
	inst.StateEnteredAt = t0

	// Not answering yet: stays waiting
	assert.False(t, m.Apply(ctx, obsDown(), t0))
	assert.Equal(t, types.InstanceWaiting, inst.State)

	// First answer moves it to syncing
	assert.True(t, m.Apply(ctx, obsSyncing(10), t0.Add(time.Minute)))
	assert.Equal(t, types.InstanceSyncing, inst.State)

	// Still syncing, height advancing
	assert.False(t, m.Apply(ctx, obsSyncing(50), t0.Add(30*time.Minute)))
	assert.Equal(t, types.InstanceSyncing, inst.State)

	// Sync finishes: settles straight into processing with a baseline
	syncedAt := t0.Add(time.Hour)
	assert.True(t, m.Apply(ctx, obsSynced(100), syncedAt))
	assert.Equal(t, types.InstanceProcessing, inst.State)
	assert.Equal(t, uint64(100), inst.ProgressBaseline)
	assert.Equal(t, 59*time.Minute, inst.SyncDuration)

	// Progress keeps flowing inside the observation window
	for i, height := range []uint64{110, 120, 130} {
		at := syncedAt.Add(time.Duration(i+1) * 8 * time.Minute)
		assert.False(t, m.Apply(ctx, obsSynced(height), at))
		assert.Equal(t, types.InstanceProcessing, inst.State)
	}

	// Window elapses with progress beyond the baseline: success
	assert.True(t, m.Apply(ctx, obsSynced(150), syncedAt.Add(31*time.Minute)))
	assert.Equal(t, types.InstanceSuccess, inst.State)
	assert.Empty(t, inst.Error)
	assert.Equal(t, uint64(150), inst.LastProgress)
}

// TestStallDuringProcessing covers a node that stops advancing while the
// observation window is still open
func TestStallDuringProcessing(t *testing.T) {
	ctx := context.Background()
	m, inst := newTestMachine(testMachineConfig())
	t0 := time.Now()
	inst.StateEnteredAt = t0

	require.True(t, m.Apply(ctx, obsSyncing(10), t0))
	syncedAt := t0.Add(time.Hour)
	require.True(t, m.Apply(ctx, obsSynced(100), syncedAt))

	// Same height over and over: the stall clock never resets
	assert.False(t, m.Apply(ctx, obsSynced(100), syncedAt.Add(5*time.Minute)))
	assert.True(t, m.Apply(ctx, obsSynced(100), syncedAt.Add(11*time.Minute)))

	assert.Equal(t, types.InstanceFailed, inst.State)
	assert.Contains(t, inst.Error, "stalled")
	assert.Contains(t, inst.Error, "100")
}

// TestNoProgressWindow covers a window that closes without the height ever
// moving past its baseline
func TestNoProgressWindow(t *testing.T) {
	ctx := context.Background()
	cfg := testMachineConfig()
	cfg.StallTimeout = time.Hour // keep the stall check out of the way
	m, inst := newTestMachine(cfg)
	t0 := time.Now()
	inst.StateEnteredAt = t0

	require.True(t, m.Apply(ctx, obsSyncing(10), t0))
	syncedAt := t0.Add(time.Hour)
	require.True(t, m.Apply(ctx, obsSynced(100), syncedAt))

	assert.True(t, m.Apply(ctx, obsSynced(100), syncedAt.Add(31*time.Minute)))
	assert.Equal(t, types.InstanceFailed, inst.State)
	assert.Contains(t, inst.Error, "no progress")
}

// TestSyncTimeout covers a node that answers probes but never finishes
// syncing
func TestSyncTimeout(t *testing.T) {
	ctx := context.Background()
	m, inst := newTestMachine(testMachineConfig())
	t0 := time.Now()
	inst.StateEnteredAt = t0

	require.True(t, m.Apply(ctx, obsSyncing(10), t0))

	assert.False(t, m.Apply(ctx, obsSyncing(500), t0.Add(2*time.Hour)))
	assert.True(t, m.Apply(ctx, obsSyncing(900), t0.Add(3*time.Hour+time.Second)))

	assert.Equal(t, types.InstanceFailed, inst.State)
	assert.Contains(t, inst.Error, "sync timed out")
}

// TestUnresponsiveLatch verifies the unresponsive clock counts from the
// first failed probe, not the most recent one
func TestUnresponsiveLatch(t *testing.T) {
	ctx := context.Background()
	m, inst := newTestMachine(testMachineConfig())
	t0 := time.Now()
	inst.StateEnteredAt = t0

	require.True(t, m.Apply(ctx, obsSyncing(10), t0))

	down := t0.Add(time.Minute)
	assert.False(t, m.Apply(ctx, obsDown(), down))
	assert.False(t, m.Apply(ctx, obsDown(), down.Add(3*time.Minute)))
	assert.Equal(t, types.InstanceSyncing, inst.State)

	// Over five minutes since the first failure
	assert.True(t, m.Apply(ctx, obsDown(), down.Add(5*time.Minute+time.Second)))
	assert.Equal(t, types.InstanceFailed, inst.State)
	assert.Contains(t, inst.Error, "unresponsive")
}

// TestFlapPolicies exercises both latch policies across an
// unreachable/reachable/unreachable flap
func TestFlapPolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     types.FlapPolicy
		wantFailed bool
	}{
		{name: "reset forgives prior outages", policy: types.FlapPolicyReset, wantFailed: false},
		{name: "cumulative accrues prior outages", policy: types.FlapPolicyCumulative, wantFailed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := testMachineConfig()
			cfg.FlapPolicy = tt.policy
			m, inst := newTestMachine(cfg)
			t0 := time.Now()
			inst.StateEnteredAt = t0

			require.True(t, m.Apply(ctx, obsSyncing(10), t0))

			// Three minutes down, then back up
			require.False(t, m.Apply(ctx, obsDown(), t0.Add(1*time.Minute)))
			require.False(t, m.Apply(ctx, obsSyncing(20), t0.Add(4*time.Minute)))

			// Down again; this outage alone is only three minutes old
			require.False(t, m.Apply(ctx, obsDown(), t0.Add(5*time.Minute)))
			m.Apply(ctx, obsDown(), t0.Add(8*time.Minute))

			if tt.wantFailed {
				assert.Equal(t, types.InstanceFailed, inst.State)
				assert.Contains(t, inst.Error, "unresponsive")
			} else {
				assert.Equal(t, types.InstanceSyncing, inst.State)
			}
		})
	}
}

// TestUnresponsiveEnrichment verifies an exited process adds its exit code
// and matched log pattern to the failure reason
func TestUnresponsiveEnrichment(t *testing.T) {
	ctx := context.Background()
	cfg := testMachineConfig()
	cfg.FailurePatterns = []string{"out of memory", `Sync cycle failed`}

	inst := &types.Instance{Name: "node1", Container: "node1", State: types.InstanceWaiting}
	exitCode := 137
	inspector := &fakeInspector{
		status: types.ProcessStatus{Running: false, ExitCode: &exitCode},
		logs:   "INFO syncing\nERROR Sync cycle failed: BodiesNotFound\n",
	}
	m := NewMachine(inst, nil, inspector, cfg)

	t0 := time.Now()
	inst.StateEnteredAt = t0
	require.True(t, m.Apply(ctx, obsSyncing(10), t0))

	require.False(t, m.Apply(ctx, obsDown(), t0.Add(time.Minute)))
	require.True(t, m.Apply(ctx, obsDown(), t0.Add(7*time.Minute)))

	assert.Equal(t, types.InstanceFailed, inst.State)
	assert.Contains(t, inst.Error, "unresponsive")
	assert.Contains(t, inst.Error, "exited with code 137")
	assert.Contains(t, inst.Error, "Sync cycle failed")
}

// TestProgressMonotonic verifies an observed height below the recorded one
// never lowers it and never refreshes the stall clock
func TestProgressMonotonic(t *testing.T) {
	ctx := context.Background()
	m, inst := newTestMachine(testMachineConfig())
	t0 := time.Now()
	inst.StateEnteredAt = t0

	require.True(t, m.Apply(ctx, obsSyncing(10), t0))
	syncedAt := t0.Add(time.Hour)
	require.True(t, m.Apply(ctx, obsSynced(100), syncedAt))

	require.False(t, m.Apply(ctx, obsSynced(150), syncedAt.Add(time.Minute)))
	assert.Equal(t, uint64(150), inst.LastProgress)

	// Lower reading: height holds, stall clock keeps running
	require.False(t, m.Apply(ctx, obsSynced(120), syncedAt.Add(5*time.Minute)))
	assert.Equal(t, uint64(150), inst.LastProgress)
	assert.Equal(t, syncedAt.Add(time.Minute), inst.LastProgressAt)
}

// TestTerminalStatesAbsorb verifies terminal states ignore every further
// observation and the failure reason never changes
func TestTerminalStatesAbsorb(t *testing.T) {
	ctx := context.Background()
	m, inst := newTestMachine(testMachineConfig())
	t0 := time.Now()
	inst.StateEnteredAt = t0

	require.True(t, m.Apply(ctx, obsSyncing(10), t0))
	require.True(t, m.Apply(ctx, obsSyncing(20), t0.Add(4*time.Hour)))
	require.Equal(t, types.InstanceFailed, inst.State)

	reason := inst.Error
	require.NotEmpty(t, reason)

	assert.False(t, m.Apply(ctx, obsSynced(9999), t0.Add(5*time.Hour)))
	assert.False(t, m.Apply(ctx, obsDown(), t0.Add(6*time.Hour)))
	assert.Equal(t, types.InstanceFailed, inst.State)
	assert.Equal(t, reason, inst.Error)
}

// TestApplyIdempotentWithoutChange verifies repeated identical observations
// in a non-terminal state change nothing
func TestApplyIdempotentWithoutChange(t *testing.T) {
	ctx := context.Background()
	m, inst := newTestMachine(testMachineConfig())
	t0 := time.Now()
	inst.StateEnteredAt = t0

	for i := 0; i < 5; i++ {
		assert.False(t, m.Apply(ctx, obsDown(), t0.Add(time.Duration(i)*time.Minute)))
	}
	assert.Equal(t, types.InstanceWaiting, inst.State)
	assert.Empty(t, inst.Error)
}

// TestRecoverIntoSyncing verifies a recovered instance counts its sync
// timeout from the real container start
func TestRecoverIntoSyncing(t *testing.T) {
	ctx := context.Background()
	m, inst := newTestMachine(testMachineConfig())

	startedAt := time.Now().Add(-2 * time.Hour)
	m.Recover(startedAt)
	require.Equal(t, types.InstanceSyncing, inst.State)

	// Another 61 minutes pushes total sync time past three hours
	assert.False(t, m.Apply(ctx, obsSyncing(10), startedAt.Add(2*time.Hour)))
	assert.True(t, m.Apply(ctx, obsSyncing(20), startedAt.Add(3*time.Hour+time.Minute)))
	assert.Contains(t, inst.Error, "sync timed out")
}

// TestResetClearsLatch verifies Reset restores the initial state including
// the unresponsive latch
func TestResetClearsLatch(t *testing.T) {
	ctx := context.Background()
	cfg := testMachineConfig()
	cfg.FlapPolicy = types.FlapPolicyCumulative
	m, inst := newTestMachine(cfg)
	t0 := time.Now()
	inst.StateEnteredAt = t0

	require.True(t, m.Apply(ctx, obsSyncing(10), t0))
	require.False(t, m.Apply(ctx, obsDown(), t0.Add(time.Minute)))

	t1 := t0.Add(10 * time.Minute)
	m.Reset(t1)
	assert.Equal(t, types.InstanceWaiting, inst.State)
	assert.Empty(t, inst.Error)
	assert.False(t, inst.HasProgress)

	// Accrued downtime from the previous run must not carry over
	require.True(t, m.Apply(ctx, obsSyncing(10), t1))
	require.False(t, m.Apply(ctx, obsDown(), t1.Add(time.Minute)))
	assert.False(t, m.Apply(ctx, obsDown(), t1.Add(5*time.Minute)))
	assert.Equal(t, types.InstanceSyncing, inst.State)
}

type fakeInspector struct {
	status types.ProcessStatus
	err    error
	logs   string
}

func (f *fakeInspector) Inspect(ctx context.Context, container string) (types.ProcessStatus, error) {
	return f.status, f.err
}

func (f *fakeInspector) LogTail(ctx context.Context, container string, maxLines int) (string, error) {
	return f.logs, nil
}
