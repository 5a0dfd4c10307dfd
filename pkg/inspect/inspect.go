package inspect

import (
	"context"
	"time"

	"github.com/cuemby/shepherd/pkg/types"
)

// Inspector queries the backing process/container of a monitored worker
type Inspector interface {
	// Inspect reports whether the worker's container is running and, when
	// it has exited, with which exit code
	Inspect(ctx context.Context, container string) (types.ProcessStatus, error)

	// LogTail fetches up to maxLines of the container's most recent log
	// output. Best effort: callers must tolerate an error.
	LogTail(ctx context.Context, container string, maxLines int) (string, error)
}

// Runtime extends Inspector with the control operations the orchestrator
// needs between runs
type Runtime interface {
	Inspector

	// Restart stops the worker's task if one is running and starts a
	// fresh one, recreating the container from its image when necessary
	Restart(ctx context.Context, inst types.Instance, cfg RestartConfig) error

	// StartedAt reports when the container last started, for recovering
	// instances that were already live when the monitor came up
	StartedAt(ctx context.Context, container string) (time.Time, bool)
}

// RestartConfig carries what Restart needs to recreate a missing container
type RestartConfig struct {
	Image   string   // image ref; empty means never recreate
	DataDir string   // host path bind-mounted at /data inside the worker
	Env     []string // KEY=VALUE pairs
}
