package inspect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cuemby/shepherd/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace for Shepherd workers
	DefaultNamespace = "shepherd"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// stopTimeout bounds the graceful-shutdown wait during restarts
	stopTimeout = 10 * time.Second
)

// ContainerdRuntime implements Inspector and Runtime against containerd
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
	logRoot   string // directory holding per-container task log files
}

// NewContainerdRuntime connects to containerd. logRoot is where task logs
// are written so LogTail can read them back.
func NewContainerdRuntime(socketPath, logRoot string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdRuntime{
		client:    client,
		namespace: DefaultNamespace,
		logRoot:   logRoot,
	}, nil
}

// Close closes the containerd client connection
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Inspect reports the container's process status. A container without a
// task counts as not running with an unknown exit code.
func (r *ContainerdRuntime) Inspect(ctx context.Context, containerID string) (types.ProcessStatus, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return types.ProcessStatus{}, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// No task means the container was never started or was cleaned up
		return types.ProcessStatus{}, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return types.ProcessStatus{}, fmt.Errorf("failed to get task status: %w", err)
	}

	switch status.Status {
	case containerd.Running, containerd.Paused, containerd.Pausing:
		return types.ProcessStatus{Running: true}, nil
	case containerd.Stopped:
		code := int(status.ExitStatus)
		return types.ProcessStatus{ExitCode: &code}, nil
	default:
		return types.ProcessStatus{}, nil
	}
}

// LogTail returns the last maxLines lines of the container's task log
func (r *ContainerdRuntime) LogTail(ctx context.Context, containerID string, maxLines int) (string, error) {
	data, err := os.ReadFile(r.logPath(containerID))
	if err != nil {
		return "", fmt.Errorf("failed to read log for %s: %w", containerID, err)
	}
	return TailLines(string(data), maxLines), nil
}

// StartedAt reports the container's last update time as its start time
func (r *ContainerdRuntime) StartedAt(ctx context.Context, containerID string) (time.Time, bool) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return time.Time{}, false
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return time.Time{}, false
	}

	status, err := task.Status(ctx)
	if err != nil || status.Status != containerd.Running {
		return time.Time{}, false
	}

	info, err := container.Info(ctx)
	if err != nil {
		return time.Time{}, false
	}
	return info.UpdatedAt, true
}

// Restart stops the worker's current task, recreates the container from its
// image if it is missing, and starts a fresh task logging to the log root
func (r *ContainerdRuntime) Restart(ctx context.Context, inst types.Instance, cfg RestartConfig) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, inst.Container)
	if err != nil {
		if cfg.Image == "" {
			return fmt.Errorf("container %s not found and no image configured: %w", inst.Container, err)
		}
		container, err = r.createContainer(ctx, inst.Container, cfg)
		if err != nil {
			return err
		}
	} else if err := r.stopTask(ctx, container); err != nil {
		return err
	}

	if r.logRoot != "" {
		if err := os.MkdirAll(r.logRoot, 0755); err != nil {
			return fmt.Errorf("failed to create log root: %w", err)
		}
	}

	task, err := container.NewTask(ctx, r.taskIO(inst.Container))
	if err != nil {
		return fmt.Errorf("failed to create task for %s: %w", inst.Container, err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task for %s: %w", inst.Container, err)
	}

	return nil
}

// createContainer builds a worker container with its data volume mounted
func (r *ContainerdRuntime) createContainer(ctx context.Context, containerID string, cfg RestartConfig) (containerd.Container, error) {
	image, err := r.client.Pull(ctx, cfg.Image, containerd.WithPullUnpack)
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", cfg.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(cfg.Env),
	}

	if cfg.DataDir != "" {
		opts = append(opts, oci.WithMounts([]specs.Mount{
			{
				Source:      cfg.DataDir,
				Destination: "/data",
				Type:        "bind",
				Options:     []string{"rw", "bind"},
			},
		}))
	}

	container, err := r.client.NewContainer(
		ctx,
		containerID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", containerID, err)
	}

	return container, nil
}

// stopTask gracefully stops the container's task, escalating to SIGKILL
// after the stop timeout, and deletes it
func (r *ContainerdRuntime) stopTask(ctx context.Context, container containerd.Container) error {
	task, err := container.Task(ctx, nil)
	if err != nil {
		// No task to stop
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal task: %w", err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("failed to wait for task: %w", err)
	}

	select {
	case <-statusC:
		// Task exited
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("failed to force kill task: %w", err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return nil
}

func (r *ContainerdRuntime) taskIO(containerID string) cio.Creator {
	if r.logRoot == "" {
		return cio.NullIO
	}
	return cio.LogFile(r.logPath(containerID))
}

func (r *ContainerdRuntime) logPath(containerID string) string {
	return filepath.Join(r.logRoot, containerID+".log")
}
