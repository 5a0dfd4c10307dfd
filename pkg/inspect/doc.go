/*
Package inspect provides process inspection and control for monitored
workers running as containerd containers.

The Inspector interface answers two questions the monitor needs when a
worker stops responding: is the backing process still running (and if not,
with what exit code), and what do its recent logs say. ScanLogPatterns
turns a log tail into a matched known-failure pattern so failure reasons
can name the root cause.

The Runtime interface adds the control operations used between runs:
restarting a worker's task (recreating the container from its image and
data volume when it has been removed) and recovering the start time of a
container that was already live when the monitor came up.

ContainerdRuntime implements both against a containerd socket, in the
"shepherd" namespace. Task output is written through cio.LogFile into a
configured log root so LogTail can read it back without a streaming API.
*/
package inspect
