/*
Package api exposes the monitor's read-only operator surface: an HTTP
endpoint serving the current fleet status and Prometheus metrics, and the
standard gRPC health protocol reflecting whether any instance has failed.
Neither endpoint can mutate monitor state.
*/
package api
