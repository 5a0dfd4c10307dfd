package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	m.Run()
}

func testSnapshot() FleetStatus {
	return FleetStatus{
		RunID:    "20260823_120000",
		RunCount: 3,
		Instances: []InstanceStatus{
			{Name: "node1", State: types.InstanceProcessing, Since: time.Now(), Block: 4200},
			{Name: "node2", State: types.InstanceFailed, Since: time.Now(), Error: "unresponsive for 5m 1s"},
		},
	}
}

// TestHealthzEndpoint verifies the status endpoint shape
func TestHealthzEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0", testSnapshot)

	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status FleetStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "20260823_120000", status.RunID)
	assert.Equal(t, 3, status.RunCount)
	require.Len(t, status.Instances, 2)
	assert.Equal(t, types.InstanceProcessing, status.Instances[0].State)
	assert.Equal(t, "unresponsive for 5m 1s", status.Instances[1].Error)
}

// TestHealthzMethodNotAllowed verifies writes are rejected
func TestHealthzMethodNotAllowed(t *testing.T) {
	s := NewServer("127.0.0.1:0", testSnapshot)

	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/healthz", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 405, resp.StatusCode)
}

// TestMetricsEndpoint verifies the Prometheus endpoint serves
func TestMetricsEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0", testSnapshot)

	ts := httptest.NewServer(s.mux)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

// TestGRPCServerServes starts the listener on an ephemeral port and stops it
func TestGRPCServerServes(t *testing.T) {
	s := NewGRPCServer("127.0.0.1:0")
	require.NoError(t, s.Start())
	s.Stop()
}

// TestGRPCServerBadAddress verifies an unusable address surfaces as an error
func TestGRPCServerBadAddress(t *testing.T) {
	s := NewGRPCServer("256.0.0.1:99999")
	assert.Error(t, s.Start())
}

// TestGRPCFleetHealth flips the fleet service status and checks it through
// the health server directly
func TestGRPCFleetHealth(t *testing.T) {
	s := NewGRPCServer("127.0.0.1:0")
	defer s.Stop()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: FleetService})
		require.NoError(t, err)
		return resp.Status
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	s.SetFleetHealthy(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	s.SetFleetHealthy(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())
}
