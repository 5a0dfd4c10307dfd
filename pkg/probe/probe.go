package probe

import (
	"context"

	"github.com/cuemby/shepherd/pkg/types"
)

// Prober is the interface all health probes implement. Probe never returns
// an error: anything that prevents a status answer, including network
// failures and timeouts, collapses to Reachable == false.
type Prober interface {
	// Probe performs one bounded-timeout status query against a worker's
	// control endpoint
	Probe(ctx context.Context, endpoint string) types.Observation
}
