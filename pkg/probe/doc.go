/*
Package probe implements bounded-timeout health probes against worker
control endpoints.

A probe answers three questions about a worker in one call: is it
reachable, what is its progress counter (block height), and is it still
bulk-syncing. The answer is a normalized types.Observation; probes never
return errors, because an unreachable node is an expected observation,
not an exceptional condition:

	p := probe.NewJSONRPCProber(5 * time.Second)
	obs := p.Probe(ctx, "http://localhost:8545")
	if !obs.Reachable {
		// node still booting, or gone
	}

JSONRPCProber speaks the Ethereum JSON-RPC shape (eth_blockNumber,
eth_syncing). Other transports only need to satisfy the Prober interface.
*/
package probe
