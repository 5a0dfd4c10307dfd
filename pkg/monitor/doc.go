/*
Package monitor implements the instance lifecycle state machine and the
fleet polling loop.

Each instance moves through waiting -> syncing -> synced -> processing and
ends in success or failed. A Machine owns one instance and applies
observations to it; the Scheduler polls every machine from a single loop on
a fixed tick, in a fixed order, and renders status snapshots.

Failure detection covers four causes: the sync timeout (too long in
syncing), unresponsiveness (probes failing for longer than the
unresponsive timeout, latched from the first failed probe), stalls (no
forward progress for longer than the stall timeout while processing), and
a processing window that ends without the block height moving past its
baseline. When an unresponsive worker's process turns out to have exited,
the failure reason is enriched with the exit code and any matched
known-failure log pattern.
*/
package monitor
