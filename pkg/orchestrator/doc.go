/*
Package orchestrator ties the monitor together into run cycles. One cycle
optionally pulls and rebuilds the worker source, restarts or adopts the
worker containers, polls the fleet to completion through the scheduler,
then records the outcome: append to the run history, archive the record,
capture worker log tails, and send the webhook notification. Recording and
notification are best effort; source updates and worker restarts are fatal.

Run numbering is recovered from the history file at startup, so the counter
survives process restarts without a separate state file.
*/
package orchestrator
