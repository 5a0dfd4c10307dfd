/*
Package metrics defines the Prometheus instrumentation for the monitor:
instance state gauges, probe and transition counters, run outcomes, and
sync/run duration histograms. Collectors are registered at init time and
served through Handler.
*/
package metrics
