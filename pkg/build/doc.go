/*
Package build updates and rebuilds the monitored worker between runs. The
orchestrator uses it when auto-update is enabled: pull the configured
branch, rebuild, and abort the run if either step fails.
*/
package build
