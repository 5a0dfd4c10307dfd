/*
Package log provides structured logging for Shepherd built on zerolog.

Call Init once at process start, then use the package-level helpers or
derive child loggers scoped to a component, instance, or run:

	log.Init(log.Config{Level: log.InfoLevel})
	logger := log.WithComponent("monitor")
	logger.Info().Str("instance", "hoodi-1").Msg("state changed")

Console output (human-readable, RFC3339 timestamps) is the default;
JSONOutput switches to machine-readable JSON lines.
*/
package log
