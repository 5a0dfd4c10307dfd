/*
Package history persists closed run cycles.

Two stores cooperate: FileStore appends each run to a human-readable text
log and recovers the monotonic run counter by scanning it, while
BoltArchive keeps the same records as JSON in a bbolt database for
programmatic access. The text log is the source of truth for the counter;
the archive is best effort.
*/
package history
