package history

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/types"
)

// runLinePattern matches the header line of one recorded run
var runLinePattern = regexp.MustCompile(`(?m)^run #(\d+)\b`)

// FileStore appends run records to a human-readable text log and recovers
// the run counter from it. The file is the durable source of the counter:
// records are never rewritten.
type FileStore struct {
	path string
}

// NewFileStore creates a store over the given log path. The file is created
// on first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the log file path
func (s *FileStore) Path() string {
	return s.path
}

// NextRunCount scans the log for the highest recorded run number and
// returns one past it. A missing or unreadable log starts the counter at 1.
func (s *FileStore) NextRunCount() int {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read run history, starting counter at 1")
		}
		return 1
	}

	highest := 0
	for _, match := range runLinePattern.FindAllStringSubmatch(string(data), -1) {
		n, err := strconv.Atoi(match[1])
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

// Append writes one closed run to the log in a single write. The record is
// formatted as a header line followed by one indented line per instance.
func (s *FileStore) Append(record types.RunRecord) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatRecord(record)); err != nil {
		return fmt.Errorf("failed to append run history: %w", err)
	}
	return nil
}

func formatRecord(record types.RunRecord) string {
	var b strings.Builder

	outcome := "failed"
	if record.AllSucceeded() {
		outcome = "success"
	}

	fmt.Fprintf(&b, "run #%d id=%s started=%s duration=%s outcome=%s",
		record.Count,
		record.ID,
		record.StartedAt.UTC().Format(time.RFC3339),
		record.Duration.Round(time.Second),
		outcome,
	)
	if record.Commit != "" {
		fmt.Fprintf(&b, " commit=%s", record.Commit)
	}
	b.WriteByte('\n')

	for _, inst := range record.Instances {
		fmt.Fprintf(&b, "  %s: %s block=%d", inst.Name, inst.State, inst.LastProgress)
		if inst.SyncDuration > 0 {
			fmt.Fprintf(&b, " synced_in=%s", inst.SyncDuration.Round(time.Second))
		}
		if inst.Error != "" {
			fmt.Fprintf(&b, " error=%q", inst.Error)
		}
		b.WriteByte('\n')
	}

	return b.String()
}
