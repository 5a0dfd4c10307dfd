package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/types"
)

// stateGlyphs mark each lifecycle state in the status snapshot
var stateGlyphs = map[types.InstanceState]string{
	types.InstanceWaiting:    "⏳",
	types.InstanceSyncing:    "🔄",
	types.InstanceSynced:     "✅",
	types.InstanceProcessing: "📦",
	types.InstanceSuccess:    "🎉",
	types.InstanceFailed:     "❌",
}

// FormatDuration renders a duration as "1h 23m 45s", dropping leading zero
// units. Sub-second durations render as "0s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// Render produces a point-in-time textual snapshot of the fleet. Pure: it
// reads the instances and never mutates them. processingWindow is the
// configured observation window, used to show time remaining.
func Render(now time.Time, instances []*types.Instance, processingWindow time.Duration) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Fleet status at %s ===\n", now.Format("15:04:05"))

	for _, inst := range instances {
		glyph := stateGlyphs[inst.State]
		elapsed := now.Sub(inst.StateEnteredAt)

		var detail string
		switch inst.State {
		case types.InstanceWaiting:
			detail = fmt.Sprintf("waiting for node (%s)", FormatDuration(elapsed))
		case types.InstanceSyncing:
			if inst.HasProgress {
				detail = fmt.Sprintf("syncing, block %d (%s elapsed)", inst.LastProgress, FormatDuration(elapsed))
			} else {
				detail = fmt.Sprintf("syncing (%s elapsed)", FormatDuration(elapsed))
			}
		case types.InstanceSynced:
			detail = fmt.Sprintf("synced in %s", FormatDuration(inst.SyncDuration))
		case types.InstanceProcessing:
			remaining := processingWindow - elapsed
			detail = fmt.Sprintf("processing, block %d (%s remaining)", inst.LastProgress, FormatDuration(remaining))
		case types.InstanceSuccess:
			detail = fmt.Sprintf("success, synced in %s", FormatDuration(inst.SyncDuration))
		case types.InstanceFailed:
			detail = fmt.Sprintf("failed: %s", inst.Error)
		}

		fmt.Fprintf(&b, "%s %-12s %s\n", glyph, inst.Name, detail)
	}

	return b.String()
}
