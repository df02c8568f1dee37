package mcpservice

import (
	"fmt"
	"strings"

	"github.com/ahma-mcp/ahma-mcp-go/internal/operation"
)

// formatSnapshots renders operation snapshots as a client-readable summary,
// one line per operation: id, tool, state, and result payload when
// terminal.
func formatSnapshots(snaps []operation.Snapshot) string {
	var b strings.Builder
	for i, snap := range snaps {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s [%s] %s", snap.ID, snap.ToolName, snap.State)
		if snap.State.Terminal() && len(snap.Result) > 0 {
			fmt.Fprintf(&b, ": %s", string(snap.Result))
		}
	}
	return b.String()
}
