package mcpservice

import (
	"context"
	"fmt"

	"github.com/ahma-mcp/ahma-mcp-go/internal/adapter"
	"github.com/ahma-mcp/ahma-mcp-go/internal/operation"
)

// status(tools?, operation_id?): §4.6.
func (s *Service) status(args map[string]any) CallResult {
	if opID, ok := stringArg(args, "operation_id"); ok {
		snap, found := s.Ops.Get(opID)
		if !found {
			return CallResult{Text: fmt.Sprintf("operation %q not found", opID)}
		}
		return CallResult{Text: formatSnapshots([]operation.Snapshot{*snap})}
	}

	toolFilter, _ := stringArg(args, "tools")
	snaps := s.Ops.ListMatching(toolFilter)
	if len(snaps) == 0 {
		return CallResult{Text: "no matching operations"}
	}
	return CallResult{Text: formatSnapshots(snaps)}
}

// await(tools?, operation_id?, timeout_seconds?): §4.6.
func (s *Service) await(ctx context.Context, args map[string]any) CallResult {
	if opID, ok := stringArg(args, "operation_id"); ok {
		snap, found := s.Ops.WaitForOperation(ctx, opID)
		if !found {
			return CallResult{Text: fmt.Sprintf("operation %q not found or did not terminate", opID)}
		}
		return CallResult{Text: formatSnapshots([]operation.Snapshot{*snap})}
	}

	toolFilter, _ := stringArg(args, "tools")
	var timeoutSecs *int
	if v, ok := args["timeout_seconds"]; ok {
		if secs, err := toIntSeconds(v); err == nil {
			timeoutSecs = &secs
		}
	}

	snaps := s.Ops.WaitForOperationsAdvanced(ctx, toolFilter, timeoutSecs)
	if len(snaps) == 0 {
		return CallResult{Text: "no matching operations completed"}
	}
	return CallResult{Text: formatSnapshots(snaps)}
}

// cancel(operation_id, reason?): §4.6.
func (s *Service) cancel(args map[string]any) CallResult {
	opID, ok := stringArg(args, "operation_id")
	if !ok {
		return CallResult{Text: (&adapter.ArgumentError{Option: "operation_id", Reason: "required"}).Error(), IsError: true}
	}
	reason, _ := stringArg(args, "reason")

	snap, found := s.Ops.Get(opID)
	if !found {
		return CallResult{Text: fmt.Sprintf("operation %q not found", opID)}
	}
	if snap.State.Terminal() {
		return CallResult{Text: fmt.Sprintf("operation %q is already terminal (%s)", opID, snap.State)}
	}

	if !s.Ops.CancelOperationWithReason(opID, reason) {
		return CallResult{Text: fmt.Sprintf("operation %q is already terminal", opID)}
	}
	return CallResult{Text: fmt.Sprintf("operation %q cancelled", opID)}
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func toIntSeconds(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	default:
		return 0, fmt.Errorf("timeout_seconds must be numeric")
	}
}
