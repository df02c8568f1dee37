// Package mcpservice implements McpService (§4.6): the built-in tools
// (status, await, cancel, sandboxed_shell) plus the call_tool pipeline that
// resolves an ordinary tool name against the registry, checks it is
// enabled and available, and dispatches it through the Adapter.
package mcpservice

import (
	"fmt"

	"github.com/ahma-mcp/ahma-mcp-go/internal/adapter"
	"github.com/ahma-mcp/ahma-mcp-go/internal/operation"
	"github.com/ahma-mcp/ahma-mcp-go/internal/registry"
)

// Service wires the registry, dispatcher, and operation monitor together
// behind the single call_tool entrypoint every transport (stdio, HTTP
// bridge) calls into.
type Service struct {
	Registry   *registry.Registry
	Dispatcher *adapter.Dispatcher
	Ops        *operation.Monitor
}

// CallResult is the outcome of one CallTool invocation: either inline
// text content (sync dispatch, or a built-in's formatted reply) or an
// operation id for a caller to poll/await (async dispatch).
type CallResult struct {
	Text        string
	IsError     bool
	OperationID string
}

// DisabledToolError is returned (as a refusal CallResult, not a Go error)
// when a tool is disabled by config or failed its availability probe.
type DisabledToolError struct {
	Tool        string
	InstallHint string
}

func (e *DisabledToolError) Error() string {
	if e.InstallHint != "" {
		return fmt.Sprintf("tool %q is disabled: %s", e.Tool, e.InstallHint)
	}
	return fmt.Sprintf("tool %q is disabled", e.Tool)
}

// UnknownToolError means the requested name matches no registry entry and
// no built-in.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("mcpservice: unknown tool %q", e.Tool)
}
