// Package bridge implements the HTTP/SSE transport: a session-isolated MCP
// gateway where each client gets its own sandboxed dispatcher behind a
// two-event handshake rendezvous (§4.5).
package bridge

import (
	"time"

	"github.com/ahma-mcp/ahma-mcp-go/internal/adapter"
	"github.com/ahma-mcp/ahma-mcp-go/internal/mcpservice"
	"github.com/ahma-mcp/ahma-mcp-go/internal/operation"
	"github.com/ahma-mcp/ahma-mcp-go/internal/registry"
	"github.com/ahma-mcp/ahma-mcp-go/internal/sandbox"
	"github.com/ahma-mcp/ahma-mcp-go/internal/shellpool"
)

// Root mirrors an MCP roots/list entry: a client-declared filesystem scope.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// TerminationReason names why a session was torn down, surfaced in logs and
// in the 403 body sent for a post-lock roots change.
type TerminationReason string

const (
	ReasonClientClosed          TerminationReason = "client_closed"
	ReasonRootsChangedAfterLock TerminationReason = "roots_changed_after_lock"
	ReasonHandshakeTimeout      TerminationReason = "handshake_timeout"
	ReasonShutdown              TerminationReason = "server_shutdown"
)

// SharedResources are the process-wide singletons every session's dispatcher
// is built from. Only the sandbox scope differs per session.
type SharedResources struct {
	Registry *registry.Registry
	Shells   *shellpool.Manager
	Ops      *operation.Monitor
	Spiller  adapter.Spiller

	ServerDefaultSync    bool
	ServerDefaultTimeout time.Duration

	// DefaultScope seeds each session's sandbox before roots/list locks it
	// down to the client-declared scopes.
	DefaultScope string
	NoTempFiles  bool
	SandboxMode  sandbox.Mode
}

func (sr SharedResources) newSessionService() (*mcpservice.Service, *sandbox.Sandbox, error) {
	scope := sr.DefaultScope
	scopes := []string{}
	if scope != "" {
		scopes = []string{scope}
	}
	sb, err := sandbox.New(scopes, sr.SandboxMode, sr.NoTempFiles)
	if err != nil {
		return nil, nil, err
	}
	dispatcher := &adapter.Dispatcher{
		Sandbox:              sb,
		Shells:               sr.Shells,
		Ops:                  sr.Ops,
		Spiller:              sr.Spiller,
		ServerDefaultSync:    sr.ServerDefaultSync,
		ServerDefaultTimeout: sr.ServerDefaultTimeout,
	}
	svc := &mcpservice.Service{Registry: sr.Registry, Dispatcher: dispatcher, Ops: sr.Ops}
	return svc, sb, nil
}
