package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ahma-mcp/ahma-mcp-go/internal/logging"
	"github.com/ahma-mcp/ahma-mcp-go/internal/toolconfig"
)

var registryLog = logging.ForComponent(logging.CompRegistry)

type probeResult struct {
	available bool
	checkedAt time.Time
}

// Registry holds the loaded tool configs plus the synthetic sandboxed_shell
// config, and serves availability probing and schema generation against
// them. It is safe for concurrent use.
type Registry struct {
	cfg Config

	mu    sync.RWMutex
	tools map[string]*toolconfig.ToolConfig

	probeMu    sync.RWMutex
	probes     map[string]probeResult
	probeGroup singleflight.Group
}

// New loads every tool config under cfg.ToolsDir, injects sandboxed_shell,
// and returns the registry plus any per-file load errors (non-fatal: a
// malformed file is skipped, not fatal to startup).
func New(cfg Config) (*Registry, []error) {
	r := &Registry{
		cfg:    cfg,
		probes: make(map[string]probeResult),
	}
	errs := r.reloadLocked()
	return r, errs
}

// reloadLocked re-reads ToolsDir and atomically swaps the tool map. Safe to
// call repeatedly; does not touch the probe cache (a tool's availability
// doesn't change just because its config was reloaded).
func (r *Registry) reloadLocked() []error {
	tools, errs := toolconfig.LoadDir(r.cfg.ToolsDir, r.cfg.Strict)
	tools[SandboxedShellToolName] = sandboxedShellConfig()

	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()

	return errs
}

// Reload re-scans ToolsDir and replaces the tool set.
func (r *Registry) Reload() []error {
	errs := r.reloadLocked()
	if len(errs) > 0 {
		for _, err := range errs {
			registryLog.Warn("reload_error", slog.String("error", err.Error()))
		}
	} else {
		registryLog.Info("reload_ok", slog.Int("tool_count", len(r.tools)))
	}
	return errs
}

// Find returns the config for name, or ok=false if no such tool is loaded.
func (r *Registry) Find(name string) (*toolconfig.ToolConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every loaded tool config, sorted by name.
func (r *Registry) List() []*toolconfig.ToolConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*toolconfig.ToolConfig, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
