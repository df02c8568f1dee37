package registry

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/ahma-mcp/ahma-mcp-go/internal/toolconfig"
)

// IsAvailable runs tool's AvailabilityProbe command (if any) and reports
// whether it exited zero. A tool with no probe configured is always
// available. Results are cached per tool name for cfg.ProbeTTL and
// de-duplicated across concurrent callers via singleflight, so N
// simultaneous tools/list requests during a slow probe issue it once.
func (r *Registry) IsAvailable(ctx context.Context, tool *toolconfig.ToolConfig) (bool, error) {
	if tool.AvailabilityProbe == "" {
		return true, nil
	}

	if cached, ok := r.cachedProbe(tool.Name); ok {
		return cached, nil
	}

	v, err, _ := r.probeGroup.Do(tool.Name, func() (any, error) {
		available := r.runProbe(ctx, tool.AvailabilityProbe)
		r.storeProbe(tool.Name, available)
		return available, nil
	})
	if err != nil {
		return false, &ProbeError{Tool: tool.Name, Err: err}
	}
	return v.(bool), nil
}

func (r *Registry) cachedProbe(name string) (bool, bool) {
	r.probeMu.RLock()
	defer r.probeMu.RUnlock()
	res, ok := r.probes[name]
	if !ok || time.Since(res.checkedAt) > r.cfg.ProbeTTL {
		return false, false
	}
	return res.available, true
}

func (r *Registry) storeProbe(name string, available bool) {
	r.probeMu.Lock()
	defer r.probeMu.Unlock()
	r.probes[name] = probeResult{available: available, checkedAt: time.Now()}
}

// runProbe splits probe on whitespace and runs it with a bounded timeout,
// treating any nonzero exit or spawn failure as unavailable.
func (r *Registry) runProbe(ctx context.Context, probe string) bool {
	fields := strings.Fields(probe)
	if len(fields) == 0 {
		return true
	}

	timeout := r.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, fields[0], fields[1:]...)
	return cmd.Run() == nil
}

// InvalidateProbe drops a tool's cached probe result, forcing the next
// IsAvailable call to re-run it.
func (r *Registry) InvalidateProbe(name string) {
	r.probeMu.Lock()
	defer r.probeMu.Unlock()
	delete(r.probes, name)
}
