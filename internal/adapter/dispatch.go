package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ahma-mcp/ahma-mcp-go/internal/logging"
	"github.com/ahma-mcp/ahma-mcp-go/internal/logmonitor"
	"github.com/ahma-mcp/ahma-mcp-go/internal/operation"
	"github.com/ahma-mcp/ahma-mcp-go/internal/sandbox"
	"github.com/ahma-mcp/ahma-mcp-go/internal/shellpool"
	"github.com/ahma-mcp/ahma-mcp-go/internal/toolconfig"
)

var dispatchLog = logging.ForComponent(logging.CompAdapter)

// maxCallTimeout is the hard ceiling on a single tool call's timeout,
// regardless of what the tool config or the caller's timeout_seconds ask
// for.
const maxCallTimeout = 600 * time.Second

// OutputCallback streams one output line from a running async operation,
// tagged by stream.
type OutputCallback func(operationID string, stream string, line string)

// Dispatcher turns a resolved tool+subcommand+args into a running command,
// either synchronously (blocking until exit) or asynchronously (returning
// an operation id immediately and running the command in the background).
type Dispatcher struct {
	Sandbox *sandbox.Sandbox
	Shells  *shellpool.Manager
	Ops     *operation.Monitor
	Spiller Spiller

	ServerDefaultSync    bool
	ServerDefaultTimeout time.Duration

	opCounter uint64
}

// Request bundles everything Dispatch needs to resolve one tool call.
type Request struct {
	ToolName   string
	Tool       *toolconfig.ToolConfig
	SubTokens  []string
	Sub        *toolconfig.SubcommandConfig
	Args       map[string]any
	WorkingDir string
	Callback   OutputCallback
}

// Result is what a synchronous dispatch returns to the caller.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// NextOperationID mints a unique id of the form op_<monotonic>_<random>.
func (d *Dispatcher) NextOperationID() string {
	n := atomic.AddUint64(&d.opCounter, 1)
	return fmt.Sprintf("op_%d_%s", n, uuid.NewString()[:8])
}

// resolveExecutionMode honors, in order: an explicit execution_mode
// argument, the subcommand's Synchronous override, the tool's, then the
// server default.
func resolveExecutionMode(args map[string]any, sub *toolconfig.SubcommandConfig, tool *toolconfig.ToolConfig, serverDefaultSync bool) bool {
	if raw, ok := args["execution_mode"]; ok {
		if s, ok := raw.(string); ok {
			switch s {
			case "sync", "synchronous":
				return true
			case "async", "asynchronous":
				return false
			}
		}
	}
	subSync := toolconfig.SyncInherit
	if sub != nil {
		subSync = sub.Synchronous
	}
	return toolconfig.EffectiveSynchronicity(subSync, tool.Synchronous, serverDefaultSync)
}

func (d *Dispatcher) resolveTimeout(req Request) time.Duration {
	if raw, ok := req.Args["timeout_seconds"]; ok {
		if secs, err := toSeconds(raw); err == nil {
			return clampTimeout(time.Duration(secs) * time.Second)
		}
	}
	serverDefaultSecs := uint64(d.ServerDefaultTimeout / time.Second)
	effective := req.Sub.EffectiveTimeout(req.Tool, serverDefaultSecs)
	return clampTimeout(time.Duration(effective) * time.Second)
}

func clampTimeout(d time.Duration) time.Duration {
	if d <= 0 || d > maxCallTimeout {
		return maxCallTimeout
	}
	return d
}

func toSeconds(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("timeout_seconds must be numeric")
	}
}

// Dispatch resolves execution mode and either runs req synchronously,
// returning its Result, or registers an async Operation and returns its id
// immediately ("" result, non-empty id).
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, string, error) {
	argv, err := BuildArgv(req.Tool, req.SubTokens, req.Sub, req.Args, req.WorkingDir, d.Spiller)
	if err != nil {
		return Result{}, "", err
	}

	workDir, err := d.Sandbox.ValidatePath(req.WorkingDir)
	if err != nil {
		return Result{}, "", err
	}

	timeout := d.resolveTimeout(req)
	isSync := resolveExecutionMode(req.Args, req.Sub, req.Tool, d.ServerDefaultSync)

	if isSync {
		res, err := d.runOnce(ctx, argv, workDir, timeout, "")
		return res, "", err
	}

	opID := d.NextOperationID()
	op, opCtx := operation.NewOperation(ctx, opID, req.ToolName, req.ToolName, timeout)
	if err := d.Ops.AddOperation(op); err != nil {
		return Result{}, "", err
	}

	var monitor *logmonitor.Monitor
	if cfg := req.Sub.EffectiveLogMonitor(req.Tool); cfg != nil {
		monitor = logmonitor.New(cfg)
	}

	go d.runAsync(opCtx, opID, argv, workDir, timeout, req.Callback, monitor)

	return Result{}, opID, nil
}

// runOnce executes argv to completion and returns its combined result.
// Exit code nonzero is surfaced as ExecutionFailedError with stderr
// appended to the message context.
func (d *Dispatcher) runOnce(ctx context.Context, argv []string, workDir string, timeout time.Duration, opID string) (Result, error) {
	shell, err := d.Shells.GetShell(ctx, workDir)
	if err != nil {
		return Result{}, err
	}

	cmd := shellpool.ShellCommand{
		ID:         firstNonEmpty(opID, uuid.NewString()),
		Command:    argv,
		WorkingDir: workDir,
		TimeoutMs:  timeout.Milliseconds(),
	}

	var resp shellpool.ShellResponse
	if shell != nil {
		resp, err = shell.Execute(ctx, cmd)
		d.Shells.ReturnShell(shell)
	} else {
		resp, err = d.runOneShot(ctx, argv, workDir, timeout)
	}
	if err != nil {
		return Result{}, err
	}

	if resp.ExitCode != 0 {
		return Result{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}, &ExecutionFailedError{ExitCode: resp.ExitCode, Stderr: resp.Stderr}
	}
	return Result{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: 0}, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// reportLogSnapshots feeds a completed operation's captured output through
// monitor and forwards any triggered snapshot to cb, tagged "log_snapshot"
// so a caller can tell it apart from the plain "stdout" output line.
func (d *Dispatcher) reportLogSnapshots(opID string, cb OutputCallback, monitor *logmonitor.Monitor, res Result) {
	snapshots := monitor.FeedText("stdout", res.Stdout)
	snapshots = append(snapshots, monitor.FeedText("stderr", res.Stderr)...)
	if cb == nil {
		return
	}
	for _, snap := range snapshots {
		raw, err := json.Marshal(snap)
		if err != nil {
			dispatchLog.Warn("log_snapshot_marshal_failed", slog.String("operation_id", opID), slog.String("error", err.Error()))
			continue
		}
		cb(opID, "log_snapshot", string(raw))
	}
}

func (d *Dispatcher) runAsync(ctx context.Context, opID string, argv []string, workDir string, timeout time.Duration, cb OutputCallback, monitor *logmonitor.Monitor) {
	res, err := d.runOnce(ctx, argv, workDir, timeout, opID)

	select {
	case <-ctx.Done():
		d.Ops.CancelOperationWithReason(opID, "cancelled")
		return
	default:
	}

	if cb != nil && res.Stdout != "" {
		cb(opID, "stdout", res.Stdout)
	}

	if monitor != nil {
		d.reportLogSnapshots(opID, cb, monitor, res)
	}

	if err != nil {
		result, _ := json.Marshal(map[string]any{"error": err.Error(), "exit_code": res.ExitCode})
		dispatchLog.Warn("async_command_failed", slog.String("operation_id", opID), slog.String("error", err.Error()))
		_ = d.Ops.UpdateStatus(opID, operation.StateFailed, result)
		return
	}

	result, _ := json.Marshal(map[string]any{"stdout": res.Stdout, "exit_code": res.ExitCode})
	_ = d.Ops.UpdateStatus(opID, operation.StateCompleted, result)
}
