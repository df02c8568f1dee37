package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahma-mcp/ahma-mcp-go/internal/operation"
	"github.com/ahma-mcp/ahma-mcp-go/internal/sandbox"
	"github.com/ahma-mcp/ahma-mcp-go/internal/shellpool"
	"github.com/ahma-mcp/ahma-mcp-go/internal/toolconfig"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
	dir := t.TempDir()
	sb, err := sandbox.New([]string{dir}, sandbox.ModeStrict, true)
	require.NoError(t, err)

	disabled := shellpool.DefaultConfig()
	disabled.Enabled = false

	return &Dispatcher{
		Sandbox:              sb,
		Shells:               shellpool.NewManager(disabled),
		Ops:                  operation.New(),
		Spiller:              &TempFileSpiller{},
		ServerDefaultSync:    true,
		ServerDefaultTimeout: 5 * time.Second,
	}, dir
}

func TestResolveExecutionModeExplicitWins(t *testing.T) {
	tool := &toolconfig.ToolConfig{Synchronous: toolconfig.SyncInherit}
	sub := &toolconfig.SubcommandConfig{Synchronous: toolconfig.SyncInherit}

	assert.True(t, resolveExecutionMode(map[string]any{"execution_mode": "sync"}, sub, tool, false))
	assert.False(t, resolveExecutionMode(map[string]any{"execution_mode": "async"}, sub, tool, true))
}

func TestResolveExecutionModeFallsBackThroughChain(t *testing.T) {
	tool := &toolconfig.ToolConfig{Synchronous: toolconfig.SyncInherit}
	sub := &toolconfig.SubcommandConfig{Synchronous: toolconfig.SyncInherit}
	assert.Equal(t, true, resolveExecutionMode(nil, sub, tool, true))
	assert.Equal(t, false, resolveExecutionMode(nil, sub, tool, false))
}

func TestClampTimeoutCeiling(t *testing.T) {
	assert.Equal(t, maxCallTimeout, clampTimeout(0))
	assert.Equal(t, maxCallTimeout, clampTimeout(-time.Second))
	assert.Equal(t, maxCallTimeout, clampTimeout(time.Hour))
	assert.Equal(t, 5*time.Second, clampTimeout(5*time.Second))
}

func TestDispatchSyncSuccess(t *testing.T) {
	d, dir := newTestDispatcher(t)
	tool := &toolconfig.ToolConfig{Command: "true", Synchronous: toolconfig.SyncForceSync}
	sub := &toolconfig.SubcommandConfig{}

	res, opID, err := d.Dispatch(context.Background(), Request{
		ToolName: "true", Tool: tool, Sub: sub, WorkingDir: dir,
	})
	require.NoError(t, err)
	assert.Empty(t, opID)
	assert.Equal(t, 0, res.ExitCode)
}

func TestDispatchSyncNonZeroExitSurfacesExecutionFailedError(t *testing.T) {
	d, dir := newTestDispatcher(t)
	tool := &toolconfig.ToolConfig{Command: "false", Synchronous: toolconfig.SyncForceSync}
	sub := &toolconfig.SubcommandConfig{}

	_, _, err := d.Dispatch(context.Background(), Request{
		ToolName: "false", Tool: tool, Sub: sub, WorkingDir: dir,
	})
	require.Error(t, err)
	var execErr *ExecutionFailedError
	require.ErrorAs(t, err, &execErr)
	assert.NotEqual(t, 0, execErr.ExitCode)
}

func TestDispatchAsyncReturnsOperationIDAndCompletes(t *testing.T) {
	d, dir := newTestDispatcher(t)
	tool := &toolconfig.ToolConfig{Command: "true", Synchronous: toolconfig.SyncForceAsync}
	sub := &toolconfig.SubcommandConfig{}

	res, opID, err := d.Dispatch(context.Background(), Request{
		ToolName: "true", Tool: tool, Sub: sub, WorkingDir: dir,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, opID)
	assert.Equal(t, Result{}, res)

	snap, ok := d.Ops.WaitForOperation(context.Background(), opID)
	require.True(t, ok)
	assert.Equal(t, operation.StateCompleted, snap.State)
}

func TestDispatchAsyncFailureTransitionsToFailed(t *testing.T) {
	d, dir := newTestDispatcher(t)
	tool := &toolconfig.ToolConfig{Command: "false", Synchronous: toolconfig.SyncForceAsync}
	sub := &toolconfig.SubcommandConfig{}

	_, opID, err := d.Dispatch(context.Background(), Request{
		ToolName: "false", Tool: tool, Sub: sub, WorkingDir: dir,
	})
	require.NoError(t, err)
	require.NotEmpty(t, opID)

	snap, ok := d.Ops.WaitForOperation(context.Background(), opID)
	require.True(t, ok)
	assert.Equal(t, operation.StateFailed, snap.State)
}

func TestDispatchAsyncWithLogMonitorEmitsSnapshotOnTriggerLine(t *testing.T) {
	d, dir := newTestDispatcher(t)
	tool := &toolconfig.ToolConfig{
		Command:     "sh",
		Synchronous: toolconfig.SyncForceAsync,
		LogMonitor: &toolconfig.LogMonitorConfig{
			MonitorLevel:  toolconfig.LevelError,
			MonitorStream: toolconfig.StreamBoth,
			RateLimitSecs: 60,
		},
	}
	sub := &toolconfig.SubcommandConfig{
		PositionalArgs:      []string{"cmd"},
		PositionalArgsFirst: true,
	}

	type event struct {
		opID, stream, line string
	}
	events := make(chan event, 4)

	_, opID, err := d.Dispatch(context.Background(), Request{
		ToolName: "sh", Tool: tool, SubTokens: []string{"-c"}, Sub: sub, WorkingDir: dir,
		Args: map[string]any{"cmd": "echo error: boom 1>&2"},
		Callback: func(opID, stream, line string) {
			events <- event{opID, stream, line}
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, opID)

	snap, ok := d.Ops.WaitForOperation(context.Background(), opID)
	require.True(t, ok)
	assert.Equal(t, operation.StateCompleted, snap.State)

	var sawSnapshot bool
	close(events)
	for ev := range events {
		if ev.stream == "log_snapshot" {
			sawSnapshot = true
			assert.Contains(t, ev.line, "error: boom")
		}
	}
	assert.True(t, sawSnapshot, "expected a log_snapshot event from the configured monitor")
}

func TestNextOperationIDIsUniqueAndPrefixed(t *testing.T) {
	d, _ := newTestDispatcher(t)
	a := d.NextOperationID()
	b := d.NextOperationID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "op_1_")
	assert.Contains(t, b, "op_2_")
}
