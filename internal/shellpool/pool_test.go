package shellpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetShellDisabledReturnsNilNil(t *testing.T) {
	cfg := testWorkerConfig(t)
	cfg.Enabled = false
	mgr := NewManager(cfg)

	shell, err := mgr.GetShell(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, shell)
}

func TestGetShellThenReturnShellReusesSameWorker(t *testing.T) {
	cfg := testWorkerConfig(t)
	cfg.ShellsPerDirectory = 2
	cfg.MaxTotalShells = 4
	mgr := NewManager(cfg)
	dir := t.TempDir()

	shell1, err := mgr.GetShell(context.Background(), dir)
	require.NoError(t, err)
	require.NotNil(t, shell1)
	mgr.ReturnShell(shell1)

	shell2, err := mgr.GetShell(context.Background(), dir)
	require.NoError(t, err)
	assert.Same(t, shell1, shell2)

	assert.Equal(t, 1, mgr.Stats().TotalShells)
	mgr.ReturnShell(shell2)
}

func TestGetShellReturnsPoolFullAtGlobalCap(t *testing.T) {
	cfg := testWorkerConfig(t)
	cfg.MaxTotalShells = 1
	mgr := NewManager(cfg)

	s1, err := mgr.GetShell(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, s1)

	_, err = mgr.GetShell(context.Background(), t.TempDir())
	require.Error(t, err)
	var poolFull *PoolFullError
	assert.ErrorAs(t, err, &poolFull)

	mgr.ReturnShell(s1)
}

func TestReturnShellBeyondPerDirectoryCapClosesExcess(t *testing.T) {
	cfg := testWorkerConfig(t)
	cfg.ShellsPerDirectory = 1
	cfg.MaxTotalShells = 5
	mgr := NewManager(cfg)
	dir := t.TempDir()

	s1, err := mgr.GetShell(context.Background(), dir)
	require.NoError(t, err)
	s2, err := mgr.GetShell(context.Background(), dir)
	require.NoError(t, err)

	mgr.ReturnShell(s1)
	mgr.ReturnShell(s2) // exceeds cap of 1, should be closed and released

	assert.Equal(t, 1, mgr.Stats().TotalShells)
}

func TestReturnShellUnhealthyIsClosedNotPooled(t *testing.T) {
	cfg := testWorkerConfig(t)
	mgr := NewManager(cfg)
	dir := t.TempDir()

	shell, err := mgr.GetShell(context.Background(), dir)
	require.NoError(t, err)

	_, _ = shell.Execute(context.Background(), ShellCommand{ID: "x", Command: []string{"__crash__"}, TimeoutMs: 2000})
	assert.False(t, shell.IsHealthy())

	mgr.ReturnShell(shell)
	assert.Equal(t, 0, mgr.Stats().TotalShells)

	shell2, err := mgr.GetShell(context.Background(), dir)
	require.NoError(t, err)
	assert.NotSame(t, shell, shell2)
	mgr.ReturnShell(shell2)
}

func TestCleanupIdlePoolsEvictsStaleShells(t *testing.T) {
	cfg := testWorkerConfig(t)
	cfg.ShellIdleTimeout = 10 * time.Millisecond
	mgr := NewManager(cfg)
	dir := t.TempDir()

	shell, err := mgr.GetShell(context.Background(), dir)
	require.NoError(t, err)
	mgr.ReturnShell(shell)
	assert.Equal(t, 1, mgr.Stats().TotalShells)

	time.Sleep(30 * time.Millisecond)
	mgr.cleanupIdlePools()
	assert.Equal(t, 0, mgr.Stats().TotalShells)
}

func TestShutdownAllEmptiesPools(t *testing.T) {
	cfg := testWorkerConfig(t)
	mgr := NewManager(cfg)
	dir := t.TempDir()

	shell, err := mgr.GetShell(context.Background(), dir)
	require.NoError(t, err)
	mgr.ReturnShell(shell)

	mgr.ShutdownAll()
	assert.Equal(t, 0, mgr.Stats().Directories)
}
