package shellpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnShellAndExecuteRoundTrip(t *testing.T) {
	cfg := testWorkerConfig(t)
	dir := t.TempDir()

	shell, err := spawnShell(context.Background(), dir, cfg)
	require.NoError(t, err)
	defer shell.Close()

	resp, err := shell.Execute(context.Background(), ShellCommand{
		ID:         "req-1",
		Command:    []string{"echo", "hi"},
		WorkingDir: dir,
		TimeoutMs:  2000,
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.ID)
	assert.Equal(t, 0, resp.ExitCode)
}

func TestHealthCheckPassesForLiveShell(t *testing.T) {
	cfg := testWorkerConfig(t)
	shell, err := spawnShell(context.Background(), t.TempDir(), cfg)
	require.NoError(t, err)
	defer shell.Close()

	assert.True(t, shell.HealthCheck(context.Background()))
}

func TestExecuteTimesOutAndMarksUnhealthy(t *testing.T) {
	cfg := testWorkerConfig(t)
	shell, err := spawnShell(context.Background(), t.TempDir(), cfg)
	require.NoError(t, err)
	defer shell.Close()

	_, err = shell.Execute(context.Background(), ShellCommand{
		ID:         "req-hang",
		Command:    []string{"__hang__"},
		WorkingDir: t.TempDir(),
		TimeoutMs:  50,
	})
	require.Error(t, err)
	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.False(t, shell.IsHealthy())
}

func TestExecuteSurfacesProcessDied(t *testing.T) {
	cfg := testWorkerConfig(t)
	shell, err := spawnShell(context.Background(), t.TempDir(), cfg)
	require.NoError(t, err)
	defer shell.Close()

	_, err = shell.Execute(context.Background(), ShellCommand{
		ID:         "req-crash",
		Command:    []string{"__crash__"},
		WorkingDir: t.TempDir(),
		TimeoutMs:  2000,
	})
	require.Error(t, err)
	var diedErr *ProcessDiedError
	assert.ErrorAs(t, err, &diedErr)
}

func TestIdleSinceUpdatesOnExecute(t *testing.T) {
	cfg := testWorkerConfig(t)
	shell, err := spawnShell(context.Background(), t.TempDir(), cfg)
	require.NoError(t, err)
	defer shell.Close()

	before := shell.IdleSince()
	time.Sleep(5 * time.Millisecond)
	_, err = shell.Execute(context.Background(), ShellCommand{ID: "req-2", Command: []string{"echo"}, TimeoutMs: 2000})
	require.NoError(t, err)
	assert.True(t, shell.IdleSince().After(before))
}
