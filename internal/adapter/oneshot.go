package adapter

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/ahma-mcp/ahma-mcp-go/internal/shellpool"
)

// runOneShot runs argv directly through the Sandbox, without a pooled
// worker. This is the fallthrough path when the shell pool is disabled
// (Shells.GetShell returns nil, nil).
func (d *Dispatcher) runOneShot(ctx context.Context, argv []string, workDir string, timeout time.Duration) (shellpool.ShellResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, err := d.Sandbox.CreateCommand(ctx, argv[0], argv[1:], workDir)
	if err != nil {
		return shellpool.ShellResponse{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	resp := shellpool.ShellResponse{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	switch {
	case runErr == nil:
		resp.ExitCode = 0
	default:
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			resp.ExitCode = exitErr.ExitCode()
		} else {
			return resp, &shellpool.ProcessDiedError{Dir: workDir, Err: runErr}
		}
	}
	return resp, nil
}
