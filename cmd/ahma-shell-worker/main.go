// Command ahma-shell-worker is the long-lived process a shell pool spawns
// per working directory. It reads framed ShellCommand requests from stdin,
// runs each as a real child process, and writes the matching ShellResponse
// back to stdout. It has no knowledge of sandboxing or tool configuration;
// the caller is expected to have already validated everything it sends.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"time"

	"github.com/ahma-mcp/ahma-mcp-go/internal/shellpool"
)

func main() {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 64*1024), 10*1024*1024)
	out := json.NewEncoder(os.Stdout)

	for in.Scan() {
		var cmd shellpool.ShellCommand
		if err := json.Unmarshal(in.Bytes(), &cmd); err != nil {
			continue
		}
		out.Encode(runOne(cmd))
	}
}

func runOne(sc shellpool.ShellCommand) shellpool.ShellResponse {
	resp := shellpool.ShellResponse{ID: sc.ID}

	if len(sc.Command) == 0 {
		resp.WorkerErr = "empty command"
		resp.ExitCode = -1
		return resp
	}

	timeout := time.Duration(sc.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, sc.Command[0], sc.Command[1:]...)
	if sc.WorkingDir != "" {
		cmd.Dir = sc.WorkingDir
	}

	var stdout, stderr limitedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	resp.DurationMs = time.Since(start).Milliseconds()
	resp.Stdout = stdout.String()
	resp.Stderr = stderr.String()

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		resp.ExitCode = -1
		resp.WorkerErr = "command timed out"
	case runErr == nil:
		resp.ExitCode = 0
	default:
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			resp.ExitCode = exitErr.ExitCode()
		} else {
			resp.ExitCode = -1
			resp.WorkerErr = runErr.Error()
		}
	}

	return resp
}
