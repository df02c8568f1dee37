package shellpool

import (
	"bufio"
	"encoding/json"
	"os"
	"os/exec"
	"testing"
	"time"
)

// TestHelperProcess is not a real test. It is invoked as a subprocess (via
// testWorkerConfig below) to stand in for the ahma-shell-worker binary,
// following the same re-exec-self pattern os/exec's own tests use. It reads
// framed ShellCommand lines and echoes a ShellResponse, optionally honoring
// a deliberate hang or crash requested via the command for timeout/
// process-died tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_SHELLPOOL_HELPER") != "1" {
		return
	}
	defer os.Exit(0)

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 64*1024), 10*1024*1024)
	out := json.NewEncoder(os.Stdout)

	for in.Scan() {
		var cmd ShellCommand
		if err := json.Unmarshal(in.Bytes(), &cmd); err != nil {
			continue
		}
		if len(cmd.Command) > 0 && cmd.Command[0] == "__hang__" {
			time.Sleep(time.Hour)
			continue
		}
		if len(cmd.Command) > 0 && cmd.Command[0] == "__crash__" {
			os.Exit(1)
		}
		resp := ShellResponse{ID: cmd.ID, ExitCode: 0, Stdout: "ok", DurationMs: 1}
		if err := out.Encode(resp); err != nil {
			return
		}
	}
}

// testWorkerConfig returns a Config whose worker is this test binary,
// re-invoked in helper-process mode.
func testWorkerConfig(t *testing.T) Config {
	t.Helper()
	self, err := exec.LookPath(os.Args[0])
	if err != nil {
		self = os.Args[0]
	}
	cfg := DefaultConfig()
	cfg.WorkerPath = self
	cfg.WorkerArgs = []string{"-test.run=TestHelperProcess"}
	cfg.WorkerEnv = []string{"GO_WANT_SHELLPOOL_HELPER=1"}
	cfg.ShellSpawnTimeout = 5 * time.Second
	cfg.CommandTimeout = 2 * time.Second
	return cfg
}
