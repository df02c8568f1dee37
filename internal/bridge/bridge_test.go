package bridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahma-mcp/ahma-mcp-go/internal/adapter"
	"github.com/ahma-mcp/ahma-mcp-go/internal/operation"
	"github.com/ahma-mcp/ahma-mcp-go/internal/registry"
	"github.com/ahma-mcp/ahma-mcp-go/internal/sandbox"
	"github.com/ahma-mcp/ahma-mcp-go/internal/shellpool"
)

func newTestServer(t *testing.T, handshakeTimeout time.Duration) (*Server, string) {
	t.Helper()
	toolsDir := t.TempDir()
	workDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(toolsDir, "ok.json"),
		[]byte(`{"name":"ok","command":"true"}`), 0o644))

	reg, errs := registry.New(registry.DefaultConfig(toolsDir))
	require.Empty(t, errs)

	disabled := shellpool.DefaultConfig()
	disabled.Enabled = false

	shared := SharedResources{
		Registry:             reg,
		Shells:               shellpool.NewManager(disabled),
		Ops:                  operation.New(),
		Spiller:              &adapter.TempFileSpiller{},
		ServerDefaultSync:    true,
		ServerDefaultTimeout: 5 * time.Second,
		DefaultScope:         workDir,
		SandboxMode:          sandbox.ModeStrict,
		NoTempFiles:          true,
	}

	srv := NewServer(Config{Shared: shared, HandshakeTimeout: handshakeTimeout})
	return srv, workDir
}
