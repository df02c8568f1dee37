// Package registry owns the set of tool configs the Adapter dispatches
// against: loading them from disk, injecting the synthetic sandboxed_shell
// tool, probing availability, generating MCP tool schemas, and watching
// --tools-dir for hot reload.
package registry

import (
	"fmt"
	"time"

	"github.com/ahma-mcp/ahma-mcp-go/internal/toolconfig"
)

// SandboxedShellToolName is the name of the synthetic tool the registry
// injects; its ToolConfig is generated here and cannot be overridden by a
// user config file (toolconfig.Load already rejects the name collision).
const SandboxedShellToolName = "sandboxed_shell"

// SandboxedShellSubcommand is the single subcommand this tool resolves to.
// Its name doubles as the literal -c flag token so BuildArgv's generic
// subTokens handling produces `bash -c <command>` with no special-casing.
const SandboxedShellSubcommand = "-c"

// sandboxedShellConfig builds the synthetic ToolConfig for the
// sandboxed_shell built-in: a single subcommand taking a raw command
// string plus the usual working_directory/execution_mode handling,
// dispatched by running it through bash -c.
func sandboxedShellConfig() *toolconfig.ToolConfig {
	return &toolconfig.ToolConfig{
		Name:        SandboxedShellToolName,
		Command:     "bash",
		Description: "Run a shell command string under the sandbox via bash -c.",
		Subcommands: []toolconfig.SubcommandConfig{
			{
				Name:                SandboxedShellSubcommand,
				PositionalArgs:      []string{"command"},
				PositionalArgsFirst: true,
			},
		},
	}
}

// ProbeError wraps an availability probe's failure reason without
// discarding the underlying process error.
type ProbeError struct {
	Tool string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("registry: availability probe for %q failed: %v", e.Tool, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// UnknownToolError is returned by Find/Registry lookups for a name with no
// matching config.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("registry: unknown tool %q", e.Tool)
}

// Config controls Registry construction.
type Config struct {
	ToolsDir string
	Strict   bool
	ProbeTTL time.Duration
	// ProbeTimeout bounds a single availability probe invocation.
	ProbeTimeout time.Duration
}

func DefaultConfig(toolsDir string) Config {
	return Config{
		ToolsDir:     toolsDir,
		Strict:       true,
		ProbeTTL:     5 * time.Minute,
		ProbeTimeout: 5 * time.Second,
	}
}
