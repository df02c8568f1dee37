package mcpservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahma-mcp/ahma-mcp-go/internal/adapter"
	"github.com/ahma-mcp/ahma-mcp-go/internal/logging"
	"github.com/ahma-mcp/ahma-mcp-go/internal/registry"
	"github.com/ahma-mcp/ahma-mcp-go/internal/toolconfig"
)

var svcLog = logging.ForComponent(logging.CompMcp)

// CallTool resolves name against the built-ins first, then the registry,
// and dispatches it. workingDir is the caller's requested working
// directory (already subject to sandbox validation inside the Adapter).
func (s *Service) CallTool(ctx context.Context, name string, args map[string]any, workingDir string, callback adapter.OutputCallback) (CallResult, error) {
	switch name {
	case "status":
		return s.status(args), nil
	case "await":
		return s.await(ctx, args), nil
	case "cancel":
		return s.cancel(args), nil
	case registry.SandboxedShellToolName:
		return s.CallSandboxedShell(ctx, args, workingDir, callback)
	}

	tool, ok := s.Registry.Find(name)
	if !ok {
		return CallResult{}, &UnknownToolError{Tool: name}
	}

	if !tool.IsEnabled() {
		return CallResult{Text: (&DisabledToolError{Tool: name, InstallHint: tool.InstallHint}).Error(), IsError: true}, nil
	}
	available, err := s.Registry.IsAvailable(ctx, tool)
	if err != nil {
		svcLog.Warn("availability_probe_error", slog.String("tool", name), slog.String("error", err.Error()))
	}
	if !available {
		return CallResult{Text: (&DisabledToolError{Tool: name, InstallHint: tool.InstallHint}).Error(), IsError: true}, nil
	}

	if len(tool.Sequence) > 0 {
		return s.runSequence(ctx, tool, workingDir, callback), nil
	}

	sub, subTokens, err := resolveSubcommand(tool, args)
	if err != nil {
		return CallResult{}, err
	}

	res, opID, err := s.Dispatcher.Dispatch(ctx, adapter.Request{
		ToolName:   name,
		Tool:       tool,
		SubTokens:  subTokens,
		Sub:        sub,
		Args:       args,
		WorkingDir: workingDir,
		Callback:   callback,
	})
	if err != nil {
		return CallResult{Text: err.Error(), IsError: true}, nil
	}
	if opID != "" {
		return CallResult{OperationID: opID}, nil
	}
	return CallResult{Text: res.Stdout}, nil
}

// resolveSubcommand looks up the reserved "subcommand" argument (a
// space-joined path, e.g. "remote add") against tool's subcommand tree. A
// tool with no subcommand tree at all dispatches with sub=nil.
func resolveSubcommand(tool *toolconfig.ToolConfig, args map[string]any) (*toolconfig.SubcommandConfig, []string, error) {
	if len(tool.Subcommands) == 0 {
		return nil, nil, nil
	}

	raw, _ := args["subcommand"].(string)
	if raw == "" {
		return nil, nil, &adapter.ArgumentError{Option: "subcommand", Reason: "required: tool has subcommands"}
	}

	sub, tokens, ok := tool.FindSubcommand(strings.Fields(raw))
	if !ok {
		return nil, nil, &adapter.ArgumentError{Option: "subcommand", Reason: "no such subcommand path: " + raw}
	}
	return sub, tokens, nil
}

// runSequence runs tool's declared Sequence steps in order, each through
// the same bash -c path the sandboxed_shell built-in uses, stopping at
// the first failing step unless that step is marked ContinueOnError.
// Every step runs synchronously regardless of the tool's own sync default,
// since the next step can't start before the current one's exit code is
// known.
func (s *Service) runSequence(ctx context.Context, tool *toolconfig.ToolConfig, workingDir string, callback adapter.OutputCallback) CallResult {
	shellTool, ok := s.Registry.Find(registry.SandboxedShellToolName)
	if !ok {
		return CallResult{Text: (&UnknownToolError{Tool: registry.SandboxedShellToolName}).Error(), IsError: true}
	}
	sub, tokens, _ := shellTool.FindSubcommand([]string{registry.SandboxedShellSubcommand})

	var out strings.Builder
	for _, step := range tool.Sequence {
		dir := workingDir
		if step.WorkingDirectory != "" {
			dir = step.WorkingDirectory
		}

		res, _, err := s.Dispatcher.Dispatch(ctx, adapter.Request{
			ToolName:  tool.Name + "." + step.Name,
			Tool:      shellTool,
			SubTokens: tokens,
			Sub:       sub,
			Args: map[string]any{
				"command":        step.Command,
				"execution_mode": "sync",
			},
			WorkingDir: dir,
			Callback:   callback,
		})

		fmt.Fprintf(&out, "[%s] ", step.Name)
		if err != nil {
			out.WriteString(err.Error())
			if res.Stderr != "" {
				out.WriteString("\n")
				out.WriteString(res.Stderr)
			}
			out.WriteString("\n")
			if !step.ContinueOnError {
				return CallResult{Text: out.String(), IsError: true}
			}
			continue
		}
		out.WriteString(res.Stdout)
		out.WriteString("\n")
	}
	return CallResult{Text: out.String()}
}

// CallSandboxedShell dispatches the synthetic sandboxed_shell built-in,
// always resolving to its single "-c" subcommand regardless of any
// caller-supplied subcommand argument.
func (s *Service) CallSandboxedShell(ctx context.Context, args map[string]any, workingDir string, callback adapter.OutputCallback) (CallResult, error) {
	tool, ok := s.Registry.Find(registry.SandboxedShellToolName)
	if !ok {
		return CallResult{}, &UnknownToolError{Tool: registry.SandboxedShellToolName}
	}
	sub, tokens, _ := tool.FindSubcommand([]string{registry.SandboxedShellSubcommand})

	res, opID, err := s.Dispatcher.Dispatch(ctx, adapter.Request{
		ToolName:   registry.SandboxedShellToolName,
		Tool:       tool,
		SubTokens:  tokens,
		Sub:        sub,
		Args:       args,
		WorkingDir: workingDir,
		Callback:   callback,
	})
	if err != nil {
		return CallResult{Text: err.Error(), IsError: true}, nil
	}
	if opID != "" {
		return CallResult{OperationID: opID}, nil
	}
	return CallResult{Text: res.Stdout}, nil
}
