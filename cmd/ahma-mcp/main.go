// Command ahma-mcp is the MCP gateway: a sandboxed shell-tool execution
// server speaking either line-delimited JSON-RPC over stdio (single
// client) or JSON-RPC/SSE over HTTP (session-isolated, many clients).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ahma-mcp/ahma-mcp-go/internal/adapter"
	"github.com/ahma-mcp/ahma-mcp-go/internal/bridge"
	"github.com/ahma-mcp/ahma-mcp-go/internal/config"
	"github.com/ahma-mcp/ahma-mcp-go/internal/logging"
	"github.com/ahma-mcp/ahma-mcp-go/internal/mcpservice"
	"github.com/ahma-mcp/ahma-mcp-go/internal/operation"
	"github.com/ahma-mcp/ahma-mcp-go/internal/registry"
	"github.com/ahma-mcp/ahma-mcp-go/internal/sandbox"
	"github.com/ahma-mcp/ahma-mcp-go/internal/shellpool"
	"github.com/ahma-mcp/ahma-mcp-go/internal/stdio"
)

var mainLog = logging.ForComponent(logging.CompConfig)

// scopeFlags accumulates repeated --sandbox-scope flags.
type scopeFlags []string

func (s *scopeFlags) String() string { return strings.Join(*s, ",") }
func (s *scopeFlags) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var (
		mode                 string
		httpPort             int
		toolsDir             string
		scopes               scopeFlags
		noTempFiles          bool
		sync                 bool
		handshakeTimeoutSecs uint64
		logToStderr          bool
		configPath           string
		bundled              config.BundledTools
	)

	fs := flag.NewFlagSet("ahma-mcp", flag.ExitOnError)
	fs.StringVar(&mode, "mode", "stdio", "transport: stdio|http")
	fs.IntVar(&httpPort, "http-port", 8731, "HTTP listen port (mode=http)")
	fs.StringVar(&toolsDir, "tools-dir", "", "directory of JSON tool config files")
	fs.Var(&scopes, "sandbox-scope", "filesystem scope the sandbox accepts (repeatable)")
	fs.BoolVar(&noTempFiles, "no-temp-files", false, "reject paths under system temp directories even inside scope")
	fs.BoolVar(&sync, "sync", false, "force synchronous execution as the server default")
	fs.Uint64Var(&handshakeTimeoutSecs, "handshake-timeout-secs", 0, "HTTP bridge handshake timeout in seconds")
	fs.BoolVar(&logToStderr, "log-to-stderr", false, "additionally tee logs to stderr")
	fs.StringVar(&configPath, "config", "", "optional TOML file of server defaults (default: ~/.config/ahma-mcp/config.toml)")
	fs.BoolVar(&bundled.Rust, "rust", false, "enable the bundled cargo tool config")
	fs.BoolVar(&bundled.Git, "git", false, "enable the bundled git tool config")
	fs.BoolVar(&bundled.Gh, "gh", false, "enable the bundled gh tool config")
	fs.BoolVar(&bundled.FileUtils, "fileutils", false, "enable the bundled find/grep/wc tool configs")
	fs.BoolVar(&bundled.Gradle, "gradle", false, "enable the bundled gradle tool config")
	fs.BoolVar(&bundled.Python, "python", false, "enable the bundled python tool config")
	fs.BoolVar(&bundled.Simplify, "simplify", false, "enable the bundled rust-code-analysis tool config")
	_ = fs.Parse(os.Args[1:])

	explicitlySet := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicitlySet[f.Name] = true })

	fileCfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ahma-mcp: "+err.Error())
		os.Exit(1)
	}

	effectiveSync := fileCfg.EffectiveSync(sync, explicitlySet["sync"])
	effectiveHandshakeTimeout := time.Duration(fileCfg.EffectiveHandshakeTimeoutSecs(
		handshakeTimeoutSecs, explicitlySet["handshake-timeout-secs"], uint64(bridge.DefaultHandshakeTimeout/time.Second),
	)) * time.Second
	effectiveScopes := fileCfg.MergeScopes([]string(scopes))
	effectiveBundled := fileCfg.EffectiveBundled(bundled, config.BundledTools{
		Rust: explicitlySet["rust"], Git: explicitlySet["git"], Gh: explicitlySet["gh"],
		FileUtils: explicitlySet["fileutils"], Gradle: explicitlySet["gradle"],
		Python: explicitlySet["python"], Simplify: explicitlySet["simplify"],
	})

	logging.Init(logging.Config{
		LogDir:         logDir(),
		Level:          "info",
		Format:         "json",
		MaxSizeMB:      10,
		MaxBackups:     5,
		MaxAgeDays:     10,
		Compress:       true,
		RingBufferSize: 10 * 1024 * 1024,
		LogToStderr:    logToStderr,
	})

	if toolsDir != "" {
		if err := materializeBundledTools(toolsDir, effectiveBundled); err != nil {
			mainLog.Warn("bundled_tools_materialize_failed", slog.String("error", err.Error()))
		}
	}

	reg, loadErrs := registry.New(registry.DefaultConfig(toolsDir))
	for _, e := range loadErrs {
		mainLog.Warn("tool_config_load_error", slog.String("error", e.Error()))
	}

	shellCfg := shellpool.DefaultConfig()
	shells := shellpool.NewManager(shellCfg)
	ops := operation.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ops.StartSweeper(ctx)
	shells.StartBackgroundTasks(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		shells.ShutdownAll()
		os.Exit(0)
	}()

	sandboxMode := sandbox.ModeStrict

	switch mode {
	case "stdio":
		runStdio(ctx, reg, shells, ops, effectiveScopes, sandboxMode, noTempFiles, effectiveSync)
	case "http":
		runHTTP(reg, shells, ops, effectiveScopes, sandboxMode, noTempFiles, effectiveSync, httpPort, effectiveHandshakeTimeout)
	default:
		fmt.Fprintf(os.Stderr, "ahma-mcp: unknown --mode %q (want stdio|http)\n", mode)
		os.Exit(1)
	}
}

func logDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ahma-mcp")
}

func runStdio(ctx context.Context, reg *registry.Registry, shells *shellpool.Manager, ops *operation.Monitor,
	scopes []string, mode sandbox.Mode, noTempFiles, serverSync bool,
) {
	sb, err := sandbox.New(scopes, mode, noTempFiles)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ahma-mcp: "+err.Error())
		os.Exit(1)
	}

	dispatcher := &adapter.Dispatcher{
		Sandbox:              sb,
		Shells:               shells,
		Ops:                  ops,
		Spiller:              adapter.TempFileSpiller{},
		ServerDefaultSync:    serverSync,
		ServerDefaultTimeout: 30 * time.Second,
	}

	wd, _ := os.Getwd()
	srv := &stdio.Server{
		Service: &mcpservice.Service{
			Registry:   reg,
			Dispatcher: dispatcher,
			Ops:        ops,
		},
		WorkingDir: wd,
		In:         os.Stdin,
		Out:        os.Stdout,
	}
	if err := srv.Run(ctx); err != nil {
		mainLog.Error("stdio_server_exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func runHTTP(reg *registry.Registry, shells *shellpool.Manager, ops *operation.Monitor,
	scopes []string, mode sandbox.Mode, noTempFiles, serverSync bool, port int, handshakeTimeout time.Duration,
) {
	defaultScope := ""
	if len(scopes) > 0 {
		defaultScope = scopes[0]
	}

	shared := bridge.SharedResources{
		Registry:             reg,
		Shells:               shells,
		Ops:                  ops,
		Spiller:              adapter.TempFileSpiller{},
		ServerDefaultSync:    serverSync,
		ServerDefaultTimeout: 30 * time.Second,
		DefaultScope:         defaultScope,
		NoTempFiles:          noTempFiles,
		SandboxMode:          mode,
	}

	srv := bridge.NewServer(bridge.Config{
		ListenAddr:       fmt.Sprintf("127.0.0.1:%d", port),
		Shared:           shared,
		HandshakeTimeout: handshakeTimeout,
	})

	mainLog.Info("http_server_starting", slog.String("addr", srv.Addr()))
	if err := srv.Start(); err != nil {
		mainLog.Error("http_server_exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
