package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ahma-mcp/ahma-mcp-go/internal/logging"
	"github.com/ahma-mcp/ahma-mcp-go/internal/mcpservice"
)

var stdioLog = logging.ForComponent(logging.CompStdio)

const maxLineBytes = 16 * 1024 * 1024

// Server is the single-client stdio transport: one line in, one line out,
// tools/call requests dispatched off the read loop so a slow tool doesn't
// block the client from sending status/cancel for it.
type Server struct {
	Service    *mcpservice.Service
	WorkingDir string
	In         io.Reader
	Out        io.Writer

	writeMu sync.Mutex
}

// Run reads line-delimited JSON-RPC requests from In until EOF or ctx is
// cancelled, dispatching each to completion concurrently.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.In)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var wg sync.WaitGroup
	defer wg.Wait()

	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}

		var env rpcEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			s.writeError(nil, -32700, "invalid JSON: "+err.Error())
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatch(ctx, env)
		}()
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, env rpcEnvelope) {
	var result json.RawMessage
	var rpcErr *rpcError

	switch env.Method {
	case "initialize":
		result, rpcErr = s.handleInitialize()
	case "notifications/initialized", "notifications/cancelled":
		return // notifications get no reply
	case "tools/list":
		result, rpcErr = s.handleToolsList(ctx)
	case "tools/call":
		result, rpcErr = s.handleToolsCall(ctx, env.Params)
	default:
		if env.isNotification() {
			return
		}
		rpcErr = &rpcError{Code: -32601, Message: "method not found: " + env.Method}
	}

	if env.isNotification() {
		return
	}
	if rpcErr != nil {
		s.writeError(env.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	s.writeResult(env.ID, result)
}

func (s *Server) writeResult(id json.RawMessage, result json.RawMessage) {
	s.writeEnvelope(rpcEnvelope{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(id json.RawMessage, code int, message string) {
	s.writeEnvelope(rpcEnvelope{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (s *Server) writeEnvelope(env rpcEnvelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		stdioLog.Error("response_marshal_failed", slog.String("error", err.Error()))
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, _ = s.Out.Write(raw)
	_, _ = s.Out.Write([]byte("\n"))
}
