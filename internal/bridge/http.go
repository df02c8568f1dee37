package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Config configures the HTTP/SSE bridge server.
type Config struct {
	ListenAddr       string
	Shared           SharedResources
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
}

// Server is the HTTP/SSE MCP gateway: one /mcp endpoint multiplexed by
// method (POST for requests/responses, GET with an SSE Accept header for
// the server-initiated stream) plus /health.
type Server struct {
	cfg        Config
	httpServer *http.Server
	manager    *Manager
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8731"
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}

	s := &Server{
		cfg:     cfg,
		manager: NewManager(cfg.Shared, cfg.HandshakeTimeout),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) Addr() string { return s.httpServer.Addr }

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start runs the sweep loop and blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	go s.sweepLoop()
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr == nil {
			return nil
		} else {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
	}
	return err
}

func (s *Server) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-ticker.C:
			s.manager.Sweep(s.cfg.IdleTimeout)
		}
	}
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				bridgeLog.Error("panic", slog.String("recover", fmt.Sprintf("%v", rec)), slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleMCPGet(w, r)
	case http.MethodPost:
		s.handleMCPPost(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMCPGet(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		writeJSONError(w, http.StatusBadRequest, -32600, "GET /mcp requires Accept: text/event-stream", "")
		return
	}
	sessionID := r.Header.Get(mcpSessionIDHeader)
	sess, ok := s.manager.Get(sessionID)
	if !ok {
		writeJSONError(w, http.StatusForbidden, -32600, "Session not found or terminated", "")
		return
	}
	s.streamSession(w, r, sess)
}

func (s *Server) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	var env rpcEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSONError(w, http.StatusBadRequest, -32700, "invalid JSON body", "")
		return
	}

	sessionID := r.Header.Get(mcpSessionIDHeader)

	if env.Method == "initialize" && sessionID == "" {
		s.handleInitializeRequest(w, env)
		return
	}

	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, -32600, "Missing Mcp-Session-Id header. Send initialize request first.", "")
		return
	}

	s.handleExistingSession(w, r, sessionID, env)
}

func (s *Server) handleInitializeRequest(w http.ResponseWriter, env rpcEnvelope) {
	sess, err := s.manager.CreateSession()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, -32603, "Failed to create session: "+err.Error(), "")
		return
	}

	result, rpcErr := sess.handleInitialize(env.Params)
	if rpcErr != nil {
		s.manager.Terminate(sess.ID, ReasonClientClosed)
		writeJSONError(w, http.StatusInternalServerError, rpcErr.Code, rpcErr.Message, "")
		return
	}

	resp := rpcEnvelope{JSONRPC: "2.0", ID: env.ID, Result: result}
	raw, _ := json.Marshal(resp)
	writeJSONResult(w, raw, sess.ID)
}

func (s *Server) handleExistingSession(w http.ResponseWriter, r *http.Request, sessionID string, env rpcEnvelope) {
	sess, ok := s.manager.Get(sessionID)
	if !ok {
		writeJSONError(w, http.StatusForbidden, -32600, "Session not found or terminated", "")
		return
	}
	sess.touch()

	if env.Method == "notifications/roots/list_changed" {
		if sess.isSandboxLocked() {
			s.manager.Terminate(sessionID, ReasonRootsChangedAfterLock)
			writeJSONError(w, http.StatusForbidden, -32600, "Session terminated: roots change not allowed", "")
			return
		}
		writeJSONResult(w, []byte("{}"), sessionID)
		return
	}

	if env.Method == "tools/call" && !sess.isSandboxLocked() {
		if secs, timedOut := sess.handshakeTimedOut(); timedOut {
			msg := fmt.Sprintf(
				"Handshake timeout after %ds - sandbox not locked. Ensure the client opens the SSE "+
					"stream, sends notifications/initialized, and responds to roots/list.", secs)
			writeJSONError(w, http.StatusGatewayTimeout, codeHandshakeTimeout, msg, sessionID)
			return
		}
		writeJSONError(w, http.StatusConflict, codeSandboxInitializing,
			"Sandbox initializing from client roots - retry tools/call after roots/list completes", sessionID)
		return
	}

	isClientResponse := env.Method == "" && env.ID != nil && (env.Result != nil || env.Error != nil)
	if isClientResponse {
		s.handleClientResponse(w, sess, env)
		return
	}

	if env.Method == "notifications/initialized" {
		sess.markMCPInitialized()
		writeJSONResult(w, []byte("{}"), sessionID)
		return
	}

	s.forwardRequest(w, r, sess, env)
}

func (s *Server) handleClientResponse(w http.ResponseWriter, sess *Session, env rpcEnvelope) {
	id := idString(env.ID)
	if sess.isRootsResponseID(id) && env.Result != nil {
		var parsed struct {
			Roots []Root `json:"roots"`
		}
		if err := json.Unmarshal(env.Result, &parsed); err == nil {
			if _, err := sess.lockSandbox(parsed.Roots); err != nil {
				bridgeLog.Warn("sandbox_lock_failed", slog.String("session", sess.ID), slog.String("error", err.Error()))
				var emptyRoots *ErrEmptyRootsRejected
				if errors.As(err, &emptyRoots) {
					writeJSONError(w, http.StatusBadRequest, -32602,
						"roots/list returned no roots - a strict sandbox requires at least one workspace root", sess.ID)
					return
				}
			}
		}
	}
	writeJSONResult(w, []byte("{}"), sess.ID)
}

func (s *Server) forwardRequest(w http.ResponseWriter, r *http.Request, sess *Session, env rpcEnvelope) {
	var result json.RawMessage
	var rpcErr *rpcError

	switch env.Method {
	case "tools/list":
		result, rpcErr = sess.handleToolsList()
	case "tools/call":
		result, rpcErr = sess.handleToolsCall(r.Context(), env.Params)
	default:
		rpcErr = &rpcError{Code: -32601, Message: "method not found: " + env.Method}
	}

	if rpcErr != nil {
		writeJSONError(w, statusForRPCCode(rpcErr.Code), rpcErr.Code, rpcErr.Message, sess.ID)
		return
	}

	resp := rpcEnvelope{JSONRPC: "2.0", ID: env.ID, Result: result}
	raw, _ := json.Marshal(resp)
	writeJSONResult(w, raw, sess.ID)
}

func statusForRPCCode(code int) int {
	switch code {
	case -32600, -32601, -32602, -32700:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func idString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
