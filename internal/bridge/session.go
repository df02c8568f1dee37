package bridge

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahma-mcp/ahma-mcp-go/internal/logging"
	"github.com/ahma-mcp/ahma-mcp-go/internal/mcpservice"
	"github.com/ahma-mcp/ahma-mcp-go/internal/sandbox"
)

var bridgeLog = logging.ForComponent(logging.CompBridge)

// Session is one client's isolated view of the gateway: its own sandbox
// scopes, its own handshake rendezvous, and a channel carrying
// server-initiated messages (the one roots/list request, and any later
// notifications) out over its SSE stream.
type Session struct {
	ID string

	service *mcpservice.Service
	sandbox *sandbox.Sandbox

	hs handshake

	mu                sync.Mutex
	roots             []Root
	rootsRequestID    string
	sseCh             chan []byte
	sseAttached       bool
	terminated        bool
	terminationReason TerminationReason

	createdAt        time.Time
	lastActivity     time.Time
	handshakeTimeout time.Duration
}

func newSession(svc *mcpservice.Service, sb *sandbox.Sandbox, handshakeTimeout time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:               uuid.NewString(),
		service:          svc,
		sandbox:          sb,
		sseCh:            make(chan []byte, 16),
		createdAt:        now,
		lastActivity:     now,
		handshakeTimeout: handshakeTimeout,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) isTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

func (s *Session) markTerminated(reason TerminationReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.terminated = true
	s.terminationReason = reason
	close(s.sseCh)
}

// handshakeTimedOut reports the elapsed seconds since creation if the
// session is still mid-handshake past its configured timeout.
func (s *Session) handshakeTimedOut() (int, bool) {
	if s.hs.load() == Complete {
		return 0, false
	}
	elapsed := time.Since(s.createdAt)
	if elapsed < s.handshakeTimeout {
		return 0, false
	}
	return int(elapsed.Seconds()), true
}

func (s *Session) isSandboxLocked() bool {
	return s.hs.load() == Complete
}

// markSSEConnected runs the mark_sse_connected transition and, if it
// completes the rendezvous, pushes the session's one roots/list request
// onto the SSE channel.
func (s *Session) markSSEConnected() {
	s.mu.Lock()
	s.sseAttached = true
	s.mu.Unlock()
	if s.hs.markSSEConnected() {
		s.sendRootsListRequest()
	}
}

func (s *Session) markMCPInitialized() {
	if s.hs.markMCPInitialized() {
		s.sendRootsListRequest()
	}
}

func (s *Session) sendRootsListRequest() {
	reqID := "roots-" + uuid.NewString()
	s.mu.Lock()
	s.rootsRequestID = reqID
	s.mu.Unlock()

	idJSON, _ := json.Marshal(reqID)
	env := rpcEnvelope{JSONRPC: "2.0", ID: idJSON, Method: "roots/list"}
	raw, err := json.Marshal(env)
	if err != nil {
		bridgeLog.Error("roots_list_marshal_failed", slog.String("session", s.ID), slog.String("error", err.Error()))
		return
	}
	s.pushSSE(raw)
}

func (s *Session) pushSSE(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	select {
	case s.sseCh <- payload:
	default:
		bridgeLog.Warn("sse_channel_full_dropping_message", slog.String("session", s.ID))
	}
}

// isRootsResponse reports whether id matches the outstanding roots/list
// request, and clears it so a second match (there should never be one) is
// impossible.
func (s *Session) isRootsResponseID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootsRequestID != "" && s.rootsRequestID == id
}

// lockSandbox records the client-declared roots and performs the
// RootsRequested -> Complete transition, applying the scopes to this
// session's sandbox. It returns (true, nil) the first time it locks, and
// (false, nil) if the session was already locked (idempotent replay).
func (s *Session) lockSandbox(roots []Root) (bool, error) {
	if len(roots) == 0 && s.sandbox.Mode() == sandbox.ModeStrict {
		return false, &ErrEmptyRootsRejected{SessionID: s.ID}
	}

	if !s.hs.lock() {
		// Either not yet at RootsRequested (caller bug) or already Complete.
		return false, nil
	}

	scopes := make([]string, 0, len(roots))
	for _, r := range roots {
		scopes = append(scopes, rootToPath(r))
	}
	if err := s.sandbox.UpdateScopes(scopes); err != nil {
		return true, err
	}

	s.mu.Lock()
	s.roots = roots
	s.mu.Unlock()
	return true, nil
}

// handleRootsChanged implements the post-lock refusal: once Complete, any
// further notifications/roots/list_changed terminates the session.
func (s *Session) handleRootsChanged() error {
	if !s.isSandboxLocked() {
		return nil
	}
	s.markTerminated(ReasonRootsChangedAfterLock)
	return &ErrRootsChangedAfterLock{SessionID: s.ID}
}

func rootToPath(r Root) string {
	const filePrefix = "file://"
	if len(r.URI) > len(filePrefix) && r.URI[:len(filePrefix)] == filePrefix {
		return r.URI[len(filePrefix):]
	}
	return r.URI
}
