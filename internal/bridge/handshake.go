package bridge

import "sync/atomic"

// HandshakeState tracks the rendezvous between the two handshake events: the
// client attaching its SSE stream and the client sending
// notifications/initialized. Whichever event completes the rendezvous is
// responsible for sending the session's one and only roots/list request, so
// the transition table is encoded as a set of compare-and-swap moves rather
// than a lock.
type HandshakeState uint32

const (
	AwaitingBoth HandshakeState = iota
	AwaitingSseOnly
	AwaitingMcpOnly
	RootsRequested
	Complete
)

func handshakeStateFromU32(v uint32) HandshakeState {
	if v > uint32(Complete) {
		return AwaitingBoth
	}
	return HandshakeState(v)
}

func (s HandshakeState) String() string {
	switch s {
	case AwaitingBoth:
		return "awaiting_both"
	case AwaitingSseOnly:
		return "awaiting_sse_only"
	case AwaitingMcpOnly:
		return "awaiting_mcp_only"
	case RootsRequested:
		return "roots_requested"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// sseConnected reports whether this state implies the SSE stream has
// attached.
func (s HandshakeState) sseConnected() bool {
	return s == AwaitingSseOnly || s == RootsRequested || s == Complete
}

// mcpInitialized reports whether this state implies notifications/initialized
// has been received.
func (s HandshakeState) mcpInitialized() bool {
	return s == AwaitingMcpOnly || s == RootsRequested || s == Complete
}

// handshake is the atomic holder for a session's HandshakeState.
type handshake struct {
	v atomic.Uint32
}

func (h *handshake) load() HandshakeState {
	return handshakeStateFromU32(h.v.Load())
}

// markSSEConnected performs the mark_sse_connected transition. It returns
// true exactly when this call is the one that completes the rendezvous and
// must therefore send roots/list.
func (h *handshake) markSSEConnected() bool {
	for {
		current := handshakeStateFromU32(h.v.Load())
		var next HandshakeState
		var sends bool
		switch current {
		case AwaitingBoth:
			next, sends = AwaitingSseOnly, false
		case AwaitingMcpOnly:
			next, sends = RootsRequested, true
		default:
			return false
		}
		if h.v.CompareAndSwap(uint32(current), uint32(next)) {
			return sends
		}
	}
}

// markMCPInitialized performs the mark_mcp_initialized transition. It
// returns true exactly when this call completes the rendezvous.
func (h *handshake) markMCPInitialized() bool {
	for {
		current := handshakeStateFromU32(h.v.Load())
		var next HandshakeState
		var sends bool
		switch current {
		case AwaitingBoth:
			next, sends = AwaitingMcpOnly, false
		case AwaitingSseOnly:
			next, sends = RootsRequested, true
		default:
			return false
		}
		if h.v.CompareAndSwap(uint32(current), uint32(next)) {
			return sends
		}
	}
}

// lock performs the RootsRequested -> Complete transition. It returns true
// only if this call performed the transition; a false return with a nil
// error means the session was already Complete.
func (h *handshake) lock() bool {
	return h.v.CompareAndSwap(uint32(RootsRequested), uint32(Complete))
}
