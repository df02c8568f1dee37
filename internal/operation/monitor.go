package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// waitCeiling bounds how long a single WaitForOperation call blocks on the
// completion notifier before giving up, regardless of the operation's own
// timeout — a generous internal ceiling per §4.2.
const waitCeiling = 300 * time.Second

// advancedWaitDefault and advancedWaitClamp bound
// WaitForOperationsAdvanced's timeout argument.
const (
	advancedWaitDefault = 240 * time.Second
	advancedWaitMin     = 1 * time.Second
	advancedWaitMax     = 1800 * time.Second
)

// historyRetryAttempts/historyRetryDelay absorb the race between the
// notifier firing and the terminal operation landing in history: the
// notifier is woken strictly after the history insert (the invariant this
// package maintains), but a waiter can still observe the wake a few
// scheduler ticks before its own map read sees the insert.
const (
	historyRetryAttempts = 10
	historyRetryDelay    = 10 * time.Millisecond
)

// Monitor is the single source of truth for the state of every async
// operation. The zero value is not usable; construct with New.
type Monitor struct {
	mu      sync.RWMutex
	active  map[string]*Operation
	history map[string]*Operation

	historyLimit int // 0 = unbounded (default; matches the source's behavior)
	historyOrder []string

	log *slog.Logger

	sweepInterval time.Duration
	stopSweep     context.CancelFunc
	sweepDone     chan struct{}
}

// Option configures a Monitor at construction time.
type Option func(*Monitor)

// WithHistoryLimit bounds the number of terminal operations retained.
// Eviction is oldest-first once the limit is exceeded. Zero (the default)
// means unbounded retention, matching the source's behavior — an open
// question flagged in §9 that this repo resolves as opt-in.
func WithHistoryLimit(n int) Option {
	return func(m *Monitor) { m.historyLimit = n }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// New creates a Monitor with empty active/history maps.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		active:        make(map[string]*Operation),
		history:       make(map[string]*Operation),
		sweepInterval: 1 * time.Second,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewOperation constructs a Pending Operation bound to a cancellable
// context derived from parent. The returned context is what the executing
// goroutine should observe for cancellation and what fires when the
// timeout sweeper decides the operation has overrun.
func NewOperation(parent context.Context, id, toolName, description string, timeout time.Duration) (*Operation, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	op := &Operation{
		ID:              id,
		ToolName:        toolName,
		Description:     description,
		State:           StatePending,
		StartTime:       time.Now(),
		TimeoutDuration: timeout,
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	return op, ctx
}

// AddOperation registers a new Pending operation in the active map. It is
// an error to add an operation that is not Pending or whose id already
// exists in either map.
func (m *Monitor) AddOperation(op *Operation) error {
	if op.State != StatePending {
		return fmt.Errorf("operation %s: AddOperation requires Pending state, got %s", op.ID, op.State)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[op.ID]; exists {
		return fmt.Errorf("operation %s already active", op.ID)
	}
	if _, exists := m.history[op.ID]; exists {
		return fmt.Errorf("operation %s already in history", op.ID)
	}
	m.active[op.ID] = op
	return nil
}

// UpdateStatus transitions an active operation to newState. Non-terminal
// updates mutate the operation in place. Terminal updates set EndTime,
// remove the operation from the active map, insert it into history, and
// only then close its completion notifier — preserving the ordering
// invariant that a waiter woken by the notifier always finds the terminal
// snapshot already in history.
//
// Updating to the same terminal state twice is a no-op on the second call
// (the operation is no longer active, so there is nothing to transition).
func (m *Monitor) UpdateStatus(id string, newState State, result json.RawMessage) error {
	m.mu.Lock()
	op, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		if _, inHistory := m.history[id]; inHistory {
			return nil // already terminal; second call is a no-op
		}
		return fmt.Errorf("operation %s not found", id)
	}

	op.State = newState
	if result != nil {
		op.Result = result
	}

	if !newState.Terminal() {
		m.mu.Unlock()
		return nil
	}

	now := time.Now()
	op.EndTime = &now
	delete(m.active, id)
	m.history[id] = op
	m.historyOrder = append(m.historyOrder, id)
	m.evictHistoryLocked()
	m.mu.Unlock()

	close(op.done)
	return nil
}

func (m *Monitor) evictHistoryLocked() {
	if m.historyLimit <= 0 {
		return
	}
	for len(m.historyOrder) > m.historyLimit {
		oldest := m.historyOrder[0]
		m.historyOrder = m.historyOrder[1:]
		delete(m.history, oldest)
	}
}

// cancelResult is the result payload for a Cancelled or TimedOut
// transition.
type cancelResult struct {
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason,omitempty"`
}

// CancelOperationWithReason transitions a non-terminal active operation to
// Cancelled, recording the reason in its result and cancelling its
// context. Returns false for unknown or already-terminal ids — repeated
// cancellation of the same id is therefore idempotent from the caller's
// perspective (first call cancels, every subsequent call returns false).
func (m *Monitor) CancelOperationWithReason(id string, reason string) bool {
	m.mu.Lock()
	op, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	op.State = StateCancelled
	op.Result, _ = json.Marshal(cancelResult{Cancelled: true, Reason: reason})
	now := time.Now()
	op.EndTime = &now
	delete(m.active, id)
	m.history[id] = op
	m.historyOrder = append(m.historyOrder, id)
	m.evictHistoryLocked()
	m.mu.Unlock()

	op.cancel()
	close(op.done)
	return true
}

// WaitForOperation blocks until id reaches a terminal state (or the
// internal ceiling elapses), returning its terminal snapshot. If id is
// already terminal, it returns immediately. Never returns a non-terminal
// snapshot.
func (m *Monitor) WaitForOperation(ctx context.Context, id string) (*Snapshot, bool) {
	m.mu.Lock()
	if op, ok := m.history[id]; ok {
		m.mu.Unlock()
		snap := op.snapshot()
		return &snap, true
	}
	op, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	if op.FirstWaitTime == nil {
		now := time.Now()
		op.FirstWaitTime = &now
	}
	done := op.done
	m.mu.Unlock()

	select {
	case <-done:
	case <-time.After(waitCeiling):
	case <-ctx.Done():
		return nil, false
	}

	for attempt := 0; attempt < historyRetryAttempts; attempt++ {
		m.mu.RLock()
		if histOp, ok := m.history[id]; ok {
			m.mu.RUnlock()
			snap := histOp.snapshot()
			return &snap, true
		}
		m.mu.RUnlock()
		time.Sleep(historyRetryDelay)
	}
	return nil, false
}

// WaitForOperationsAdvanced waits for every active operation whose tool
// name matches one of toolFilter's comma-separated, case-insensitive
// prefixes (or every active operation, if toolFilter is empty) to drain,
// returning their terminal snapshots plus any already-terminal matches.
// Emits warning-level log records at 50/75/90% of the timeout budget.
func (m *Monitor) WaitForOperationsAdvanced(ctx context.Context, toolFilter string, timeoutSeconds *int) []Snapshot {
	timeout := advancedWaitDefault
	if timeoutSeconds != nil {
		timeout = time.Duration(*timeoutSeconds) * time.Second
		if timeout < advancedWaitMin {
			timeout = advancedWaitMin
		}
		if timeout > advancedWaitMax {
			timeout = advancedWaitMax
		}
	}
	prefixes := parsePrefixes(toolFilter)

	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	warned := map[int]bool{}
	checkWarnings := func() {
		elapsed := time.Since(deadline.Add(-timeout))
		for _, pct := range []int{50, 75, 90} {
			if warned[pct] {
				continue
			}
			if elapsed >= time.Duration(float64(timeout)*float64(pct)/100.0) {
				warned[pct] = true
				m.log.Warn("wait_for_operations_advanced budget consumed",
					slog.Int("percent", pct), slog.String("tool_filter", toolFilter))
			}
		}
	}

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		m.mu.RLock()
		stillActive := 0
		for _, op := range m.active {
			if matchesPrefixes(op.ToolName, prefixes) {
				stillActive++
			}
		}
		m.mu.RUnlock()

		if stillActive == 0 {
			return m.collectMatching(prefixes)
		}

		select {
		case <-ctx.Done():
			return m.collectMatching(prefixes)
		case <-ticker.C:
			checkWarnings()
		}
	}
}

func (m *Monitor) collectMatching(prefixes []string) []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Snapshot
	for _, op := range m.history {
		if matchesPrefixes(op.ToolName, prefixes) {
			out = append(out, op.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func parsePrefixes(filter string) []string {
	if strings.TrimSpace(filter) == "" {
		return nil
	}
	parts := strings.Split(filter, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func matchesPrefixes(toolName string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	lower := strings.ToLower(toolName)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// StartSweeper launches the background timeout sweeper (1s cadence): any
// active operation running longer than its TimeoutDuration is transitioned
// to TimedOut. Call Stop to halt it.
func (m *Monitor) StartSweeper(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.stopSweep = cancel
	m.sweepDone = make(chan struct{})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(m.sweepDone)
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				m.sweepOnce()
			}
		}
	})
}

func (m *Monitor) sweepOnce() {
	now := time.Now()
	var timedOut []*Operation
	m.mu.RLock()
	for _, op := range m.active {
		if op.TimeoutDuration > 0 && now.Sub(op.StartTime) > op.TimeoutDuration {
			timedOut = append(timedOut, op)
		}
	}
	m.mu.RUnlock()

	for _, op := range timedOut {
		elapsed := now.Sub(op.StartTime)
		reason := fmt.Sprintf("timed out after %s (limit %s)", elapsed.Round(time.Millisecond), op.TimeoutDuration)
		m.timeOut(op.ID, reason)
	}
}

func (m *Monitor) timeOut(id, reason string) {
	m.mu.Lock()
	op, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	op.State = StateTimedOut
	op.Result, _ = json.Marshal(cancelResult{Cancelled: false, Reason: reason})
	now := time.Now()
	op.EndTime = &now
	delete(m.active, id)
	m.history[id] = op
	m.historyOrder = append(m.historyOrder, id)
	m.evictHistoryLocked()
	m.mu.Unlock()

	op.cancel()
	close(op.done)
}

// Stop halts the background sweeper, if running, and waits for it to exit.
func (m *Monitor) Stop() {
	if m.stopSweep != nil {
		m.stopSweep()
		<-m.sweepDone
	}
}

// ShutdownSummary reports the monitor's state at shutdown time.
type ShutdownSummary struct {
	TotalActive int        `json:"total_active"`
	Operations  []Snapshot `json:"operations"`
}

// GetShutdownSummary reports every still-active operation.
func (m *Monitor) GetShutdownSummary() ShutdownSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ops := make([]Snapshot, 0, len(m.active))
	for _, op := range m.active {
		ops = append(ops, op.snapshot())
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].StartTime.Before(ops[j].StartTime) })
	return ShutdownSummary{TotalActive: len(ops), Operations: ops}
}

// Get returns the current snapshot of id, searching active then history.
func (m *Monitor) Get(id string) (*Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if op, ok := m.active[id]; ok {
		snap := op.snapshot()
		return &snap, true
	}
	if op, ok := m.history[id]; ok {
		snap := op.snapshot()
		return &snap, true
	}
	return nil, false
}

// ListMatching returns active+history snapshots whose tool name matches
// the comma-separated prefix filter (or all, if empty), newest first.
func (m *Monitor) ListMatching(toolFilter string) []Snapshot {
	prefixes := parsePrefixes(toolFilter)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Snapshot
	for _, op := range m.active {
		if matchesPrefixes(op.ToolName, prefixes) {
			out = append(out, op.snapshot())
		}
	}
	for _, op := range m.history {
		if matchesPrefixes(op.ToolName, prefixes) {
			out = append(out, op.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}
