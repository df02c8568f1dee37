// Package logmonitor watches the stdout/stderr lines of one running tool
// invocation for severity-triggered conditions, keeping bounded
// last-N-lines context per stream and rate-limiting how often a trigger
// turns into an emitted snapshot (§4.7).
package logmonitor

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahma-mcp/ahma-mcp-go/internal/toolconfig"
)

const ringBufferLines = 100

// Snapshot is emitted the first time a monitored line's severity reaches
// the configured threshold, after the rate limiter admits it.
type Snapshot struct {
	TriggerLine     string   `json:"trigger_line"`
	TriggerLevel    Level    `json:"trigger_level"`
	TriggerIsStderr bool     `json:"trigger_is_stderr"`
	StdoutContext   []string `json:"stdout_context"`
	StderrContext   []string `json:"stderr_context"`
}

// MarshalJSON renders TriggerLevel as its string name rather than its
// underlying int, since the wire format is meant for a client to read.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return json.Marshal(struct {
		alias
		TriggerLevel string `json:"trigger_level"`
	}{alias: alias(s), TriggerLevel: s.TriggerLevel.String()})
}

// Monitor watches one operation's output. All lines are buffered
// regardless of severity or which stream is configured to trigger;
// MonitorStream only gates which stream's lines are tested against the
// severity patterns.
type Monitor struct {
	threshold   Level
	watchStdout bool
	watchStderr bool
	limiter     *rate.Limiter
	stdoutRing  *lineRingBuffer
	stderrRing  *lineRingBuffer
}

// New builds a Monitor from a tool's log_monitor configuration. cfg must
// be non-nil; callers should only construct a Monitor when a config was
// declared for the tool/subcommand being run.
func New(cfg *toolconfig.LogMonitorConfig) *Monitor {
	rateLimitSecs := cfg.RateLimitSecs
	if rateLimitSecs == 0 {
		rateLimitSecs = 60
	}

	watchStdout := cfg.MonitorStream == toolconfig.StreamStdout || cfg.MonitorStream == toolconfig.StreamBoth || cfg.MonitorStream == ""
	watchStderr := cfg.MonitorStream == toolconfig.StreamStderr || cfg.MonitorStream == toolconfig.StreamBoth || cfg.MonitorStream == ""

	return &Monitor{
		threshold:   levelFromConfig(cfg.MonitorLevel),
		watchStdout: watchStdout,
		watchStderr: watchStderr,
		// One token per rate_limit_seconds, refilled instantly at that
		// cadence rather than accruing linearly - a burst of 1 is exactly
		// "at most one snapshot per window".
		limiter:    rate.NewLimiter(rate.Every(time.Duration(rateLimitSecs)*time.Second), 1),
		stdoutRing: newLineRingBuffer(ringBufferLines),
		stderrRing: newLineRingBuffer(ringBufferLines),
	}
}

func levelFromConfig(l toolconfig.LogMonitorLevel) Level {
	if l == "" {
		return LevelError
	}
	return ParseLevel(string(l))
}

// Feed pushes one line from the given stream into its ring buffer and, if
// the stream is monitored and the line's severity is at or above
// threshold and the rate limiter currently has a token, returns a
// Snapshot. Every line, redacted, lands in its ring buffer whether or not
// it triggers.
func (m *Monitor) Feed(stream string, line string) *Snapshot {
	redacted := redactLine(line)
	isStderr := stream == "stderr"

	if isStderr {
		m.stderrRing.push(redacted)
	} else {
		m.stdoutRing.push(redacted)
	}

	monitored := (isStderr && m.watchStderr) || (!isStderr && m.watchStdout)
	if !monitored {
		return nil
	}

	level, matched := detectSeverity(line)
	if !matched || level < m.threshold {
		return nil
	}

	if !m.limiter.Allow() {
		return nil
	}

	return &Snapshot{
		TriggerLine:     redacted,
		TriggerLevel:    level,
		TriggerIsStderr: isStderr,
		StdoutContext:   m.stdoutRing.snapshot(),
		StderrContext:   m.stderrRing.snapshot(),
	}
}

// FeedText splits a captured block of output into lines and feeds each
// through Feed in order, collecting every snapshot emitted along the way
// (the rate limiter keeps this to at most one per configured window
// regardless of how many trigger lines appear in the block).
func (m *Monitor) FeedText(stream string, text string) []*Snapshot {
	if text == "" {
		return nil
	}
	var snapshots []*Snapshot
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if snap := m.Feed(stream, line); snap != nil {
			snapshots = append(snapshots, snap)
		}
	}
	return snapshots
}
