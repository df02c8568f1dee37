// Package toolconfig defines the JSON-driven tool/subcommand/option schema
// that the Adapter and ToolRegistry consume. Loading tool definitions from
// disk and watching them for changes is the job of an external config
// loader; this package only owns the shape of the data and a minimal
// strict-mode loader good enough to drive the rest of the gateway.
package toolconfig

import "encoding/json"

// Synchronicity is a tri-state override: a node can force synchronous or
// asynchronous execution, or leave the decision to its parent/server
// default.
type Synchronicity int

const (
	SyncInherit Synchronicity = iota
	SyncForceSync
	SyncForceAsync
)

// UnmarshalJSON accepts a bare boolean (true = force-sync, false = force-async)
// as well as the string forms "sync"/"async"/"inherit", matching the
// tri-state behavior described by the tool config schema. A missing key
// unmarshals to the zero value (SyncInherit) because json.Unmarshal never
// calls this method for an absent field.
func (s *Synchronicity) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*s = SyncForceSync
		} else {
			*s = SyncForceAsync
		}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "sync", "force_sync":
		*s = SyncForceSync
	case "async", "force_async":
		*s = SyncForceAsync
	default:
		*s = SyncInherit
	}
	return nil
}

func (s Synchronicity) MarshalJSON() ([]byte, error) {
	switch s {
	case SyncForceSync:
		return json.Marshal("sync")
	case SyncForceAsync:
		return json.Marshal("async")
	default:
		return json.Marshal("inherit")
	}
}

// OptionType is the CommandOption type tag.
type OptionType string

const (
	OptionBoolean OptionType = "boolean"
	OptionString  OptionType = "string"
	OptionInteger OptionType = "integer"
	OptionNumber  OptionType = "number"
	OptionArray   OptionType = "array"
)

// OptionFormat triggers extra validation on a string-shaped value.
type OptionFormat string

const (
	FormatNone OptionFormat = ""
	FormatPath OptionFormat = "path"
)

// CommandOption describes one flag accepted by a tool or subcommand.
type CommandOption struct {
	Name        string         `json:"name"`
	Alias       string         `json:"alias,omitempty"`
	Type        OptionType     `json:"type"`
	Required    bool           `json:"required,omitempty"`
	Format      OptionFormat   `json:"format,omitempty"`
	FileArg     bool           `json:"file_arg,omitempty"`
	FileFlag    string         `json:"file_flag,omitempty"`
	Items       *CommandOption `json:"items,omitempty"`
	Description string         `json:"description,omitempty"`
}

// LogMonitorLevel is the minimum severity that triggers a snapshot.
type LogMonitorLevel string

const (
	LevelError LogMonitorLevel = "error"
	LevelWarn  LogMonitorLevel = "warn"
	LevelInfo  LogMonitorLevel = "info"
	LevelDebug LogMonitorLevel = "debug"
	LevelTrace LogMonitorLevel = "trace"
)

// MonitorStream selects which stream(s) a LogMonitor watches for trigger
// patterns; output is always buffered on both regardless of this setting.
type MonitorStream string

const (
	StreamStdout MonitorStream = "stdout"
	StreamStderr MonitorStream = "stderr"
	StreamBoth   MonitorStream = "both"
)

// LogMonitorConfig configures per-operation log scanning (§4.7).
type LogMonitorConfig struct {
	MonitorLevel  LogMonitorLevel `json:"monitor_level"`
	MonitorStream MonitorStream   `json:"monitor_stream"`
	RateLimitSecs uint64          `json:"rate_limit_seconds"`
}

// SequenceStep is one named step of a tool's linear sequence (a
// supplemented feature carried over from the original source's
// ahma_mcp/src/config.rs): each step has its own command template, runs in
// declared order, and the sequence stops at the first failing step unless
// marked ContinueOnError.
type SequenceStep struct {
	Name             string `json:"name"`
	Command          string `json:"command"`
	WorkingDirectory string `json:"working_directory,omitempty"`
	ContinueOnError  bool   `json:"continue_on_error,omitempty"`
}

// SubcommandConfig is one node of a tool's subcommand tree. The schema
// used for argv construction lives on the leaf the caller actually
// invokes; Synchronous and Timeout are independent per node and inherit
// from the parent tool when left at their zero values.
type SubcommandConfig struct {
	Name                string             `json:"name"`
	Options             []CommandOption    `json:"options,omitempty"`
	PositionalArgs      []string           `json:"positional_args,omitempty"`
	PositionalArgsFirst bool               `json:"positional_args_first,omitempty"`
	Subcommands         []SubcommandConfig `json:"subcommands,omitempty"`
	Synchronous         Synchronicity      `json:"synchronous,omitempty"`
	TimeoutSeconds      uint64             `json:"timeout_seconds,omitempty"`
	LogMonitor          *LogMonitorConfig  `json:"log_monitor,omitempty"`
}

// ToolConfig is the root of a tool definition, one JSON document per file
// under --tools-dir.
type ToolConfig struct {
	Name              string             `json:"name"`
	Command           string             `json:"command"`
	Description       string             `json:"description,omitempty"`
	Subcommands       []SubcommandConfig `json:"subcommands,omitempty"`
	Synchronous       Synchronicity      `json:"synchronous,omitempty"`
	TimeoutSeconds    uint64             `json:"timeout_seconds,omitempty"`
	AvailabilityProbe string             `json:"availability_probe,omitempty"`
	InstallHint       string             `json:"install_hint,omitempty"`
	Enabled           *bool              `json:"enabled,omitempty"`
	Sequence          []SequenceStep     `json:"sequence,omitempty"`
	LogMonitor        *LogMonitorConfig  `json:"log_monitor,omitempty"`
}

// IsEnabled reports whether the tool is enabled; absent means enabled.
func (t *ToolConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// EffectiveTimeout resolves the subcommand's own timeout, falling back to
// the tool's, falling back to serverDefault.
func (sc *SubcommandConfig) EffectiveTimeout(tool *ToolConfig, serverDefault uint64) uint64 {
	if sc != nil && sc.TimeoutSeconds > 0 {
		return sc.TimeoutSeconds
	}
	if tool != nil && tool.TimeoutSeconds > 0 {
		return tool.TimeoutSeconds
	}
	return serverDefault
}

// EffectiveLogMonitor resolves the subcommand's own log_monitor config,
// falling back to the tool's. Returns nil if neither declares one, meaning
// the operation runs unmonitored.
func (sc *SubcommandConfig) EffectiveLogMonitor(tool *ToolConfig) *LogMonitorConfig {
	if sc != nil && sc.LogMonitor != nil {
		return sc.LogMonitor
	}
	if tool != nil {
		return tool.LogMonitor
	}
	return nil
}

// EffectiveSynchronicity resolves the tri-state inheritance chain:
// subcommand overrides tool overrides server default.
func EffectiveSynchronicity(sub Synchronicity, tool Synchronicity, serverDefaultSync bool) bool {
	if sub != SyncInherit {
		return sub == SyncForceSync
	}
	if tool != SyncInherit {
		return tool == SyncForceSync
	}
	return serverDefaultSync
}

// FindSubcommand walks a dotted/space path of subcommand names (as
// compiled from nesting) and returns the leaf node plus the full token
// path used to build argv base tokens.
func (t *ToolConfig) FindSubcommand(path []string) (*SubcommandConfig, []string, bool) {
	if len(path) == 0 {
		return nil, nil, false
	}
	var cur *SubcommandConfig
	var tokens []string
	list := t.Subcommands
	for _, name := range path {
		found := false
		for i := range list {
			if list[i].Name == name {
				cur = &list[i]
				tokens = append(tokens, name)
				list = list[i].Subcommands
				found = true
				break
			}
		}
		if !found {
			return nil, nil, false
		}
	}
	return cur, tokens, true
}
