package toolconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReservedToolNames are the built-in tools a user config may never shadow
// (§4.6, §9 "Reserved tool names"). The synthetic sandboxed_shell config is
// injected by the registry loader and is the sole authority on its shape.
var ReservedToolNames = map[string]bool{
	"await":           true,
	"status":          true,
	"cancel":          true,
	"sandboxed_shell": true,
}

// rawToolConfig mirrors ToolConfig but accepts the documented alias
// force_synchronous for synchronous, per §6 ("aliases: force_synchronous
// for synchronous"). Decoded separately so the alias never leaks into the
// canonical struct's JSON tag set.
type rawToolConfig struct {
	ToolConfig
	ForceSynchronous *Synchronicity `json:"force_synchronous,omitempty"`
}

// Load parses a single tool config file. In strict mode (the default),
// unknown top-level keys are rejected so a typo'd field fails loudly
// instead of being silently ignored.
func Load(path string, strict bool) (*ToolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tool config %s: %w", path, err)
	}

	if strict {
		if err := rejectUnknownKeys(data, toolConfigKnownKeys); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	var raw rawToolConfig
	dec := json.NewDecoder(strings.NewReader(string(data)))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing tool config %s: %w", path, err)
	}

	cfg := raw.ToolConfig
	if raw.ForceSynchronous != nil {
		cfg.Synchronous = *raw.ForceSynchronous
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("%s: tool config missing required field \"name\"", path)
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("%s: tool config missing required field \"command\"", path)
	}
	if ReservedToolNames[cfg.Name] {
		return nil, fmt.Errorf("%s: tool name %q collides with a built-in tool", path, cfg.Name)
	}
	return &cfg, nil
}

// LoadDir loads every *.json file directly under dir (one tool per file),
// skipping files that fail to parse but collecting their errors so the
// caller can decide whether to abort startup.
func LoadDir(dir string, strict bool) (map[string]*ToolConfig, []error) {
	tools := make(map[string]*ToolConfig)
	var errs []error

	entries, err := os.ReadDir(dir)
	if err != nil {
		return tools, []error{fmt.Errorf("reading tools dir %s: %w", dir, err)}
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		cfg, err := Load(path, strict)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if existing, ok := tools[cfg.Name]; ok {
			errs = append(errs, fmt.Errorf("%s: duplicate tool name %q (already defined by a prior config; existing command %q)", path, cfg.Name, existing.Command))
			continue
		}
		tools[cfg.Name] = cfg
	}
	return tools, errs
}

var toolConfigKnownKeys = map[string]bool{
	"name": true, "command": true, "description": true, "subcommands": true,
	"synchronous": true, "force_synchronous": true, "timeout_seconds": true,
	"availability_probe": true, "install_hint": true, "enabled": true,
	"sequence": true, "log_monitor": true,
}

// rejectUnknownKeys validates only the top-level object keys; nested
// subcommand/option trees are schema-validated structurally by the Go
// decoder itself (unknown nested keys are comparatively low-risk typos in
// optional metadata, so strict mode focuses on the top level).
func rejectUnknownKeys(data []byte, known map[string]bool) error {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	for key := range generic {
		if !known[key] {
			return fmt.Errorf("unknown field %q", key)
		}
	}
	return nil
}
