// Package config loads optional server-wide defaults from a TOML file,
// mirroring the teacher's UserConfig pattern: a cached, best-effort load
// that falls back to zero-value defaults when the file is absent, with
// every field here also settable from the command line. CLI flags win
// when both are set (see Merge).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the default config file name under the XDG config dir.
const FileName = "config.toml"

// BundledTools toggles which built-in tool configs ship enabled, one
// field per --rust/--git/--gh/--fileutils/--gradle/--python/--simplify
// CLI flag.
type BundledTools struct {
	Rust      bool `toml:"rust"`
	Git       bool `toml:"git"`
	Gh        bool `toml:"gh"`
	FileUtils bool `toml:"fileutils"`
	Gradle    bool `toml:"gradle"`
	Python    bool `toml:"python"`
	Simplify  bool `toml:"simplify"`
}

// Config is the optional server-defaults file. Every field here has a
// matching CLI flag in cmd/ahma-mcp; an unset TOML field (zero value)
// leaves the hardcoded default in place, and a set CLI flag always wins
// over both.
type Config struct {
	// SandboxScopes lists filesystem scopes the sandbox accepts, merged
	// with (not replaced by) any --sandbox-scope flags.
	SandboxScopes []string `toml:"sandbox_scopes"`

	// HandshakeTimeoutSecs overrides the HTTP bridge's handshake timeout
	// (spec.md §4.5 default: 30).
	HandshakeTimeoutSecs uint64 `toml:"handshake_timeout_secs"`

	// Sync forces synchronous execution as the server default when no
	// tool/subcommand/request overrides it.
	Sync bool `toml:"sync"`

	// Bundled toggles which built-in tool configs are enabled.
	Bundled BundledTools `toml:"bundled"`
}

// DefaultPath returns ~/.config/ahma-mcp/config.toml, the path used when
// --config is not given.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ahma-mcp", FileName), nil
}

// Load reads and parses path. A missing file is not an error: Load
// returns a zero-value Config so callers fall through to hardcoded
// defaults. path == "" resolves to DefaultPath().
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// MergeScopes combines CLI-supplied scopes with the config file's, CLI
// first. The sandbox treats scopes as an additive set, so unlike the
// scalar fields below there is no "wins" - both sources contribute.
func (c *Config) MergeScopes(cliScopes []string) []string {
	if c == nil {
		return cliScopes
	}
	merged := make([]string, 0, len(cliScopes)+len(c.SandboxScopes))
	merged = append(merged, cliScopes...)
	merged = append(merged, c.SandboxScopes...)
	return merged
}

// EffectiveHandshakeTimeoutSecs resolves the handshake timeout: an
// explicitly-set CLI flag (cliSet true) wins, then the config file, then
// serverDefault.
func (c *Config) EffectiveHandshakeTimeoutSecs(cliValue uint64, cliSet bool, serverDefault uint64) uint64 {
	if cliSet {
		return cliValue
	}
	if c != nil && c.HandshakeTimeoutSecs > 0 {
		return c.HandshakeTimeoutSecs
	}
	return serverDefault
}

// EffectiveSync resolves the server-default synchronicity: an
// explicitly-set CLI --sync flag wins, then the config file's sync
// value, then false (async by default).
func (c *Config) EffectiveSync(cliSync bool, cliSet bool) bool {
	if cliSet {
		return cliSync
	}
	if c != nil {
		return c.Sync
	}
	return false
}

// EffectiveBundled resolves which bundled tool configs are enabled: a
// CLI flag that was explicitly passed wins per-tool over the config
// file's setting.
func (c *Config) EffectiveBundled(cli BundledTools, cliSet BundledTools) BundledTools {
	fileBundled := BundledTools{}
	if c != nil {
		fileBundled = c.Bundled
	}
	return BundledTools{
		Rust:      pick(cli.Rust, cliSet.Rust, fileBundled.Rust),
		Git:       pick(cli.Git, cliSet.Git, fileBundled.Git),
		Gh:        pick(cli.Gh, cliSet.Gh, fileBundled.Gh),
		FileUtils: pick(cli.FileUtils, cliSet.FileUtils, fileBundled.FileUtils),
		Gradle:    pick(cli.Gradle, cliSet.Gradle, fileBundled.Gradle),
		Python:    pick(cli.Python, cliSet.Python, fileBundled.Python),
		Simplify:  pick(cli.Simplify, cliSet.Simplify, fileBundled.Simplify),
	}
}

func pick(cliValue, cliSet, fileValue bool) bool {
	if cliSet {
		return cliValue
	}
	return fileValue
}
