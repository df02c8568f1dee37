package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ahma-mcp/ahma-mcp-go/internal/config"
)

//go:embed bundled/*.json
var bundledFS embed.FS

// bundledFile maps one --rust/--git/... toggle to the JSON config files it
// unlocks. fileutils is split across three single-command tool files (see
// DESIGN.md) since each needs its own subcommand tree.
var bundledFile = map[string][]string{
	"rust":      {"rust.json"},
	"git":       {"git.json"},
	"gh":        {"gh.json"},
	"fileutils": {"fileutils_find.json", "fileutils_grep.json", "fileutils_wc.json"},
	"gradle":    {"gradle.json"},
	"python":    {"python.json"},
	"simplify":  {"simplify.json"},
}

// materializeBundledTools copies the enabled bundled tool configs into
// toolsDir, mirroring the teacher's CreateExampleConfig "don't overwrite
// what's already there" idiom: a file a user has hand-edited is left
// alone.
func materializeBundledTools(toolsDir string, enabled config.BundledTools) error {
	if err := os.MkdirAll(toolsDir, 0o755); err != nil {
		return fmt.Errorf("bundled tools: create %s: %w", toolsDir, err)
	}

	toggles := map[string]bool{
		"rust":      enabled.Rust,
		"git":       enabled.Git,
		"gh":        enabled.Gh,
		"fileutils": enabled.FileUtils,
		"gradle":    enabled.Gradle,
		"python":    enabled.Python,
		"simplify":  enabled.Simplify,
	}

	for toggle, on := range toggles {
		if !on {
			continue
		}
		for _, name := range bundledFile[toggle] {
			dest := filepath.Join(toolsDir, name)
			if _, err := os.Stat(dest); err == nil {
				continue
			}
			data, err := bundledFS.ReadFile("bundled/" + name)
			if err != nil {
				return fmt.Errorf("bundled tools: read %s: %w", name, err)
			}
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return fmt.Errorf("bundled tools: write %s: %w", dest, err)
			}
		}
	}
	return nil
}
