package toolconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesOptionsAndForceSynchronous(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "cargo.json", `{
		"name": "cargo",
		"command": "cargo",
		"force_synchronous": "async",
		"subcommands": [
			{"name": "build", "options": [{"name": "release", "type": "boolean"}]}
		]
	}`)

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "cargo", cfg.Name)
	assert.Equal(t, SyncForceAsync, cfg.Synchronous)
	require.Len(t, cfg.Subcommands, 1)
	assert.Equal(t, "build", cfg.Subcommands[0].Name)
}

func TestLoadRejectsUnknownTopLevelKeyInStrictMode(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "bad.json", `{"name": "x", "command": "x", "typo_field": true}`)

	_, err := Load(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestLoadAllowsUnknownKeyWhenNotStrict(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "ok.json", `{"name": "x", "command": "x", "typo_field": true}`)

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Name)
}

func TestLoadRejectsReservedToolName(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "status.json", `{"name": "status", "command": "status"}`)

	_, err := Load(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "built-in")
}

func TestLoadRequiresNameAndCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "missing.json", `{"description": "no name or command"}`)

	_, err := Load(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestLoadDirCollectsErrorsAndSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "good.json", `{"name": "git", "command": "git"}`)
	writeConfig(t, dir, "bad.json", `{"command": "no-name"}`)
	writeConfig(t, dir, "notes.txt", `not json, and not .json`)

	tools, errs := LoadDir(dir, true)
	require.Len(t, errs, 1)
	require.Len(t, tools, 1)
	assert.Contains(t, tools, "git")
}

func TestLoadDirDetectsDuplicateToolNames(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.json", `{"name": "dup", "command": "a"}`)
	writeConfig(t, dir, "b.json", `{"name": "dup", "command": "b"}`)

	tools, errs := LoadDir(dir, true)
	require.Len(t, tools, 1)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "duplicate tool name")
}

func TestEffectiveTimeoutInheritanceChain(t *testing.T) {
	tool := &ToolConfig{TimeoutSeconds: 30}
	subWithOwn := &SubcommandConfig{TimeoutSeconds: 5}
	subInherit := &SubcommandConfig{}

	assert.Equal(t, uint64(5), subWithOwn.EffectiveTimeout(tool, 60))
	assert.Equal(t, uint64(30), subInherit.EffectiveTimeout(tool, 60))
	assert.Equal(t, uint64(60), subInherit.EffectiveTimeout(nil, 60))
}

func TestEffectiveSynchronicityInheritanceChain(t *testing.T) {
	assert.True(t, EffectiveSynchronicity(SyncForceSync, SyncInherit, false))
	assert.False(t, EffectiveSynchronicity(SyncInherit, SyncForceAsync, true))
	assert.True(t, EffectiveSynchronicity(SyncInherit, SyncInherit, true))
}

func TestFindSubcommandWalksNestedTree(t *testing.T) {
	tool := &ToolConfig{
		Subcommands: []SubcommandConfig{
			{Name: "remote", Subcommands: []SubcommandConfig{
				{Name: "add"},
			}},
		},
	}

	leaf, tokens, ok := tool.FindSubcommand([]string{"remote", "add"})
	require.True(t, ok)
	assert.Equal(t, "add", leaf.Name)
	assert.Equal(t, []string{"remote", "add"}, tokens)

	_, _, ok = tool.FindSubcommand([]string{"remote", "missing"})
	assert.False(t, ok)
}

func TestSynchronicityJSONRoundTrip(t *testing.T) {
	for _, s := range []Synchronicity{SyncInherit, SyncForceSync, SyncForceAsync} {
		data, err := s.MarshalJSON()
		require.NoError(t, err)
		var decoded Synchronicity
		require.NoError(t, decoded.UnmarshalJSON(data))
		assert.Equal(t, s, decoded)
	}
}

func TestSynchronicityUnmarshalsBareBool(t *testing.T) {
	var s Synchronicity
	require.NoError(t, s.UnmarshalJSON([]byte("true")))
	assert.Equal(t, SyncForceSync, s)

	require.NoError(t, s.UnmarshalJSON([]byte("false")))
	assert.Equal(t, SyncForceAsync, s)
}
