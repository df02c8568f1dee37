package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestNewInjectsSandboxedShellAndLoadsConfigs(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "git.json", `{"name":"git","command":"git","subcommands":[{"name":"commit","options":[{"name":"all","type":"boolean"}]}]}`)

	r, errs := New(DefaultConfig(dir))
	require.Empty(t, errs)

	_, ok := r.Find("git")
	assert.True(t, ok)

	shell, ok := r.Find(SandboxedShellToolName)
	require.True(t, ok)
	assert.Equal(t, "bash", shell.Command)
}

func TestNewCollectsPerFileErrorsButStillLoadsGoodOnes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "good.json", `{"name":"good","command":"good"}`)
	writeConfig(t, dir, "bad.json", `{"name":"bad","command":"bad","typo":true}`)

	r, errs := New(DefaultConfig(dir))
	assert.Len(t, errs, 1)
	_, ok := r.Find("good")
	assert.True(t, ok)
	_, ok = r.Find("bad")
	assert.False(t, ok)
}

func TestUserConfigCannotShadowReservedName(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "shell.json", `{"name":"sandboxed_shell","command":"evil"}`)

	r, errs := New(DefaultConfig(dir))
	require.Len(t, errs, 1)

	shell, ok := r.Find(SandboxedShellToolName)
	require.True(t, ok)
	assert.Equal(t, "bash", shell.Command)
}

func TestListIsSortedByName(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "zeta.json", `{"name":"zeta","command":"zeta"}`)
	writeConfig(t, dir, "alpha.json", `{"name":"alpha","command":"alpha"}`)

	r, _ := New(DefaultConfig(dir))
	names := make([]string, 0)
	for _, tool := range r.List() {
		names = append(names, tool.Name)
	}
	require.Contains(t, names, "alpha")
	require.Contains(t, names, "zeta")
	assert.True(t, indexOf(names, "alpha") < indexOf(names, "zeta"))
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}

func TestReloadPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	r, _ := New(DefaultConfig(dir))
	_, ok := r.Find("newtool")
	require.False(t, ok)

	writeConfig(t, dir, "newtool.json", `{"name":"newtool","command":"newtool"}`)
	r.Reload()

	_, ok = r.Find("newtool")
	assert.True(t, ok)
}

func TestIsAvailableWithNoProbeIsAlwaysTrue(t *testing.T) {
	dir := t.TempDir()
	r, _ := New(DefaultConfig(dir))
	tool, _ := r.Find(SandboxedShellToolName)
	ok, err := r.IsAvailable(context.Background(), tool)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAvailableCachesProbeResult(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "probed.json", `{"name":"probed","command":"probed","availability_probe":"true"}`)
	cfg := DefaultConfig(dir)
	cfg.ProbeTTL = time.Minute
	r, _ := New(cfg)

	tool, _ := r.Find("probed")
	ok, err := r.IsAvailable(context.Background(), tool)
	require.NoError(t, err)
	assert.True(t, ok)

	_, cached := r.cachedProbe("probed")
	assert.True(t, cached)
}

func TestIsAvailableFalseWhenProbeExitsNonzero(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "missing.json", `{"name":"missing","command":"missing","availability_probe":"false"}`)
	r, _ := New(DefaultConfig(dir))

	tool, _ := r.Find("missing")
	ok, err := r.IsAvailable(context.Background(), tool)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateProbeForcesRecheck(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "probed.json", `{"name":"probed","command":"probed","availability_probe":"true"}`)
	r, _ := New(DefaultConfig(dir))
	tool, _ := r.Find("probed")

	_, err := r.IsAvailable(context.Background(), tool)
	require.NoError(t, err)
	_, cached := r.cachedProbe("probed")
	require.True(t, cached)

	r.InvalidateProbe("probed")
	_, cached = r.cachedProbe("probed")
	assert.False(t, cached)
}

func TestSchemaUnionsOptionsAcrossLeavesAndExposesSubcommandEnum(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "git.json", `{
		"name": "git", "command": "git",
		"subcommands": [
			{"name": "commit", "options": [{"name": "all", "type": "boolean"}]},
			{"name": "push", "options": [{"name": "force", "type": "boolean"}]}
		]
	}`)
	r, _ := New(DefaultConfig(dir))
	tool, _ := r.Find("git")

	schema := Schema(tool)
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "all")
	assert.Contains(t, props, "force")
	assert.Contains(t, props, "subcommand")
	assert.Contains(t, props, "working_directory")

	sub := props["subcommand"].(map[string]any)
	assert.ElementsMatch(t, []string{"commit", "push"}, sub["enum"])
}

func TestDescribeMarksDisabledByConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "off.json", `{"name":"off","command":"off","enabled":false}`)
	r, _ := New(DefaultConfig(dir))
	tool, _ := r.Find("off")

	desc := Describe(tool, true)
	assert.True(t, desc.Disabled)
}

func TestWatchReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	r, _ := New(DefaultConfig(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Watch(ctx)

	time.Sleep(50 * time.Millisecond)
	writeConfig(t, dir, "added.json", `{"name":"added","command":"added"}`)

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := r.Find("added"); ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("watch did not pick up new tool config in time")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
