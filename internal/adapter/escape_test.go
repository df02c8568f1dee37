package adapter

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeedsFileHandling(t *testing.T) {
	cases := map[string]bool{
		"plain":         false,
		"has\nnewline":  true,
		"has'quote":     true,
		`has"quote`:     true,
		"has`tick":      true,
		"has$dollar":    true,
		`has\backslash`: true,
		"":              false,
	}
	for in, want := range cases {
		assert.Equal(t, want, NeedsFileHandling(in), "input: %q", in)
	}
	assert.True(t, NeedsFileHandling(strings.Repeat("a", 8*1024+1)))
	assert.False(t, NeedsFileHandling(strings.Repeat("a", 8*1024)))
}

func TestEscapeShellArgumentEmpty(t *testing.T) {
	assert.Equal(t, "''", EscapeShellArgument(""))
}

func TestEscapeShellArgumentRoundTrip(t *testing.T) {
	inputs := []string{
		"plain",
		"with space",
		"it's got a quote",
		`double "quoted" text`,
		"new\nline",
		"back`tick",
		"dollar$sign",
		`back\slash`,
		"'''",
	}
	for _, in := range inputs {
		escaped := EscapeShellArgument(in)
		cmd := exec.Command("bash", "-c", "printf '%s' "+escaped)
		out, err := cmd.Output()
		if err != nil {
			t.Skipf("bash not available: %v", err)
		}
		require.Equal(t, in, string(out), "round trip for %q", in)
	}
}
