// Package adapter translates a tool/subcommand config plus a JSON argument
// map into an argv vector, decides whether a call runs synchronously or as
// a tracked async operation, and spills unsafe/oversized argument values
// to scope-local tempfiles before they ever reach a shell command line.
package adapter

import "strings"

// maxInlineArgBytes is the threshold past which a string argument must be
// spilled to a tempfile rather than embedded in the command line, even if
// it contains no characters that would otherwise force file handling.
const maxInlineArgBytes = 8 * 1024

// NeedsFileHandling reports whether s must be spilled to a tempfile instead
// of appearing inline in a shell command: it contains a newline, a single
// or double quote, a backtick, a dollar sign, a backslash, or it exceeds
// 8 KiB.
func NeedsFileHandling(s string) bool {
	if len(s) > maxInlineArgBytes {
		return true
	}
	return strings.ContainsAny(s, "\n'\"`$\\")
}

// EscapeShellArgument wraps s in single quotes for safe inclusion in a
// `bash -c` command line, closing and reopening the quote around any
// embedded single quote. The round trip `bash -c 'echo <escaped>'`
// reproduces s byte-for-byte.
func EscapeShellArgument(s string) string {
	if s == "" {
		return "''"
	}
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			b.WriteString(`'\''`)
		} else {
			b.WriteByte(s[i])
		}
	}
	b.WriteByte('\'')
	return b.String()
}
