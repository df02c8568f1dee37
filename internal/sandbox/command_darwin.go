//go:build darwin

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// platformWrapCommand prepends sandbox-exec with a generated Seatbelt
// profile scoped to the sandbox's current roots plus cwd.
func platformWrapCommand(program string, args []string, cwd string, scopes []string, noTempFiles bool) (string, []string, error) {
	profile := generateSeatbeltProfile(cwd, scopes, noTempFiles)
	wrapped := make([]string, 0, len(args)+3)
	wrapped = append(wrapped, "-p", profile, program)
	wrapped = append(wrapped, args...)
	return "sandbox-exec", wrapped, nil
}

// generateSeatbeltProfile builds a deny-default Seatbelt profile allowing
// process/signal/network/ipc operations, unconditional file-read, and
// file-write restricted to the sandbox's scopes, cwd, and (unless
// noTempFiles) the system temp directories.
func generateSeatbeltProfile(cwd string, scopes []string, noTempFiles bool) string {
	var scopeRules strings.Builder
	for _, scope := range scopes {
		fmt.Fprintf(&scopeRules, "(allow file-write* (subpath %q))\n", scope)
	}

	var userToolRules strings.Builder
	if home, err := os.UserHomeDir(); err == nil {
		for _, rel := range []string{".cargo", ".rustup"} {
			p := filepath.Join(home, rel)
			if _, err := os.Stat(p); err == nil {
				fmt.Fprintf(&userToolRules, "(allow file-read* (subpath %q))\n", p)
			}
		}
	}

	tempRules := ""
	if !noTempFiles {
		tempRules = "(allow file-write* (subpath \"/private/tmp\"))\n" +
			"(allow file-write* (subpath \"/private/var/folders\"))\n"
	}

	return fmt.Sprintf(`(version 1)
(deny default)
(allow process*)
(allow signal)
(allow sysctl-read)
(allow file-read*)
%s%s(allow file-write* (subpath %q))
%s(allow file-write* (literal "/dev/null"))
(allow file-write* (literal "/dev/tty"))
(allow file-write* (literal "/dev/zero"))
(allow network*)
(allow mach-lookup)
(allow ipc-posix-shm*)
`, userToolRules.String(), scopeRules.String(), cwd, tempRules)
}
