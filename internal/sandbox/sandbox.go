// Package sandbox canonicalizes and enforces filesystem scope restrictions
// for tool invocations: kernel-level enforcement (Landlock on Linux,
// Seatbelt on macOS) plus a validate-before-dispatch check shared by every
// caller regardless of OS.
package sandbox

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Mode selects how strictly a Sandbox enforces its scopes.
type Mode int

const (
	// ModeStrict enforces scope checks unconditionally.
	ModeStrict Mode = iota
	// ModeTest bypasses the scope-prefix check when the sole scope is the
	// filesystem root or no scopes are configured; the high-security
	// (no-temp-files) check still applies.
	ModeTest
)

// blockedTempPrefixes are rejected outright under --no-temp-files, even
// when they fall within a configured scope.
var blockedTempPrefixes = []string{
	"/tmp",
	"/var/folders",
	"/private/tmp",
	"/private/var/folders",
	"/dev",
}

// Sandbox owns a set of canonical filesystem scopes and enforces them on
// every path a tool invocation touches.
type Sandbox struct {
	mu          sync.RWMutex
	scopes      []string
	mode        Mode
	noTempFiles bool
}

// New canonicalizes each scope and constructs a Sandbox. An unresolvable
// scope is a hard error — the caller should refuse to start rather than run
// with a silently narrower (or absent) sandbox.
func New(scopes []string, mode Mode, noTempFiles bool) (*Sandbox, error) {
	canon, err := canonicalizeScopes(scopes)
	if err != nil {
		return nil, err
	}
	return &Sandbox{scopes: canon, mode: mode, noTempFiles: noTempFiles}, nil
}

func canonicalizeScopes(scopes []string) ([]string, error) {
	canon := make([]string, 0, len(scopes))
	for _, s := range scopes {
		abs, err := filepath.Abs(s)
		if err != nil {
			return nil, &CanonicalizationFailedError{Path: s, Err: err}
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, &CanonicalizationFailedError{Path: s, Err: err}
		}
		canon = append(canon, resolved)
	}
	return canon, nil
}

// UpdateScopes re-canonicalizes and atomically replaces the scope set.
// Readers already in validatePath see either the old or the new set, never
// a torn mix of the two.
func (s *Sandbox) UpdateScopes(scopes []string) error {
	canon, err := canonicalizeScopes(scopes)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.scopes = canon
	s.mu.Unlock()
	return nil
}

// Mode reports the enforcement mode the Sandbox was constructed with.
func (s *Sandbox) Mode() Mode {
	return s.mode
}

// Scopes returns a snapshot of the current canonical scope list.
func (s *Sandbox) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.scopes))
	copy(out, s.scopes)
	return out
}

// ValidatePath canonicalizes p and accepts it iff it falls under one of the
// sandbox's scopes (or the Test-mode bypass applies), and iff it does not
// land in a blocked temp/device location under --no-temp-files.
func (s *Sandbox) ValidatePath(p string) (string, error) {
	s.mu.RLock()
	scopes := s.scopes
	mode := s.mode
	noTempFiles := s.noTempFiles
	s.mu.RUnlock()

	canonical, err := canonicalizePath(p, scopes)
	if err != nil {
		return "", err
	}

	bypass := mode == ModeTest && (len(scopes) == 0 || (len(scopes) == 1 && scopes[0] == "/"))
	if !bypass && !pathWithinAny(canonical, scopes) {
		return "", &PathOutsideSandboxError{Path: p, Scopes: scopes}
	}

	if noTempFiles {
		for _, prefix := range blockedTempPrefixes {
			if strings.HasPrefix(canonical, prefix) {
				return "", &HighSecurityViolationError{Path: p}
			}
		}
	}

	return canonical, nil
}

// canonicalizePath resolves p to an absolute, symlink-resolved path. If p is
// relative it is joined against the first scope. Falls back to canonicalizing
// the parent directory (for paths that don't exist yet), then to lexical
// normalization if even the parent can't be resolved.
func canonicalizePath(p string, scopes []string) (string, error) {
	abs := p
	if !filepath.IsAbs(abs) {
		base := "/"
		if len(scopes) > 0 {
			base = scopes[0]
		}
		abs = filepath.Join(base, p)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(abs)
	if resolvedParent, err := filepath.EvalSymlinks(parent); err == nil {
		return filepath.Join(resolvedParent, filepath.Base(abs)), nil
	}

	return filepath.Clean(abs), nil
}

// pathWithinAny reports whether child is equal to or a descendant of any of
// the given parents.
func pathWithinAny(child string, parents []string) bool {
	for _, parent := range parents {
		if pathWithin(child, parent) {
			return true
		}
	}
	return false
}

// pathWithin returns true if child is equal to or a descendant of parent.
func pathWithin(child string, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// CreateCommand builds an *exec.Cmd for program, wrapped per-platform
// (Seatbelt on macOS, raw on Linux since Landlock is enforced process-wide,
// raw on Test mode / unsupported OS). Cargo's target dir is always pinned
// inside cwd to stop it escaping the scope via user config.
func (s *Sandbox) CreateCommand(ctx context.Context, program string, args []string, cwd string) (*exec.Cmd, error) {
	s.mu.RLock()
	scopes := s.scopes
	mode := s.mode
	noTempFiles := s.noTempFiles
	s.mu.RUnlock()

	var cmd *exec.Cmd
	if mode == ModeTest {
		cmd = exec.CommandContext(ctx, program, args...)
	} else {
		wrappedProgram, wrappedArgs, err := platformWrapCommand(program, args, cwd, scopes, noTempFiles)
		if err != nil {
			return nil, err
		}
		cmd = exec.CommandContext(ctx, wrappedProgram, wrappedArgs...)
	}

	cmd.Dir = cwd

	if filepath.Base(program) == "cargo" {
		cmd.Env = append(cmd.Environ(), "CARGO_TARGET_DIR="+filepath.Join(cwd, "target"))
	}

	return cmd, nil
}
