//go:build linux

package sandbox

import (
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Landlock ABI v3 syscall numbers (stable since kernel 5.13, amd64/arm64).
// golang.org/x/sys/unix does not expose dedicated Landlock wrappers, so
// these are invoked directly via unix.Syscall.
const (
	sysLandlockCreateRuleset = 444
	sysLandlockAddRule       = 445
	sysLandlockRestrictSelf  = 446

	landlockRuleTypePathBeneath = 1

	landlockCreateRulesetVersion = 1 << 0
)

// access flags from linux/landlock.h (ABI v3).
const (
	accessFsExecute    = 1 << 0
	accessFsWriteFile  = 1 << 1
	accessFsReadFile   = 1 << 2
	accessFsReadDir    = 1 << 3
	accessFsRemoveDir  = 1 << 4
	accessFsRemoveFile = 1 << 5
	accessFsMakeChar   = 1 << 6
	accessFsMakeDir    = 1 << 7
	accessFsMakeReg    = 1 << 8
	accessFsMakeSock   = 1 << 9
	accessFsMakeFifo   = 1 << 10
	accessFsMakeBlock  = 1 << 11
	accessFsMakeSym    = 1 << 12
	accessFsRefer      = 1 << 13
	accessFsTruncate   = 1 << 14
)

const accessFsAll = accessFsExecute | accessFsWriteFile | accessFsReadFile |
	accessFsReadDir | accessFsRemoveDir | accessFsRemoveFile | accessFsMakeChar |
	accessFsMakeDir | accessFsMakeReg | accessFsMakeSock | accessFsMakeFifo |
	accessFsMakeBlock | accessFsMakeSym | accessFsRefer | accessFsTruncate

const accessFsReadOnly = accessFsExecute | accessFsReadFile | accessFsReadDir

type landlockRulesetAttr struct {
	HandledAccessFs uint64
}

// landlockPathBeneathAttr mirrors the kernel's packed
// struct landlock_path_beneath_attr {u64 allowed_access; s32 parent_fd;}.
// The kernel reads exactly 12 bytes from the pointer regardless of any
// trailing alignment padding Go adds to this struct's in-memory size.
type landlockPathBeneathAttr struct {
	AllowedAccess uint64
	ParentFd      int32
}

// systemReadOnlyPaths are made readable (and executable) regardless of
// scope so toolchains under /usr, /bin etc. keep working.
var systemReadOnlyPaths = []string{
	"/usr", "/bin", "/sbin", "/etc", "/lib", "/lib64", "/proc", "/dev", "/sys",
}

// homeToolCachePaths are granted read-only access when present, so common
// toolchain caches don't need to be added as full scopes.
var homeToolCachePaths = []string{
	".cargo", ".rustup", ".nvm", ".npm", ".go", ".cache",
}

// EnforceLandlock applies a process-wide, one-shot Landlock ruleset: full
// access to every scope, read-only access to a curated system path set and
// home tool caches, and (unless noTempFiles) full access to /tmp. Must be
// called once, before spawning any sandboxed children — restrict_self binds
// the ruleset to the calling thread's credentials and cannot be undone.
func EnforceLandlock(scopes []string, noTempFiles bool) error {
	rulesetFd, _, errno := unix.Syscall(sysLandlockCreateRuleset,
		uintptr(unsafe.Pointer(&landlockRulesetAttr{HandledAccessFs: accessFsAll})),
		unsafe.Sizeof(landlockRulesetAttr{}),
		0)
	if errno != 0 {
		return &LandlockNotAvailableError{Reason: errno.Error()}
	}
	fd := int(rulesetFd)
	defer unix.Close(fd)

	for _, scope := range scopes {
		if err := addLandlockRule(fd, scope, accessFsAll); err != nil {
			return err
		}
	}

	for _, p := range systemReadOnlyPaths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = addLandlockRule(fd, p, accessFsReadOnly)
	}

	if home, err := os.UserHomeDir(); err == nil {
		for _, rel := range homeToolCachePaths {
			p := filepath.Join(home, rel)
			if _, err := os.Stat(p); err != nil {
				continue
			}
			_ = addLandlockRule(fd, p, accessFsReadOnly)
		}
	}

	if !noTempFiles {
		if _, err := os.Stat("/tmp"); err == nil {
			_ = addLandlockRule(fd, "/tmp", accessFsAll)
		}
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return &LandlockNotAvailableError{Reason: err.Error()}
	}

	_, _, errno = unix.Syscall(sysLandlockRestrictSelf, uintptr(fd), 0, 0)
	if errno != 0 {
		return &LandlockNotAvailableError{Reason: errno.Error()}
	}

	return nil
}

func addLandlockRule(rulesetFd int, path string, access uint64) error {
	parentFd, err := unix.Open(path, unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil // best-effort: a missing optional path is not fatal
	}
	defer unix.Close(parentFd)

	attr := landlockPathBeneathAttr{AllowedAccess: access, ParentFd: int32(parentFd)}
	_, _, errno := unix.Syscall(sysLandlockAddRule,
		uintptr(rulesetFd),
		uintptr(landlockRuleTypePathBeneath),
		uintptr(unsafe.Pointer(&attr)))
	if errno != 0 {
		return &PrerequisiteFailedError{Message: "adding Landlock rule for " + path + ": " + errno.Error()}
	}
	return nil
}

// CheckPrerequisites verifies the running kernel exposes Landlock support.
func CheckPrerequisites() error {
	if content, err := os.ReadFile("/sys/kernel/security/lsm"); err == nil {
		if containsLandlock(string(content)) {
			return nil
		}
		return &LandlockNotAvailableError{}
	}
	return checkKernelVersionForLandlock()
}

func containsLandlock(lsmList string) bool {
	for _, name := range splitComma(lsmList) {
		if name == "landlock" {
			return true
		}
	}
	return false
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' || s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func checkKernelVersionForLandlock() error {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return &PrerequisiteFailedError{Message: "failed to check kernel version: " + err.Error()}
	}
	release := charsToString(uts.Release[:])
	major, minor := parseKernelVersion(release)
	if major > 5 || (major == 5 && minor >= 13) {
		return nil
	}
	return &PrerequisiteFailedError{Message: "Landlock requires Linux kernel 5.13 or newer. Current: " + release}
}

func charsToString(chars []byte) string {
	n := 0
	for n < len(chars) && chars[n] != 0 {
		n++
	}
	return string(chars[:n])
}

func parseKernelVersion(release string) (major, minor int) {
	i := 0
	major, i = parseLeadingInt(release, i)
	if i < len(release) && release[i] == '.' {
		minor, _ = parseLeadingInt(release, i+1)
	}
	return major, minor
}

func parseLeadingInt(s string, start int) (int, int) {
	i := start
	n := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}
	return n, i
}
