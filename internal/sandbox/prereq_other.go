//go:build !darwin && !linux

package sandbox

import "runtime"

// CheckPrerequisites always fails: no kernel-level sandbox is implemented
// for this OS, so strict mode must refuse to start.
func CheckPrerequisites() error {
	return &UnsupportedOsError{Os: runtime.GOOS}
}

// DetectNestedSandbox is a no-op outside macOS.
func DetectNestedSandbox() error { return nil }
