package adapter

import (
	"fmt"
	"os"
	"path/filepath"
)

// Spiller writes an oversized/unsafe argument value to a fresh, scope-local
// tempfile and returns its path. The returned path is always inside
// workingDir (or whatever sandbox-allowed temp location the caller wires
// in), following the same create-then-close-then-chmod discipline as a
// safe atomic file write: nothing observes the file until it is complete.
type Spiller interface {
	Spill(workingDir, value string) (path string, err error)
}

// TempFileSpiller creates spill files directly under each call's working
// directory, named so repeated calls in the same directory don't collide.
type TempFileSpiller struct{}

func (TempFileSpiller) Spill(workingDir, value string) (string, error) {
	f, err := os.CreateTemp(workingDir, ".ahma-arg-*")
	if err != nil {
		return "", fmt.Errorf("creating spill file in %s: %w", workingDir, err)
	}
	name := f.Name()

	if _, err := f.WriteString(value); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("writing spill file %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("closing spill file %s: %w", name, err)
	}
	if err := os.Chmod(name, 0o600); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("chmod spill file %s: %w", name, err)
	}

	return filepath.Clean(name), nil
}
