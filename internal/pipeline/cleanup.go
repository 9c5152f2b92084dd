package pipeline

import (
	"errors"
	"fmt"
	"os"
)

// Cleanup deletes the timing file when enabled. It is called only after a
// fully successful run; a file that is already gone is not an error.
func Cleanup(path string, enabled bool) error {
	if !enabled || path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove timing file: %w", err)
	}
	return nil
}
