package extractor

import (
	"fmt"
	"os"
)

// withTempFile writes data to a new file in dir, calls fn with its path and
// removes the file afterwards, whether fn returns normally or panics.
func withTempFile(dir, pattern string, data []byte, fn func(path string) error) (err error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = fmt.Errorf("failed to remove temp file: %w", rmErr)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return fn(path)
}
