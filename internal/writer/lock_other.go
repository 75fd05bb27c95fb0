//go:build !unix

package writer

import (
	"errors"
	"fmt"
	"os"
)

// acquireLock creates the lock file exclusively. A stale lock file left by a
// crashed process has to be removed by hand.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return f, nil
}

func releaseLock(f *os.File) error {
	path := f.Name()
	return errors.Join(f.Close(), os.Remove(path))
}
