//go:build unix

package writer

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// acquireLock takes an exclusive, non-blocking advisory lock on path.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}

	return f, nil
}

// releaseLock unlocks and removes the lock file.
func releaseLock(f *os.File) error {
	path := f.Name()

	// LOCK_UN never fails for a descriptor we hold
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)

	err := f.Close()
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		err = errors.Join(err, rmErr)
	}
	return err
}
