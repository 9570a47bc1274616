package dataset

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLocked is returned when another writer holds the dataset lock.
var ErrLocked = errors.New("dataset is locked by another writer")

// Lock is the single-writer lock of a dataset.
type Lock struct {
	path string
}

// AcquireLock creates the lock file. Only one admission, rebuild, or sync
// sequence may run against a dataset at a time.
func AcquireLock(l Layout) (*Lock, error) {
	if err := os.MkdirAll(l.StateDir(), 0755); err != nil {
		return nil, err
	}
	path := l.LockPath()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			holder, _ := os.ReadFile(path)
			return nil, fmt.Errorf("%w: %s (%s)", ErrLocked, path, compact(holder))
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	defer f.Close()

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{path: path}, nil
}

// Path returns the lock file path.
func (lk *Lock) Path() string { return lk.path }

// Release removes the lock file.
func (lk *Lock) Release() error {
	if err := os.Remove(lk.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

func compact(b []byte) string {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == '\n' {
			c = ' '
		}
		out = append(out, c)
	}
	for len(out) > 0 && out[len(out)-1] == ' ' {
		out = out[:len(out)-1]
	}
	return string(out)
}
