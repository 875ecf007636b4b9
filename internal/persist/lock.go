package persist

import (
	"fmt"
	"os"
)

// Lock is an exclusive advisory lock on a queue-state file, held as a
// sibling ".lock" file created with O_EXCL. The pipeline assumes a single
// writer; the lock turns a second concurrent writer into a clean error
// instead of silent state corruption.
type Lock struct {
	path string
}

// Acquire takes the lock for target. Fails if another process holds it.
func Acquire(target string) (*Lock, error) {
	path := target + ".lock"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("queue state %s is locked by another writer (remove %s if stale)", target, path)
		}
		if os.IsNotExist(err) {
			// Parent directory is missing; first write will create it, so
			// there is no concurrent writer to guard against yet.
			return &Lock{}, nil
		}
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return &Lock{path: path}, nil
}

// Release drops the lock. Safe to call on a zero lock.
func (l *Lock) Release() {
	if l == nil || l.path == "" {
		return
	}
	os.Remove(l.path)
}
