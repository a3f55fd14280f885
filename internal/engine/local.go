package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/deltakernel/txncore/internal/lockfile"
)

// lockPollInterval mirrors the teacher's AccessLock poll cadence for
// acquiring the directory's coordination lock.
const lockPollInterval = 50 * time.Millisecond

// LocalEngine is a reference Engine backed by the local filesystem. It uses
// O_CREATE|O_EXCL for the atomic-create guarantee and an advisory flock on a
// sibling ".lock" file so that the existence check and the write are not
// racing two writers that both pass the O_EXCL check on some platforms with
// weaker atomicity guarantees (notably some network filesystems).
type LocalEngine struct {
	// LockTimeout bounds how long WriteJSONAtomically waits for the
	// coordination lock before giving up. Zero means a single attempt.
	LockTimeout time.Duration
}

// NewLocalEngine builds a LocalEngine with the given lock acquisition
// timeout.
func NewLocalEngine(lockTimeout time.Duration) *LocalEngine {
	return &LocalEngine{LockTimeout: lockTimeout}
}

func (e *LocalEngine) ListFrom(_ context.Context, dir, prefix string) ([]FileStatus, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var out []FileStatus
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() < prefix {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		out = append(out, FileStatus{
			Path:             filepath.Join(dir, entry.Name()),
			Size:             info.Size(),
			ModificationTime: info.ModTime().UnixMilli(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ReadJSON opens path under a shared, non-blocking coordination lock on its
// sibling ".lock" file, so a reader racing an in-flight overwrite (checkpoint
// or CRC compaction; plain commit files are never overwritten) observes
// either the old content or the new one, never a half-written file. The lock
// is released when the returned ReadCloser is closed.
func (e *LocalEngine) ReadJSON(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		// No coordination file reachable; fall back to an unguarded read
		// rather than failing the whole resolve over lock-file bookkeeping.
		return f, nil
	}
	if err := acquireShared(lockFile, e.LockTimeout); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("acquire read lock for %s: %w", path, err)
	}
	return &lockedReadCloser{ReadCloser: f, lockFile: lockFile}, nil
}

// lockedReadCloser releases a shared coordination lock when the underlying
// file is closed, keeping the lock held for the caller's entire read rather
// than just the open.
type lockedReadCloser struct {
	io.ReadCloser
	lockFile *os.File
}

func (l *lockedReadCloser) Close() error {
	err := l.ReadCloser.Close()
	_ = lockfile.FlockUnlock(l.lockFile)
	_ = l.lockFile.Close()
	return err
}

func (e *LocalEngine) WriteJSONAtomically(_ context.Context, path string, r io.Reader, overwrite bool) error {
	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open coordination lock %s: %w", lockPath, err)
	}
	defer lockFile.Close()
	defer os.Remove(lockPath)

	if err := acquireExclusive(lockFile, e.LockTimeout); err != nil {
		return fmt.Errorf("acquire write lock for %s: %w", path, err)
	}
	defer lockfile.FlockUnlock(lockFile)

	flags := os.O_CREATE | os.O_WRONLY | os.O_EXCL
	if overwrite {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrFileAlreadyExists
		}
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Sync()
}

func (e *LocalEngine) Mkdirs(_ context.Context, dir string) (bool, error) {
	if _, err := os.Stat(dir); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("mkdirs %s: %w", dir, err)
	}
	return true, nil
}

// acquireExclusive polls FlockExclusiveNonBlock the way the teacher's
// AccessLock polls for its dolt-access.lock, until timeout elapses.
func acquireExclusive(f *os.File, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := lockfile.FlockExclusiveNonBlock(f)
		if err == nil {
			return nil
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return err
		}
		time.Sleep(lockPollInterval)
	}
}

// acquireShared mirrors acquireExclusive for the reader side: multiple
// readers may hold the lock together, and a reader only blocks behind a
// writer's exclusive hold.
func acquireShared(f *os.File, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := lockfile.FlockSharedNonBlock(f)
		if err == nil {
			return nil
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return err
		}
		time.Sleep(lockPollInterval)
	}
}
