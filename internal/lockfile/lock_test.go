//go:build unix

package lockfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deltakernel/txncore/internal/lockfile"
)

func TestExclusiveExcludesExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	f1, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f1.Close()
	f2, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f2.Close()

	require.NoError(t, lockfile.FlockExclusiveNonBlock(f1))
	require.ErrorIs(t, lockfile.FlockExclusiveNonBlock(f2), lockfile.ErrLockBusy)

	require.NoError(t, lockfile.FlockUnlock(f1))
	require.NoError(t, lockfile.FlockExclusiveNonBlock(f2))
}

func TestSharedAllowsMultipleReaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	f1, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f1.Close()
	f2, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f2.Close()

	require.NoError(t, lockfile.FlockSharedNonBlock(f1))
	require.NoError(t, lockfile.FlockSharedNonBlock(f2))
}

func TestSharedExcludesExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	f1, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f1.Close()
	f2, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer f2.Close()

	require.NoError(t, lockfile.FlockSharedNonBlock(f1))
	require.ErrorIs(t, lockfile.FlockExclusiveNonBlock(f2), lockfile.ErrLockBusy)
}
