package engine_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deltakernel/txncore/internal/engine"
	"github.com/deltakernel/txncore/internal/lockfile"
)

func TestWriteJSONAtomicallyRejectsExisting(t *testing.T) {
	dir := t.TempDir()
	e := engine.NewLocalEngine(time.Second)
	path := filepath.Join(dir, "00000000000000000000.json")

	require.NoError(t, e.WriteJSONAtomically(context.Background(), path, strings.NewReader(`{"a":1}`+"\n"), false))
	err := e.WriteJSONAtomically(context.Background(), path, strings.NewReader(`{"b":2}`+"\n"), false)
	require.ErrorIs(t, err, engine.ErrFileAlreadyExists)
}

func TestWriteJSONAtomicallyOverwriteReplaces(t *testing.T) {
	dir := t.TempDir()
	e := engine.NewLocalEngine(time.Second)
	path := filepath.Join(dir, "checkpoint.json")

	require.NoError(t, e.WriteJSONAtomically(context.Background(), path, strings.NewReader("first\n"), false))
	require.NoError(t, e.WriteJSONAtomically(context.Background(), path, strings.NewReader("second\n"), true))

	r, err := e.ReadJSON(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "second\n", string(b))
}

func TestReadJSONHoldsSharedLockUntilClosed(t *testing.T) {
	dir := t.TempDir()
	e := engine.NewLocalEngine(time.Second)
	path := filepath.Join(dir, "00000000000000000000.json")
	require.NoError(t, e.WriteJSONAtomically(context.Background(), path, strings.NewReader("{}\n"), false))

	r, err := e.ReadJSON(context.Background(), path)
	require.NoError(t, err)

	lockFile, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer lockFile.Close()
	require.ErrorIs(t, lockfile.FlockExclusiveNonBlock(lockFile), lockfile.ErrLockBusy)

	require.NoError(t, r.Close())
	require.NoError(t, lockfile.FlockExclusiveNonBlock(lockFile))
	require.NoError(t, lockfile.FlockUnlock(lockFile))
}

func TestListFromOrdersAndFilters(t *testing.T) {
	dir := t.TempDir()
	e := engine.NewLocalEngine(time.Second)
	ctx := context.Background()

	for _, name := range []string{"00000000000000000000.json", "00000000000000000001.json", "00000000000000000001.crc"} {
		require.NoError(t, e.WriteJSONAtomically(ctx, filepath.Join(dir, name), strings.NewReader("{}\n"), false))
	}

	files, err := e.ListFrom(ctx, dir, "00000000000000000001")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Contains(t, files[0].Path, "00000000000000000001")
}

func TestMkdirsReportsCreation(t *testing.T) {
	dir := t.TempDir()
	e := engine.NewLocalEngine(time.Second)
	target := filepath.Join(dir, "_delta_log")

	created, err := e.Mkdirs(context.Background(), target)
	require.NoError(t, err)
	require.True(t, created)

	created, err = e.Mkdirs(context.Background(), target)
	require.NoError(t, err)
	require.False(t, created)
}
