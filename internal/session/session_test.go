package session_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deltakernel/txncore/internal/icebergcompat"
	"github.com/deltakernel/txncore/internal/session"
)

func TestResolveUsesDefaultsWhenNothingSet(t *testing.T) {
	dir := t.TempDir()
	cfg, err := session.Resolve(dir, session.Overrides{})
	require.NoError(t, err)
	require.Equal(t, session.DefaultMaxRetries, cfg.MaxRetries)
	require.Equal(t, session.DefaultCheckpointInterval, cfg.CheckpointInterval)
	require.Equal(t, session.DefaultLockTimeout, cfg.LockTimeout)
	require.Empty(t, cfg.IcebergCompatVersion)
}

func TestResolveReadsProjectConfigYaml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".deltakernel"), 0o755))
	contents := "max-retries: 25\ncheckpoint-interval: 50\niceberg-compat-version: V3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".deltakernel", "config.yaml"), []byte(contents), 0o600))

	cfg, err := session.Resolve(dir, session.Overrides{})
	require.NoError(t, err)
	require.Equal(t, 25, cfg.MaxRetries)
	require.Equal(t, 50, cfg.CheckpointInterval)
	require.Equal(t, icebergcompat.V3, cfg.IcebergCompatVersion)
}

func TestResolveOverridesTakePrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".deltakernel"), 0o755))
	contents := "max-retries: 25\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".deltakernel", "config.yaml"), []byte(contents), 0o600))

	cfg, err := session.Resolve(dir, session.Overrides{MaxRetries: 3, LockTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, 2*time.Second, cfg.LockTimeout)
}

func TestResolveEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".deltakernel"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".deltakernel", "config.yaml"), []byte("max-retries: 25\n"), 0o600))
	t.Setenv("DELTAKERNEL_MAX_RETRIES", "7")

	cfg, err := session.Resolve(dir, session.Overrides{})
	require.NoError(t, err)
	require.Equal(t, 7, cfg.MaxRetries)
}

func TestResolveRejectsUnknownIcebergVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".deltakernel"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".deltakernel", "config.yaml"), []byte("iceberg-compat-version: V9\n"), 0o600))

	_, err := session.Resolve(dir, session.Overrides{})
	require.Error(t, err)
}
