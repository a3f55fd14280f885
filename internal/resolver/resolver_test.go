package resolver_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deltakernel/txncore/internal/actioncodec"
	"github.com/deltakernel/txncore/internal/engine"
	"github.com/deltakernel/txncore/internal/kernelerrors"
	"github.com/deltakernel/txncore/internal/resolver"
	"github.com/deltakernel/txncore/internal/types"
)

type fakeFile struct {
	data []byte
	mod  int64
}

type fakeEngine struct {
	dir string
	files map[string]fakeFile
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{dir: "/table/_delta_log", files: map[string]fakeFile{}}
}

func (f *fakeEngine) putCommit(version int64, actions []types.Action, modTimeMs int64) {
	var buf bytes.Buffer
	if err := actioncodec.EncodeAll(&buf, actions); err != nil {
		panic(err)
	}
	path := fmt.Sprintf("%s/%020d.json", f.dir, version)
	f.files[path] = fakeFile{data: buf.Bytes(), mod: modTimeMs}
}

func (f *fakeEngine) ListFrom(_ context.Context, dir, prefix string) ([]engine.FileStatus, error) {
	var out []engine.FileStatus
	for path, ff := range f.files {
		if len(path) < len(dir) || path[:len(dir)] != dir {
			continue
		}
		name := path[len(dir)+1:]
		if name < prefix {
			continue
		}
		out = append(out, engine.FileStatus{Path: path, Size: int64(len(ff.data)), ModificationTime: ff.mod})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeEngine) ReadJSON(_ context.Context, path string) (io.ReadCloser, error) {
	ff, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("not found: %s", path)
	}
	return io.NopCloser(bytes.NewReader(ff.data)), nil
}

func (f *fakeEngine) WriteJSONAtomically(_ context.Context, path string, r io.Reader, overwrite bool) error {
	if _, exists := f.files[path]; exists && !overwrite {
		return engine.ErrFileAlreadyExists
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.files[path] = fakeFile{data: b}
	return nil
}

func (f *fakeEngine) Mkdirs(context.Context, string) (bool, error) { return true, nil }

func TestResolveFailsOnProtocolChange(t *testing.T) {
	eng := newFakeEngine()
	p := types.Protocol{MinReaderVersion: 3, MinWriterVersion: 7}
	eng.putCommit(1, []types.Action{types.ActionOfProtocol(p)}, 1000)

	_, err := resolver.Resolve(context.Background(), eng, resolver.Request{
		LogDir:         eng.dir,
		LosingSnapshot: types.Snapshot{Version: 0},
		AttemptVersion: 1,
	})
	require.Error(t, err)
	require.True(t, kernelerrors.Is(err, kernelerrors.CodeProtocolChanged))
}

func TestResolveFailsOnIdempotencyConflict(t *testing.T) {
	eng := newFakeEngine()
	eng.putCommit(1, []types.Action{types.ActionOfTxn(types.Txn{AppID: "job-1", Version: 3})}, 1000)

	_, err := resolver.Resolve(context.Background(), eng, resolver.Request{
		LogDir:         eng.dir,
		LosingSnapshot: types.Snapshot{Version: 0},
		AttemptVersion: 1,
		LosingTxn:      &resolver.LosingTxn{AppID: "job-1", Version: 2},
	})
	require.Error(t, err)
	require.True(t, kernelerrors.Is(err, kernelerrors.CodeConcurrentTransaction))
}

func TestResolveFailsOnGapInLog(t *testing.T) {
	eng := newFakeEngine()
	eng.putCommit(2, []types.Action{types.ActionOfCommitInfo(types.CommitInfo{Timestamp: 1})}, 1000)

	_, err := resolver.Resolve(context.Background(), eng, resolver.Request{
		LogDir:         eng.dir,
		LosingSnapshot: types.Snapshot{Version: 0},
		AttemptVersion: 1,
	})
	require.Error(t, err)
	require.True(t, kernelerrors.Is(err, kernelerrors.CodeGapInLog))
}

func TestResolveSucceedsOnDisjointDomainMetadata(t *testing.T) {
	eng := newFakeEngine()
	eng.putCommit(1, []types.Action{
		types.ActionOfCommitInfo(types.CommitInfo{Timestamp: 5000}),
		types.ActionOfDomainMetadata(types.DomainMetadata{Domain: "app.other", Configuration: "{}"}),
	}, 5000)

	rebase, err := resolver.Resolve(context.Background(), eng, resolver.Request{
		LogDir:                eng.dir,
		LosingSnapshot:        types.Snapshot{Version: 0},
		AttemptVersion:        1,
		LosingDomainMetadatas: []types.DomainMetadata{{Domain: "app.mine", Configuration: "{}"}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), rebase.LatestWinningVersion)
	require.Equal(t, int64(5000), rebase.LatestCommitTimestamp)
}

func TestResolveFailsOnOverlappingDomainMetadata(t *testing.T) {
	eng := newFakeEngine()
	eng.putCommit(1, []types.Action{
		types.ActionOfDomainMetadata(types.DomainMetadata{Domain: "app.shared", Configuration: "{}"}),
	}, 5000)

	_, err := resolver.Resolve(context.Background(), eng, resolver.Request{
		LogDir:                eng.dir,
		LosingSnapshot:        types.Snapshot{Version: 0},
		AttemptVersion:        1,
		LosingDomainMetadatas: []types.DomainMetadata{{Domain: "app.shared", Configuration: "{}"}},
	})
	require.Error(t, err)
	require.True(t, kernelerrors.Is(err, kernelerrors.CodeConcurrentDomainMetadata))
}

func TestResolveRewritesRowTrackingWatermark(t *testing.T) {
	eng := newFakeEngine()
	eng.putCommit(1, []types.Action{
		types.ActionOfDomainMetadata(types.RowTrackingDomainMetadata(10)),
	}, 5000)

	baseRowID := int64(0)
	addAction := types.ActionOfAdd(types.Add{Path: "f1.parquet", Size: 10})
	_ = baseRowID

	rebase, err := resolver.Resolve(context.Background(), eng, resolver.Request{
		LogDir:                eng.dir,
		LosingSnapshot:        types.Snapshot{Version: 0},
		AttemptVersion:        1,
		LosingDataActions:     []types.Action{addAction},
		LosingDomainMetadatas: []types.DomainMetadata{types.RowTrackingDomainMetadata(3)},
		Protocol:              types.Protocol{WriterFeatures: []string{types.FeatureRowTracking}},
	})
	require.NoError(t, err)
	require.Len(t, rebase.RewrittenDataActions, 1)
	require.NotNil(t, rebase.RewrittenDataActions[0].Add.BaseRowID)
	require.Equal(t, int64(11), *rebase.RewrittenDataActions[0].Add.BaseRowID)

	var sawRowTracking bool
	for _, dm := range rebase.RewrittenDomainMetadatas {
		if dm.Domain == types.RowTrackingDomain {
			sawRowTracking = true
			wm, ok := types.ParseRowTrackingWatermark(dm.Configuration)
			require.True(t, ok)
			require.Equal(t, int64(11), wm)
		}
	}
	require.True(t, sawRowTracking)
}

// TestResolveAssignsRowIDsOnFreshRowTrackingTable covers the bug fixed in
// this package: a table at watermark 0 whose winning commits never touched
// the row-tracking domain must still have baseRowId assigned for the loser's
// adds, because the feature lives in the protocol, not in observed domain
// activity.
func TestResolveAssignsRowIDsOnFreshRowTrackingTable(t *testing.T) {
	eng := newFakeEngine()
	eng.putCommit(1, []types.Action{
		types.ActionOfDomainMetadata(types.DomainMetadata{Domain: "app.other", Configuration: "{}"}),
	}, 5000)

	addAction := types.ActionOfAdd(types.Add{Path: "f1.parquet", Size: 10})
	rebase, err := resolver.Resolve(context.Background(), eng, resolver.Request{
		LogDir:            eng.dir,
		LosingSnapshot:    types.Snapshot{Version: 0},
		AttemptVersion:    1,
		LosingDataActions: []types.Action{addAction},
		Protocol:          types.Protocol{WriterFeatures: []string{types.FeatureRowTracking}},
	})
	require.NoError(t, err)
	require.Len(t, rebase.RewrittenDataActions, 1)
	require.NotNil(t, rebase.RewrittenDataActions[0].Add.BaseRowID)
	require.Equal(t, int64(1), *rebase.RewrittenDataActions[0].Add.BaseRowID)
}

// TestResolveSkipsRowIDRewriteWithoutRowTrackingFeature asserts the inverse:
// without the writer feature in the protocol, adds pass through untouched
// even if a winning commit happened to carry a row-tracking record.
func TestResolveSkipsRowIDRewriteWithoutRowTrackingFeature(t *testing.T) {
	eng := newFakeEngine()
	eng.putCommit(1, []types.Action{
		types.ActionOfDomainMetadata(types.RowTrackingDomainMetadata(10)),
	}, 5000)

	addAction := types.ActionOfAdd(types.Add{Path: "f1.parquet", Size: 10})
	rebase, err := resolver.Resolve(context.Background(), eng, resolver.Request{
		LogDir:            eng.dir,
		LosingSnapshot:    types.Snapshot{Version: 0},
		AttemptVersion:    1,
		LosingDataActions: []types.Action{addAction},
	})
	require.NoError(t, err)
	require.Len(t, rebase.RewrittenDataActions, 1)
	require.Nil(t, rebase.RewrittenDataActions[0].Add.BaseRowID)
}
