package txn_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deltakernel/txncore/internal/kernelerrors"
	"github.com/deltakernel/txncore/internal/planner"
	"github.com/deltakernel/txncore/internal/txn"
	"github.com/deltakernel/txncore/internal/types"
)

func testSchema() types.StructType {
	return types.StructType{Fields: []types.Field{
		{Name: "a", Type: types.DataType{Kind: types.KindInteger}},
		{Name: "b", Type: types.DataType{Kind: types.KindString}},
	}}
}

// TestScenarioCreateThenInsertNoContention exercises S1: an empty location,
// CREATE TABLE followed by an INSERT, with no competing writer.
func TestScenarioCreateThenInsertNoContention(t *testing.T) {
	eng := newFakeEngine()

	createDesc := planner.Descriptor{
		Identifier: "t", Location: eng.dir, Schema: ptrSchema(testSchema()),
		PartitionColumns: []string{"a"}, Mode: planner.ModeErrorIfExists, Op: planner.OpCreate,
		Managed: true, DataPathEmpty: true,
	}
	createPlan, err := planner.Plan(createDesc, nil, planner.Options{Now: fixedNow})
	require.NoError(t, err)
	require.False(t, createPlan.NoOp)

	createTx := txn.New(eng, types.Snapshot{Version: -1}, txn.Config{
		LogDir: eng.dir, Operation: createPlan.Operation, Clock: fixedNow,
	}, createPlan.GeneratedActions)
	createTx.UpdateMetadata(createPlan.Metadata)
	createTx.UpdateProtocol(createPlan.Protocol)

	createResult, err := createTx.Commit(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), createResult.CommittedVersion)

	insertTx := txn.New(eng, types.Snapshot{
		Version: 0, Protocol: createPlan.Protocol, Metadata: createPlan.Metadata,
	}, txn.Config{LogDir: eng.dir, Operation: "WRITE", Clock: fixedNow}, nil)
	insertTx.StageDataActions(
		types.ActionOfAdd(types.Add{Path: "part-0001.parquet", Size: 10, DataChange: true}),
	)
	insertResult, err := insertTx.Commit(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), insertResult.CommittedVersion)
}

// TestScenarioCreateCollision exercises S2: two creators race on an empty
// location; exactly one wins version 0. The loser fails as a concurrent
// conflict rather than a table-already-exists usage error, since both
// started from "no table yet" — and because a CREATE's winning commit
// always carries its own metadata action, the resolver's unconditional
// metadata-changed check is what the loser actually observes.
func TestScenarioCreateCollision(t *testing.T) {
	eng := newFakeEngine()
	schema := testSchema()

	newCreateTx := func() *txn.Transaction {
		desc := planner.Descriptor{
			Identifier: "t", Location: eng.dir, Schema: &schema,
			Mode: planner.ModeErrorIfExists, Op: planner.OpCreate, Managed: true, DataPathEmpty: true,
		}
		plan, err := planner.Plan(desc, nil, planner.Options{Now: fixedNow})
		require.NoError(t, err)
		tx := txn.New(eng, types.Snapshot{Version: -1}, txn.Config{
			LogDir: eng.dir, Operation: plan.Operation, Clock: fixedNow, MaxRetries: 0,
		}, plan.GeneratedActions)
		tx.UpdateMetadata(plan.Metadata)
		tx.UpdateProtocol(plan.Protocol)
		return tx
	}

	winner := newCreateTx()
	loser := newCreateTx()

	// The winner writes first, occupying version 0 before the loser attempts.
	winResult, err := winner.Commit(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), winResult.CommittedVersion)

	_, err = loser.Commit(context.Background())
	require.Error(t, err)
	require.True(t, kernelerrors.Is(err, kernelerrors.CodeMetadataChanged))
}

// TestScenarioReplace exercises S7: REPLACE on a table with active files and
// a user domain. It checks that the plan generates one remove per active
// file, a tombstone for the user domain and a fresh clustering reseed, and
// that the replace commits as the next version.
func TestScenarioReplace(t *testing.T) {
	eng := newFakeEngine()
	oldSchema := testSchema()

	existingSnapshot := types.Snapshot{
		Version:  3,
		Protocol: types.Protocol{MinReaderVersion: 1, MinWriterVersion: 2},
		Metadata: types.Metadata{ID: "t", Schema: oldSchema},
		ActiveFiles: map[string]types.Add{
			"f1.parquet": {Path: "f1.parquet", DataChange: true},
			"f2.parquet": {Path: "f2.parquet", DataChange: true},
			"f3.parquet": {Path: "f3.parquet", DataChange: true},
		},
		ActiveDomains: map[string]types.DomainMetadata{
			"d1": {Domain: "d1", Configuration: `{"k":"v"}`},
		},
	}
	eng.putCommit(3, []types.Action{
		types.ActionOfCommitInfo(types.CommitInfo{Timestamp: fixedNow().UnixMilli()}),
	}, fixedNow().UnixMilli())

	newSchema := types.StructType{Fields: []types.Field{
		{Name: "x", Type: types.DataType{Kind: types.KindLong}},
	}}
	desc := planner.Descriptor{
		Identifier: "t", Location: eng.dir, Schema: &newSchema,
		Op: planner.OpReplace, Mode: planner.ModeOverwrite,
	}
	existing := &planner.ExistingTable{Snapshot: existingSnapshot, LogExists: true}
	plan, err := planner.Plan(desc, existing, planner.Options{Now: fixedNow})
	require.NoError(t, err)
	require.False(t, plan.NoOp)

	var removeCount, tombstoneCount, clusterSeedCount int
	for _, a := range plan.GeneratedActions {
		switch {
		case a.Remove != nil:
			removeCount++
		case a.DomainMetadata != nil && a.DomainMetadata.Domain == "d1" && a.DomainMetadata.Removed:
			tombstoneCount++
		case a.DomainMetadata != nil && a.DomainMetadata.Domain == "delta.clustering" && !a.DomainMetadata.Removed:
			clusterSeedCount++
		}
	}
	require.Equal(t, 3, removeCount)
	require.Equal(t, 1, tombstoneCount)
	require.Equal(t, 1, clusterSeedCount)

	tx := txn.New(eng, existingSnapshot, txn.Config{
		LogDir: eng.dir, Operation: plan.Operation, Clock: fixedNow, IsReplace: true,
	}, plan.GeneratedActions)
	tx.UpdateMetadata(plan.Metadata)
	tx.UpdateProtocol(plan.Protocol)

	result, err := tx.Commit(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(4), result.CommittedVersion)
}

func ptrSchema(s types.StructType) *types.StructType { return &s }
