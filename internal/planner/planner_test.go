package planner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deltakernel/txncore/internal/kernelerrors"
	"github.com/deltakernel/txncore/internal/planner"
	"github.com/deltakernel/txncore/internal/types"
)

func schema() types.StructType {
	return types.StructType{Fields: []types.Field{
		{Name: "id", Type: types.DataType{Kind: types.KindLong}},
	}}
}

func fixedNow() time.Time { return time.UnixMilli(1_700_000_000_000).UTC() }

func TestPlanIgnoreExistingIsNoOp(t *testing.T) {
	desc := planner.Descriptor{Identifier: "t", Mode: planner.ModeIgnore, Op: planner.OpCreate, Schema: ptr(schema()), Managed: true, DataPathEmpty: true}
	existing := &planner.ExistingTable{Snapshot: types.Snapshot{Version: 0}, LogExists: true}

	plan, err := planner.Plan(desc, existing, planner.Options{Now: fixedNow})
	require.NoError(t, err)
	require.True(t, plan.NoOp)
}

func TestPlanErrorIfExistsFails(t *testing.T) {
	desc := planner.Descriptor{Identifier: "t", Mode: planner.ModeErrorIfExists, Op: planner.OpCreate, Schema: ptr(schema())}
	existing := &planner.ExistingTable{Snapshot: types.Snapshot{Version: 0}, LogExists: true}

	_, err := planner.Plan(desc, existing, planner.Options{Now: fixedNow})
	require.True(t, kernelerrors.Is(err, kernelerrors.CodeTableAlreadyExists))
}

func TestPlanCreateOnExistingFails(t *testing.T) {
	desc := planner.Descriptor{Identifier: "t", Op: planner.OpCreate, Schema: ptr(schema())}
	existing := &planner.ExistingTable{Snapshot: types.Snapshot{Version: 0}, LogExists: true}

	_, err := planner.Plan(desc, existing, planner.Options{Now: fixedNow})
	require.True(t, kernelerrors.Is(err, kernelerrors.CodeTableAlreadyExists))
}

func TestPlanReplaceWithoutExistingFails(t *testing.T) {
	desc := planner.Descriptor{Identifier: "t", Op: planner.OpReplace, Schema: ptr(schema())}
	_, err := planner.Plan(desc, nil, planner.Options{Now: fixedNow})
	require.True(t, kernelerrors.Is(err, kernelerrors.CodeReplaceTableNotFound))
}

func TestPlanCreateOrReplaceWithoutSchemaOrExistingFails(t *testing.T) {
	desc := planner.Descriptor{Identifier: "t", Op: planner.OpCreateOrReplace}
	_, err := planner.Plan(desc, nil, planner.Options{Now: fixedNow})
	require.True(t, kernelerrors.Is(err, kernelerrors.CodeSchemaNotProvided))
}

func TestPlanManagedCreateWithNonEmptyLocationFails(t *testing.T) {
	desc := planner.Descriptor{Identifier: "t", Op: planner.OpCreate, Schema: ptr(schema()), Managed: true, DataPathEmpty: false}
	_, err := planner.Plan(desc, nil, planner.Options{Now: fixedNow})
	require.True(t, kernelerrors.Is(err, kernelerrors.CodeCreateWithNonEmptyLocation))
}

func TestPlanCreateSucceeds(t *testing.T) {
	desc := planner.Descriptor{
		Identifier: "t", Op: planner.OpCreate, Schema: ptr(schema()), Managed: true, DataPathEmpty: true,
	}
	plan, err := planner.Plan(desc, nil, planner.Options{Now: fixedNow})
	require.NoError(t, err)
	require.Equal(t, "CREATE TABLE", plan.Operation)
	require.Equal(t, schema(), plan.Metadata.Schema)
}

func TestPlanDetectsDifferentSchema(t *testing.T) {
	existingMeta := types.Metadata{Schema: schema()}
	existing := &planner.ExistingTable{Snapshot: types.Snapshot{Version: 0, Metadata: existingMeta}, LogExists: true}

	otherSchema := types.StructType{Fields: []types.Field{{Name: "other", Type: types.DataType{Kind: types.KindString}}}}
	desc := planner.Descriptor{Identifier: "t", Op: planner.OpCreateOrReplace, Schema: &otherSchema, Managed: true, DataPathEmpty: true}

	_, err := planner.Plan(desc, existing, planner.Options{Now: fixedNow})
	require.True(t, kernelerrors.Is(err, kernelerrors.CodeDifferentSchema))
}

func TestPlanReplaceGeneratesRemovesAndClusteringReseed(t *testing.T) {
	snap := types.Snapshot{
		Version:  5,
		Metadata: types.Metadata{Schema: schema()},
		ActiveFiles: map[string]types.Add{
			"f1.parquet": {Path: "f1.parquet", Size: 10},
		},
		ActiveDomains: map[string]types.DomainMetadata{
			"app.custom": {Domain: "app.custom", Configuration: "{}"},
		},
	}
	existing := &planner.ExistingTable{Snapshot: snap, LogExists: true}
	desc := planner.Descriptor{Identifier: "t", Op: planner.OpReplace, Schema: ptr(schema())}

	plan, err := planner.Plan(desc, existing, planner.Options{Now: fixedNow})
	require.NoError(t, err)
	require.Equal(t, "REPLACE TABLE", plan.Operation)

	var sawRemove, sawTombstone, sawClustering bool
	for _, a := range plan.GeneratedActions {
		if a.Remove != nil && a.Remove.Path == "f1.parquet" {
			sawRemove = true
		}
		if a.DomainMetadata != nil && a.DomainMetadata.Domain == "app.custom" && a.DomainMetadata.Removed {
			sawTombstone = true
		}
		if a.DomainMetadata != nil && a.DomainMetadata.Domain == "delta.clustering" && !a.DomainMetadata.Removed {
			sawClustering = true
		}
	}
	require.True(t, sawRemove)
	require.True(t, sawTombstone)
	require.True(t, sawClustering)
}

func TestPlanReplaceAllowsDifferentSchema(t *testing.T) {
	existingMeta := types.Metadata{Schema: schema()}
	existing := &planner.ExistingTable{Snapshot: types.Snapshot{Version: 5, Metadata: existingMeta}, LogExists: true}

	newSchema := types.StructType{Fields: []types.Field{{Name: "other", Type: types.DataType{Kind: types.KindString}}}}
	desc := planner.Descriptor{Identifier: "t", Op: planner.OpReplace, Schema: &newSchema}

	plan, err := planner.Plan(desc, existing, planner.Options{Now: fixedNow})
	require.NoError(t, err)
	require.Equal(t, newSchema, plan.Metadata.Schema)
}

func TestPlanCTASOnExistingLabelsWrite(t *testing.T) {
	existing := &planner.ExistingTable{Snapshot: types.Snapshot{Version: 1, Metadata: types.Metadata{Schema: schema()}}, LogExists: true}
	desc := planner.Descriptor{Identifier: "t", Op: planner.OpReplace, Schema: ptr(schema()), IsCTAS: true}

	plan, err := planner.Plan(desc, existing, planner.Options{Now: fixedNow})
	require.NoError(t, err)
	require.Equal(t, "WRITE", plan.Operation)
}

func ptr[T any](v T) *T { return &v }
