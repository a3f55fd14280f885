// Package planner implements the create/replace planner: it turns a table
// descriptor plus an optional pre-existing catalog entry into either a
// no-op, an error, or a concrete set of Metadata/Protocol/generated actions
// a Transaction should commit.
package planner

import (
	"time"

	"github.com/deltakernel/txncore/internal/kernelerrors"
	"github.com/deltakernel/txncore/internal/types"
)

// Mode controls what happens when the target table already exists.
type Mode string

const (
	ModeAppend        Mode = "Append"
	ModeOverwrite      Mode = "Overwrite"
	ModeErrorIfExists Mode = "ErrorIfExists"
	ModeIgnore        Mode = "Ignore"
)

// Op names the logical create/replace operation requested.
type Op string

const (
	OpCreate          Op = "Create"
	OpReplace         Op = "Replace"
	OpCreateOrReplace Op = "CreateOrReplace"
)

// internalPropertyPrefixes are configuration keys the planner strips before
// comparing an existing table's properties against a proposed set: they are
// derived/internal state, not user intent, and must never cause a spurious
// DifferentProperties failure.
var internalPropertyPrefixes = []string{
	"delta.columnMapping.maxColumnId",
	"delta.columnMapping.physicalName",
	"delta.clustering.internal",
	"delta.minReaderVersion",
	"delta.minWriterVersion",
}

var coordinatedCommitsAndICTDependencyKeys = []string{
	types.ConfigEnableInCommitTimestamps,
	types.ConfigInCommitTimestampEnablementVersion,
	types.ConfigInCommitTimestampEnablementTimestamp,
}

// Descriptor is the caller's request: what table to create/replace, and how.
type Descriptor struct {
	Identifier        string
	Location          string
	Schema            *types.StructType // nil means "not provided"
	PartitionColumns  []string
	ClusteringColumns []string // nil means undefined; non-nil-but-empty means explicitly no clustering
	Properties        map[string]string
	Mode              Mode
	Op                Op

	// IsCTAS marks a CREATE TABLE AS SELECT issued through the option API
	// against an already-existing table, which labels the commit as WRITE
	// rather than CreateTable.
	IsCTAS bool
	// PartialOverwritePredicate, when non-empty, marks a CreateOrReplace as
	// a partial overwrite (replaceWhere), which also labels it WRITE.
	PartialOverwritePredicate string

	Managed       bool
	DataPathEmpty bool
}

// ExistingTable describes a pre-existing catalog entry, if any.
type ExistingTable struct {
	Snapshot types.Snapshot
	LogExists bool
}

// Plan is the outcome of a successful planning call.
type Plan struct {
	NoOp             bool
	Operation        string
	Metadata         types.Metadata
	Protocol         types.Protocol
	GeneratedActions []types.Action // removes + domain tombstones, in commit order
}

// Options carries planner behavior that is configuration, not per-call
// descriptor state.
type Options struct {
	AllowEmptySchemaTable bool
	Now                   func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Plan evaluates desc against existing (nil if the table does not exist)
// and produces either a Plan or a kernelerrors.Error.
func Plan(desc Descriptor, existing *ExistingTable, opts Options) (*Plan, error) {
	exists := existing != nil && existing.Snapshot.Exists()

	if desc.Mode == ModeIgnore && exists {
		return &Plan{NoOp: true}, nil
	}
	if desc.Mode == ModeErrorIfExists && exists {
		return nil, kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeTableAlreadyExists,
			"table %q already exists", desc.Identifier)
	}
	if desc.Op == OpCreate && exists {
		return nil, kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeTableAlreadyExists,
			"CREATE TABLE %q: table already exists", desc.Identifier)
	}
	tableOnDisk := existing != nil && existing.LogExists
	if desc.Op == OpReplace && !tableOnDisk {
		return nil, kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeReplaceTableNotFound,
			"REPLACE TABLE %q: no existing table found", desc.Identifier)
	}
	if desc.Op == OpCreateOrReplace && !exists && desc.Schema == nil {
		return nil, kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeSchemaNotProvided,
			"CREATE OR REPLACE TABLE %q: no existing table and no schema provided", desc.Identifier)
	}

	if desc.Managed && !desc.DataPathEmpty && !exists {
		return nil, kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeCreateWithNonEmptyLocation,
			"CREATE TABLE %q: managed table location %q is not empty", desc.Identifier, desc.Location)
	}
	if !desc.Managed && desc.Schema == nil && !tableOnDisk {
		return nil, kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeCreateExternalWithoutLog,
			"CREATE TABLE %q: external table without a schema requires an existing log at %q", desc.Identifier, desc.Location)
	}

	var newMeta types.Metadata
	if tableOnDisk && desc.Schema != nil && desc.Op != OpReplace {
		if err := validateAgainstExisting(desc, existing.Snapshot.Metadata); err != nil {
			return nil, err
		}
	}

	if desc.Schema != nil {
		newMeta = types.Metadata{
			ID:                existing.snapshotID(desc.Identifier),
			Schema:            *desc.Schema,
			PartitionColumns:  desc.PartitionColumns,
			ClusteringColumns: desc.ClusteringColumns,
			Configuration:     desc.Properties,
			CreatedTime:       opts.now(),
		}
		if !newMeta.Schema.IsEmpty() || opts.AllowEmptySchemaTable {
			// ok
		} else {
			return nil, kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeSchemaNotProvided,
				"table %q: empty schema is not allowed unless allow-empty-schema is set", desc.Identifier)
		}
	} else {
		newMeta = existing.Snapshot.Metadata
	}

	protocol := types.Protocol{MinReaderVersion: 1, MinWriterVersion: 2}
	if tableOnDisk {
		protocol = existing.Snapshot.Protocol
	}

	plan := &Plan{
		Operation: operationLabel(desc, exists),
		Metadata:  newMeta,
		Protocol:  protocol,
	}

	if desc.Op == OpReplace || (desc.Op == OpCreateOrReplace && tableOnDisk) {
		plan.GeneratedActions = generateReplaceActions(existing.Snapshot, desc, opts)
	}

	return plan, nil
}

func (e *ExistingTable) snapshotID(identifier string) string {
	if e != nil && e.Snapshot.Exists() && e.Snapshot.Metadata.ID != "" {
		return e.Snapshot.Metadata.ID
	}
	return identifier
}

// validateAgainstExisting runs the four-step validation pipeline spec.md
// §4.1 requires when an existing log is present and a schema is supplied.
// Plan does not call it for REPLACE, which may change the schema.
func validateAgainstExisting(desc Descriptor, existing types.Metadata) error {
	if !schemaEqual(*desc.Schema, existing.Schema) {
		return kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeDifferentSchema,
			"provided schema does not match the existing table's schema")
	}
	if !stringSliceEqual(desc.PartitionColumns, existing.PartitionColumns) {
		return kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeDifferentPartitioning,
			"provided partition columns do not match the existing table's partition columns")
	}
	if !clusteringEqual(desc.ClusteringColumns, existing.ClusteringColumns) {
		return kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeDifferentClustering,
			"provided clustering spec does not match the existing table's clustering spec")
	}
	if !filteredPropertiesEqual(desc.Properties, existing.Configuration, existing) {
		return kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeDifferentProperties,
			"provided table properties do not match the existing table's properties")
	}
	return nil
}

func schemaEqual(a, b types.StructType) bool {
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i].Name != b.Fields[i].Name || a.Fields[i].Nullable != b.Fields[i].Nullable {
			return false
		}
		if a.Fields[i].Type.Kind != b.Fields[i].Type.Kind {
			return false
		}
	}
	return true
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clusteringEqual(a, b []string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return stringSliceEqual(a, b)
}

// filteredPropertiesEqual compares proposed against existing after removing
// internal/derived keys from both sides (column-mapping/protocol/clustering
// internals), and, when the existing table has coordinated-commits
// configuration the proposed side lacks, dropping those and the dependent
// ICT-enablement keys from the existing side too before comparing.
func filteredPropertiesEqual(proposed, existing map[string]string, existingMeta types.Metadata) bool {
	p := filterInternalKeys(proposed)
	e := filterInternalKeys(existing)

	hadCoordinatedCommits := false
	for k := range existing {
		if len(k) >= len("delta.coordinatedCommits.") && k[:len("delta.coordinatedCommits.")] == "delta.coordinatedCommits." {
			hadCoordinatedCommits = true
			break
		}
	}
	proposesCoordinatedCommits := false
	for k := range proposed {
		if len(k) >= len("delta.coordinatedCommits.") && k[:len("delta.coordinatedCommits.")] == "delta.coordinatedCommits." {
			proposesCoordinatedCommits = true
			break
		}
	}
	if hadCoordinatedCommits && !proposesCoordinatedCommits {
		for k := range e {
			if len(k) >= len("delta.coordinatedCommits.") && k[:len("delta.coordinatedCommits.")] == "delta.coordinatedCommits." {
				delete(e, k)
			}
		}
		for _, k := range coordinatedCommitsAndICTDependencyKeys {
			delete(e, k)
		}
	}

	if len(p) != len(e) {
		return false
	}
	for k, v := range p {
		if e[k] != v {
			return false
		}
	}
	return true
}

func filterInternalKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if isInternalKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func isInternalKey(k string) bool {
	for _, prefix := range internalPropertyPrefixes {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// generateReplaceActions enumerates the current active files as removes,
// tombstones every active domain other than delta.clustering, and re-seeds
// the clustering domain.
func generateReplaceActions(snapshot types.Snapshot, desc Descriptor, opts Options) []types.Action {
	now := opts.now().UnixMilli()
	var actions []types.Action

	for _, add := range snapshot.ActiveFiles {
		actions = append(actions, types.ActionOfRemove(types.Remove{
			Path:              add.Path,
			DeletionTimestamp: now,
			DataChange:        true,
			PartitionValues:   add.PartitionValues,
		}))
	}

	// Clustering is re-seeded unconditionally below, never treated as a
	// plain domain tombstoned through the general loop.
	const clusteringDomain = "delta.clustering"
	for name, dm := range snapshot.ActiveDomains {
		if name == clusteringDomain {
			continue
		}
		actions = append(actions, types.ActionOfDomainMetadata(types.DomainMetadata{Domain: name, Configuration: dm.Configuration, Removed: true}))
	}

	clusteringConfig := "[]"
	if len(desc.ClusteringColumns) > 0 {
		clusteringConfig = encodeClusteringColumns(desc.ClusteringColumns)
	}
	actions = append(actions, types.ActionOfDomainMetadata(types.DomainMetadata{
		Domain:        clusteringDomain,
		Configuration: clusteringConfig,
	}))

	return actions
}

func encodeClusteringColumns(cols []string) string {
	out := "["
	for i, c := range cols {
		if i > 0 {
			out += ","
		}
		out += `"` + c + `"`
	}
	return out + "]"
}

// operationLabel picks the commitInfo.operation string per spec.md §6's
// mechanical rule.
func operationLabel(desc Descriptor, exists bool) string {
	switch desc.Op {
	case OpCreate:
		return "CREATE TABLE"
	case OpReplace:
		if desc.IsCTAS && exists {
			return "WRITE"
		}
		return "REPLACE TABLE"
	case OpCreateOrReplace:
		if desc.PartialOverwritePredicate != "" {
			return "WRITE"
		}
		if desc.IsCTAS && exists {
			return "WRITE"
		}
		return "CREATE OR REPLACE TABLE"
	default:
		return "WRITE"
	}
}
