// Package icebergcompat implements the pluggable Iceberg-compatibility rule
// engine: a versioned set of property enforcers and compat checks that run
// whenever a table enables delta.enableIcebergCompatVn.
package icebergcompat

import (
	"github.com/deltakernel/txncore/internal/kernelerrors"
	"github.com/deltakernel/txncore/internal/types"
)

// Version names a supported Iceberg-compatibility mode.
type Version string

const (
	V2 Version = "V2"
	V3 Version = "V3"
)

// EnableKey returns the table-config key that turns on v.
func EnableKey(v Version) string {
	switch v {
	case V2:
		return types.ConfigEnableIcebergCompatV2
	case V3:
		return types.ConfigEnableIcebergCompatV3
	default:
		return ""
	}
}

// AllVersions lists every version this engine knows, in the order the
// exclusive-version check compares against.
func AllVersions() []Version { return []Version{V2, V3} }

// Enforcer validates and, on new tables, auto-sets one table-config key.
type Enforcer struct {
	Key          string
	AutoSetValue string
	Validate     func(value string, present bool) bool
	// PostProcess runs after every enforcer has been validated/auto-set; it
	// may perform a side-effecting metadata transform (e.g. allocating
	// column-mapping physical names) and returns the transformed Metadata.
	PostProcess func(types.Metadata) types.Metadata
}

// TypeChange records a single schema type evolution the caller wants
// validated for Iceberg-legality (e.g. a widening ALTER COLUMN). The engine
// itself does not track schema history; callers that perform schema
// evolution pass the changes they are about to apply.
type TypeChange struct {
	Column string
	From   types.DataType
	To     types.DataType
}

// CompatCheck inspects the fully-enforced metadata/protocol and returns an
// error if the table is not compatible.
type CompatCheck func(ctx CheckContext) error

// CheckContext is everything a CompatCheck needs to evaluate.
type CheckContext struct {
	Version     Version
	Metadata    types.Metadata
	Protocol    types.Protocol
	IsNewTable  bool
	TypeChanges []TypeChange
}

// Spec is one versioned rule set.
type Spec struct {
	Version          Version
	Enforcers        []Enforcer
	RequiredFeatures []string
	Checks           []CompatCheck
}

var allowedLeafKindsV2 = map[types.Kind]bool{
	types.KindBoolean: true, types.KindByte: true, types.KindShort: true,
	types.KindInteger: true, types.KindLong: true, types.KindFloat: true,
	types.KindDouble: true, types.KindDecimal: true, types.KindString: true,
	types.KindBinary: true, types.KindDate: true, types.KindTimestamp: true,
	types.KindTimestampNtz: true,
}

// allowedLeafKindsV3 is identical to V2 pending variant, which no check here
// accepts yet (spec.md §4.4: "V3 is identical pending variant").
var allowedLeafKindsV3 = allowedLeafKindsV2

func typeWhitelistCheck(allowed map[types.Kind]bool) CompatCheck {
	return func(ctx CheckContext) error {
		for _, leaf := range ctx.Metadata.Schema.Leaves() {
			if !allowed[leaf.Kind] {
				return kernelerrors.New(kernelerrors.KindCompat, kernelerrors.CodeUnsupportedType,
					"type %q is not allowed under Iceberg compatibility %s", leaf.Kind, ctx.Version)
			}
		}
		return nil
	}
}

func partitionTypeWhitelistCheck() CompatCheck {
	return func(ctx CheckContext) error {
		for _, col := range ctx.Metadata.PartitionColumns {
			field, ok := ctx.Metadata.Schema.FindField(col)
			if !ok {
				continue // schema-shape validity is Metadata's own invariant, not this check's job
			}
			if !field.Type.IsScalar() {
				return kernelerrors.New(kernelerrors.KindCompat, kernelerrors.CodeUnsupportedPartition,
					"partition column %q has non-scalar type %q", col, field.Type.Kind)
			}
		}
		return nil
	}
}

func noDeletionVectorsCheck() CompatCheck {
	return func(ctx CheckContext) error {
		if ctx.Protocol.HasWriterFeature(types.FeatureDeletionVectors) {
			return kernelerrors.New(kernelerrors.KindCompat, kernelerrors.CodeIncompatibleProperty,
				"deletion vectors are incompatible with Iceberg compatibility %s", ctx.Version)
		}
		return nil
	}
}

// typeWideningLegal reports whether from -> to is a widening Iceberg accepts:
// integer widenings along byte < short < integer < long, float -> double,
// and decimal precision-only increases at the same scale.
func typeWideningLegal(from, to types.DataType) bool {
	if from.Kind == to.Kind {
		if from.Kind == types.KindDecimal {
			return to.Scale == from.Scale && to.Precision >= from.Precision
		}
		return true
	}
	rank := map[types.Kind]int{types.KindByte: 0, types.KindShort: 1, types.KindInteger: 2, types.KindLong: 3}
	if fr, fok := rank[from.Kind]; fok {
		if tr, tok := rank[to.Kind]; tok {
			return tr >= fr
		}
	}
	if from.Kind == types.KindFloat && to.Kind == types.KindDouble {
		return true
	}
	return false
}

func typeWideningLegalityCheck() CompatCheck {
	return func(ctx CheckContext) error {
		for _, change := range ctx.TypeChanges {
			if !typeWideningLegal(change.From, change.To) {
				return kernelerrors.New(kernelerrors.KindCompat, kernelerrors.CodeUnsupportedWidening,
					"column %q: type change %s -> %s is not Iceberg-legal", change.Column, change.From.Kind, change.To.Kind)
			}
		}
		return nil
	}
}

func exclusiveVersionCheck(self Version) CompatCheck {
	return func(ctx CheckContext) error {
		for _, v := range AllVersions() {
			if v == self {
				continue
			}
			if ctx.Metadata.ConfigBool(EnableKey(v)) {
				return kernelerrors.New(kernelerrors.KindCompat, kernelerrors.CodeIncompatibleVersion,
					"Iceberg compatibility %s cannot be enabled alongside %s", self, v)
			}
		}
		return nil
	}
}

// columnMappingEnforcer requires delta.columnMapping.mode to be "name" or
// "id", auto-setting "name" on new tables.
func columnMappingEnforcer() Enforcer {
	return Enforcer{
		Key:          types.ConfigColumnMappingMode,
		AutoSetValue: string(types.ColumnMappingName),
		Validate: func(value string, present bool) bool {
			if !present {
				return false
			}
			return types.ColumnMappingMode(value) == types.ColumnMappingName || types.ColumnMappingMode(value) == types.ColumnMappingID
		},
	}
}

// numRecordsStatsEnforcer requires the delta.dataSkippingStatsColumns key to
// be present in the configuration; its value is not inspected, and there is
// no auto-set value, since the stats contents are an engine-side
// stats-writer contract rather than a plain config flag this package can
// invent.
func numRecordsStatsEnforcer() Enforcer {
	return Enforcer{
		Key: "delta.dataSkippingStatsColumns",
		Validate: func(value string, present bool) bool {
			return present
		},
	}
}

// V2Spec is the Iceberg V2-compatibility rule set.
func V2Spec() Spec {
	return Spec{
		Version:          V2,
		Enforcers:        []Enforcer{columnMappingEnforcer()},
		RequiredFeatures: []string{types.FeatureColumnMapping},
		Checks: []CompatCheck{
			exclusiveVersionCheck(V2),
			typeWhitelistCheck(allowedLeafKindsV2),
			partitionTypeWhitelistCheck(),
			noDeletionVectorsCheck(),
			typeWideningLegalityCheck(),
		},
	}
}

// V3Spec is the Iceberg V3-compatibility rule set: V2's rules plus
// row-tracking as a required feature and the numRecords stats enforcer.
func V3Spec() Spec {
	return Spec{
		Version:          V3,
		Enforcers:        []Enforcer{columnMappingEnforcer(), numRecordsStatsEnforcer()},
		RequiredFeatures: []string{types.FeatureColumnMapping, types.FeatureRowTracking},
		Checks: []CompatCheck{
			exclusiveVersionCheck(V3),
			typeWhitelistCheck(allowedLeafKindsV3),
			partitionTypeWhitelistCheck(),
			noDeletionVectorsCheck(),
			typeWideningLegalityCheck(),
		},
	}
}

func specFor(v Version) Spec {
	if v == V3 {
		return V3Spec()
	}
	return V2Spec()
}

// Run executes the rule engine for whichever version is enabled in meta's
// configuration (if any). It returns the possibly-updated Metadata (nil if
// no enforcer changed anything) and an error for any failed enforcer,
// missing required feature, or failed check.
//
// previouslyEnabled, when non-empty, is the enable key that was already on
// before this transaction (used for the config-change guard: toggling the
// flag on an existing table, either direction, fails).
func Run(meta types.Metadata, protocol types.Protocol, isNewTable bool, typeChanges []TypeChange, previouslyEnabled Version) (*types.Metadata, error) {
	var active Version
	var found bool
	for _, v := range AllVersions() {
		if meta.ConfigBool(EnableKey(v)) {
			active, found = v, true
			break
		}
	}

	if !isNewTable {
		wasEnabled := previouslyEnabled != ""
		if wasEnabled != found || (found && previouslyEnabled != active) {
			code := kernelerrors.CodeEnablingOnExisting
			if wasEnabled {
				code = kernelerrors.CodeDisablingOnExisting
			}
			return nil, kernelerrors.New(kernelerrors.KindCompat, code,
				"Iceberg compatibility mode cannot be changed on an existing table")
		}
	}

	if !found {
		return nil, nil
	}

	spec := specFor(active)
	current := meta
	changed := false

	for _, enforcer := range spec.Enforcers {
		value, present := current.Config(enforcer.Key)
		if enforcer.Validate(value, present) {
			continue
		}
		if isNewTable && !present && enforcer.AutoSetValue != "" {
			current = current.WithConfiguration(map[string]string{enforcer.Key: enforcer.AutoSetValue})
			changed = true
			continue
		}
		return nil, kernelerrors.New(kernelerrors.KindCompat, kernelerrors.CodeIncompatibleProperty,
			"table property %q does not satisfy Iceberg compatibility %s", enforcer.Key, active)
	}

	for _, enforcer := range spec.Enforcers {
		if enforcer.PostProcess != nil {
			current = enforcer.PostProcess(current)
		}
	}

	for _, feature := range spec.RequiredFeatures {
		if !protocol.HasWriterFeature(feature) {
			return nil, kernelerrors.New(kernelerrors.KindCompat, kernelerrors.CodeRequiredFeatureMissing,
				"Iceberg compatibility %s requires writer feature %q", active, feature)
		}
	}

	ctx := CheckContext{Version: active, Metadata: current, Protocol: protocol, IsNewTable: isNewTable, TypeChanges: typeChanges}
	for _, check := range spec.Checks {
		if err := check(ctx); err != nil {
			return nil, err
		}
	}

	if !changed {
		return nil, nil
	}
	return &current, nil
}
