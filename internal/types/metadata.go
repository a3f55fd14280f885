package types

import "time"

// Reserved metadata configuration keys the transaction core reads directly.
// (§6 of the spec; ICT/compat/row-tracking/checkpoint/log-compaction keys.)
const (
	ConfigAppendOnly               = "delta.appendOnly"
	ConfigEnableInCommitTimestamps = "delta.enableInCommitTimestamps"
	ConfigInCommitTimestampEnablementVersion = "delta.inCommitTimestampEnablementVersion"
	ConfigInCommitTimestampEnablementTimestamp = "delta.inCommitTimestampEnablementTimestamp"
	ConfigEnableRowTracking        = "delta.enableRowTracking"
	ConfigColumnMappingMode        = "delta.columnMapping.mode"
	ConfigEnableIcebergCompatV2    = "delta.enableIcebergCompatV2"
	ConfigEnableIcebergCompatV3    = "delta.enableIcebergCompatV3"
	ConfigCheckpointInterval       = "delta.checkpointInterval"
	ConfigDeletedFileRetention     = "delta.deletedFileRetentionDuration"
	ConfigLogCompactionInterval    = "delta.logCompactionInterval"
	ConfigChecksumValidityWindow   = "delta.checksumValidityWindow"
)

// ColumnMappingMode is the value space of delta.columnMapping.mode.
type ColumnMappingMode string

const (
	ColumnMappingNone ColumnMappingMode = "none"
	ColumnMappingName ColumnMappingMode = "name"
	ColumnMappingID   ColumnMappingMode = "id"
)

const defaultCheckpointInterval = 10

// Metadata describes the logical shape of the table: its schema, partition
// columns, free-form configuration, and descriptive fields.
type Metadata struct {
	ID               string
	Name             string
	Description      string
	Schema           StructType
	PartitionColumns []string
	ClusteringColumns []string // nil means "no clustering"; non-nil-but-empty means "explicitly no clustering"
	Configuration    map[string]string
	CreatedTime      time.Time
}

// Config reads a configuration key, returning ("", false) if unset.
func (m Metadata) Config(key string) (string, bool) {
	v, ok := m.Configuration[key]
	return v, ok
}

// ConfigBool reads a boolean configuration key, defaulting to false.
func (m Metadata) ConfigBool(key string) bool {
	v, ok := m.Config(key)
	return ok && v == "true"
}

// IsAppendOnly reports whether delta.appendOnly is set to true.
func (m Metadata) IsAppendOnly() bool {
	return m.ConfigBool(ConfigAppendOnly)
}

// InCommitTimestampsEnabled reports whether delta.enableInCommitTimestamps
// is set to true.
func (m Metadata) InCommitTimestampsEnabled() bool {
	return m.ConfigBool(ConfigEnableInCommitTimestamps)
}

// RowTrackingEnabled reports whether delta.enableRowTracking is set to true.
func (m Metadata) RowTrackingEnabled() bool {
	return m.ConfigBool(ConfigEnableRowTracking)
}

// HasClustering reports whether a clustering spec is defined at all (as
// opposed to a table that has never had clustering configured).
func (m Metadata) HasClustering() bool {
	return m.ClusteringColumns != nil
}

// CheckpointInterval reads delta.checkpointInterval, defaulting to 10.
func (m Metadata) CheckpointInterval() int {
	v, ok := m.Config(ConfigCheckpointInterval)
	if !ok {
		return defaultCheckpointInterval
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return defaultCheckpointInterval
		}
		n = n*10 + int(c-'0')
	}
	if n <= 0 {
		return defaultCheckpointInterval
	}
	return n
}

// PartitionColumnsValid reports whether every partition column names a
// top-level field in the schema (a Metadata invariant).
func (m Metadata) PartitionColumnsValid() bool {
	for _, col := range m.PartitionColumns {
		if _, ok := m.Schema.FindField(col); !ok {
			return false
		}
	}
	return true
}

// WithConfiguration returns a copy of m with the given keys merged into its
// configuration map (later keys overwrite earlier ones). Metadata, like
// Protocol, is copied by value and never mutated in place.
func (m Metadata) WithConfiguration(updates map[string]string) Metadata {
	merged := make(map[string]string, len(m.Configuration)+len(updates))
	for k, v := range m.Configuration {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	out := m
	out.Configuration = merged
	return out
}
