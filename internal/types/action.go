package types

import "time"

// Add introduces a data file into the table's active set.
type Add struct {
	Path                 string
	PartitionValues      map[string]string
	Size                 int64
	ModificationTime     int64
	DataChange           bool
	Stats                string
	Tags                 map[string]string
	BaseRowID            *int64
	DefaultRowCommitVersion *int64
}

// Remove tombstones a previously active data file.
type Remove struct {
	Path                 string
	DeletionTimestamp    int64
	DataChange           bool
	ExtendedFileMetadata bool
	PartitionValues      map[string]string
	Size                 *int64
}

// Txn is the idempotency marker `(appId, version)` applications use to make
// retried writes a no-op.
type Txn struct {
	AppID       string
	Version     int64
	LastUpdated *int64
}

// CommitInfo is the per-commit audit record. Exactly one appears per commit
// file, always first.
type CommitInfo struct {
	InCommitTimestamp *int64
	Timestamp         int64
	EngineInfo        string
	Operation         string
	OperationParams   map[string]string
	IsBlindAppend     bool
	TxnID             string
	OperationMetrics  map[string]string
}

// DomainMetadata is a named key/value slot in the log. A Removed record is
// a tombstone; the domain is active iff the latest non-shadowed record with
// that name has Removed == false.
type DomainMetadata struct {
	Domain        string
	Configuration string
	Removed       bool
}

// SystemDomainPrefix marks domains writable only via dedicated code paths
// (e.g. row tracking), never through the general add/remove API.
const SystemDomainPrefix = "delta."

// RowTrackingDomain is the system domain that carries the row-id high
// watermark.
const RowTrackingDomain = "delta.rowTracking"

// IsSystemDomain reports whether name is reserved for internal use.
func IsSystemDomain(name string) bool {
	return len(name) >= len(SystemDomainPrefix) && name[:len(SystemDomainPrefix)] == SystemDomainPrefix
}

// Action is a tagged variant over the seven action kinds the log carries.
// Exactly one field is non-nil per Action in a well-formed commit.
type Action struct {
	Protocol       *Protocol
	Metadata       *Metadata
	Add            *Add
	Remove         *Remove
	Txn            *Txn
	CommitInfo     *CommitInfo
	DomainMetadata *DomainMetadata
}

// Tag names which variant is populated, or "" if the Action is empty.
func (a Action) Tag() string {
	switch {
	case a.Protocol != nil:
		return "protocol"
	case a.Metadata != nil:
		return "metadata"
	case a.Add != nil:
		return "add"
	case a.Remove != nil:
		return "remove"
	case a.Txn != nil:
		return "txn"
	case a.CommitInfo != nil:
		return "commitInfo"
	case a.DomainMetadata != nil:
		return "domainMetadata"
	default:
		return ""
	}
}

// IsSingleVariant reports whether exactly one arm is populated, the
// round-trip invariant every Action must satisfy.
func (a Action) IsSingleVariant() bool {
	count := 0
	for _, set := range []bool{
		a.Protocol != nil, a.Metadata != nil, a.Add != nil, a.Remove != nil,
		a.Txn != nil, a.CommitInfo != nil, a.DomainMetadata != nil,
	} {
		if set {
			count++
		}
	}
	return count == 1
}

// ActionOf wraps helpers building single-variant Actions, used by the
// planner, domain-metadata state machine, and commit pipeline so call
// sites never construct a multi-variant Action by accident.
func ActionOfProtocol(p Protocol) Action             { return Action{Protocol: &p} }
func ActionOfMetadata(m Metadata) Action             { return Action{Metadata: &m} }
func ActionOfAdd(a Add) Action                       { return Action{Add: &a} }
func ActionOfRemove(r Remove) Action                 { return Action{Remove: &r} }
func ActionOfTxn(t Txn) Action                       { return Action{Txn: &t} }
func ActionOfCommitInfo(c CommitInfo) Action          { return Action{CommitInfo: &c} }
func ActionOfDomainMetadata(d DomainMetadata) Action { return Action{DomainMetadata: &d} }

// NowMillis is the single place the core converts a time.Time to the
// millisecond epoch timestamps the log format uses, kept as a function
// (not inlined everywhere) so tests can see the conversion point clearly.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
