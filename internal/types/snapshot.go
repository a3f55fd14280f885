package types

// CRCInfo is the cached checksum record for a version: table size, file
// count, a file-size histogram, the row-id high watermark, and the set of
// active domains. It lets the commit loop decide between a "simple"
// incremental checksum update and a full rescan.
type CRCInfo struct {
	Version          int64
	TableSizeBytes   int64
	NumFiles         int64
	FileSizeHistogram map[string]int64 // bucket label -> count; nil means "unknown, needs full rescan"
	RowIDHighWatermark int64
	ActiveDomains    []string
}

// Snapshot is an immutable view of the table at a version. It is shared by
// value (or as an immutable handle) between the transaction, the resolver,
// and the post-commit hooks; nothing here is ever mutated after
// construction.
type Snapshot struct {
	Version         int64 // -1 means "no table yet"
	Protocol        Protocol
	Metadata        Metadata
	ActiveFiles     map[string]Add            // path -> Add
	ActiveDomains   map[string]DomainMetadata  // name -> latest active record
	Timestamp       int64                      // commit-file modification time or ICT, in millis
	CRC             *CRCInfo                   // nil if not cached
}

// Exists reports whether the snapshot reflects a committed table (version
// >= 0) as opposed to "no table yet" (version == -1).
func (s Snapshot) Exists() bool {
	return s.Version >= 0
}

// RowIDHighWatermark returns the snapshot's cached watermark, or 0 if none
// has ever been recorded (row tracking not yet in use).
func (s Snapshot) RowIDHighWatermark() int64 {
	if s.CRC != nil {
		return s.CRC.RowIDHighWatermark
	}
	if dm, ok := s.ActiveDomains[RowTrackingDomain]; ok {
		if wm, ok := ParseRowTrackingWatermark(dm.Configuration); ok {
			return wm
		}
	}
	return 0
}

// RebaseState is the conflict resolver's verdict: at what version to retry,
// and what in-flight state to carry forward into the new attempt.
type RebaseState struct {
	LatestWinningVersion     int64
	LatestCommitTimestamp    int64
	RewrittenDataActions     []Action
	RewrittenDomainMetadatas []DomainMetadata
	RefreshedCRC             *CRCInfo
}
