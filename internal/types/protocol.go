package types

// Protocol records the reader/writer table features required to interpret
// the current table state. Feature sets must be supersets of whatever the
// current Metadata's configuration requires (enforced by the planner and
// the Iceberg-compat rule engine, never mutated directly by callers).
type Protocol struct {
	MinReaderVersion int
	MinWriterVersion int
	ReaderFeatures   []string
	WriterFeatures   []string
}

// Feature names the core cares about. Engines may carry additional feature
// strings this package never inspects.
const (
	FeatureColumnMapping     = "columnMapping"
	FeatureDomainMetadata    = "domainMetadata"
	FeatureRowTracking       = "rowTracking"
	FeatureDeletionVectors   = "deletionVectors"
	FeatureInCommitTimestamp = "inCommitTimestamp"
	FeatureVariantType       = "variantType"
)

// HasWriterFeature reports whether the protocol already advertises feature.
func (p Protocol) HasWriterFeature(feature string) bool {
	for _, f := range p.WriterFeatures {
		if f == feature {
			return true
		}
	}
	return false
}

// HasReaderFeature reports whether the protocol already advertises feature.
func (p Protocol) HasReaderFeature(feature string) bool {
	for _, f := range p.ReaderFeatures {
		if f == feature {
			return true
		}
	}
	return false
}

// WithWriterFeature returns a copy of p with feature added to the writer
// feature set (no-op if already present). Protocol is small and copied by
// value throughout the core; mutation always goes through a constructor
// like this one rather than in place.
func (p Protocol) WithWriterFeature(feature string) Protocol {
	if p.HasWriterFeature(feature) {
		return p
	}
	out := p
	out.WriterFeatures = append(append([]string{}, p.WriterFeatures...), feature)
	return out
}

// WithReaderFeature mirrors WithWriterFeature for the reader feature set.
func (p Protocol) WithReaderFeature(feature string) Protocol {
	if p.HasReaderFeature(feature) {
		return p
	}
	out := p
	out.ReaderFeatures = append(append([]string{}, p.ReaderFeatures...), feature)
	return out
}

// SupportsFeatures reports whether the protocol's versions are high enough
// to carry an explicit feature list at all (table-features protocol, reader
// version 3+ / writer version 7+ in the real format; here a protocol counts
// if it lists any reader or writer feature or its writer version is 7+).
func (p Protocol) SupportsFeatures() bool {
	return len(p.ReaderFeatures) > 0 || len(p.WriterFeatures) > 0 || p.MinWriterVersion >= 7
}
