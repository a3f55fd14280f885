// Package domainmeta implements the per-transaction domain-metadata buffer:
// the add/remove staging area a Transaction accumulates before resolving it
// against a read snapshot into the DomainMetadata actions a commit writes.
package domainmeta

import (
	"regexp"

	"github.com/deltakernel/txncore/internal/kernelerrors"
	"github.com/deltakernel/txncore/internal/types"
)

// validNameRe mirrors the teacher's metadata-key validator: letters/digits/
// underscore/dot, starting with a letter or underscore. Domain names share
// the same "safe to embed in a JSON-path-like identifier" requirement as the
// teacher's per-issue metadata keys.
var validNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// ValidateName checks that name is syntactically well-formed, independent of
// whether it is reserved for system use.
func ValidateName(name string) error {
	if !validNameRe.MatchString(name) {
		return kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeInvalidDomainName,
			"domain name %q must match [a-zA-Z_][a-zA-Z0-9_.]*", name)
	}
	return nil
}

// State is the mutable add/remove buffer a Transaction owns. Build one with
// New; the zero value's maps are nil and it is not usable.
type State struct {
	protocolHasDomainMetadata bool

	toAdd    map[string]string
	toRemove map[string]bool

	// rowTrackingPinned is set by SetRowTrackingWatermark: a transaction
	// touching the row-tracking system domain must not retry at all,
	// since any contending writer needs to re-issue with the latest
	// watermark rather than blindly rebase.
	rowTrackingPinned bool

	computed    []types.DomainMetadata
	computedSet bool
}

// New builds a domain-metadata buffer for a transaction reading protocol.
func New(protocol types.Protocol) *State {
	return &State{
		protocolHasDomainMetadata: protocol.HasWriterFeature(types.FeatureDomainMetadata),
		toAdd:                     make(map[string]string),
		toRemove:                  make(map[string]bool),
	}
}

func (s *State) requireFeature() error {
	if !s.protocolHasDomainMetadata {
		return kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeDomainMetadataFeatureMissing,
			"table does not have the domainMetadata writer feature enabled")
	}
	return nil
}

func (s *State) invalidate() {
	s.computed = nil
	s.computedSet = false
}

// Add stages a domain-metadata record for the given user-controlled domain.
func (s *State) Add(name, config string) error {
	if err := s.requireFeature(); err != nil {
		return err
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	if types.IsSystemDomain(name) {
		return kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeSystemDomainReserved,
			"domain %q is reserved for internal use; use the dedicated API", name)
	}
	if s.toRemove[name] {
		return kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeDomainAddRemoveConflict,
			"domain %q is already staged for removal in this transaction", name)
	}
	s.toAdd[name] = config
	s.invalidate()
	return nil
}

// Remove stages a tombstone for the given user-controlled domain.
func (s *State) Remove(name string) error {
	if err := s.requireFeature(); err != nil {
		return err
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	if types.IsSystemDomain(name) {
		return kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeSystemDomainReserved,
			"domain %q is reserved for internal use; use the dedicated API", name)
	}
	if _, staged := s.toAdd[name]; staged {
		return kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeDomainAddRemoveConflict,
			"domain %q is already staged for addition in this transaction", name)
	}
	s.toRemove[name] = true
	s.invalidate()
	return nil
}

// SetRowTrackingWatermark stages the row-tracking system domain directly,
// bypassing the user-domain validation Add applies. Any transaction that
// calls this is pinned to zero retries: a contending writer must re-issue
// with the latest watermark rather than have the core rebase it blindly.
func (s *State) SetRowTrackingWatermark(watermark int64) error {
	if err := types.ValidateWatermark(watermark); err != nil {
		return kernelerrors.Wrap(kernelerrors.KindUsage, kernelerrors.CodeInvalidRowTrackingWatermark, err,
			"invalid row-tracking watermark %d", watermark)
	}
	s.toAdd[types.RowTrackingDomain] = types.EncodeRowTrackingWatermark(watermark)
	s.rowTrackingPinned = true
	s.invalidate()
	return nil
}

// RetriesPinnedToZero reports whether this transaction's domain-metadata
// staging requires the commit loop to disable rebase retries.
func (s *State) RetriesPinnedToZero() bool {
	return s.rowTrackingPinned
}

// Resolve computes the final DomainMetadata action list against the read
// snapshot: every staged add, a tombstone for every staged remove (which
// must exist in the snapshot), and — when isReplace is true — an additional
// tombstone for every snapshot domain not otherwise re-added by this
// transaction. The result is memoised until the next Add/Remove call.
func (s *State) Resolve(snapshot types.Snapshot, isReplace bool) ([]types.DomainMetadata, error) {
	if s.computedSet {
		return s.computed, nil
	}

	out := make([]types.DomainMetadata, 0, len(s.toAdd)+len(s.toRemove))
	for name, config := range s.toAdd {
		out = append(out, types.DomainMetadata{Domain: name, Configuration: config, Removed: false})
	}
	for name := range s.toRemove {
		existing, ok := snapshot.ActiveDomains[name]
		if !ok {
			return nil, kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeDomainDoesNotExist,
				"cannot remove domain %q: not active in the read snapshot", name)
		}
		out = append(out, types.DomainMetadata{Domain: name, Configuration: existing.Configuration, Removed: true})
	}

	if isReplace {
		for name, existing := range snapshot.ActiveDomains {
			if _, addedHere := s.toAdd[name]; addedHere {
				continue
			}
			if s.toRemove[name] {
				continue
			}
			out = append(out, types.DomainMetadata{Domain: name, Configuration: existing.Configuration, Removed: true})
		}
	}

	s.computed = out
	s.computedSet = true
	return out, nil
}

// MergeActive folds a canonically-ordered list of DomainMetadata actions
// (as read from the commit log, oldest to newest) into an active-domain map:
// later records shadow earlier ones by name, and a Removed record clears its
// name from the map rather than appearing in it.
func MergeActive(base map[string]types.DomainMetadata, actions []types.DomainMetadata) map[string]types.DomainMetadata {
	merged := make(map[string]types.DomainMetadata, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for _, a := range actions {
		if a.Removed {
			delete(merged, a.Domain)
			continue
		}
		merged[a.Domain] = a
	}
	return merged
}
