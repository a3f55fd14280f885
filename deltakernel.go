// Package deltakernel provides a minimal public API for embedding the
// transaction core in a larger engine.
//
// Most callers should build a session.Config, open a table's log directory
// with a storage engine, and drive txn.Transaction directly; this package
// only re-exports the handful of types and constructors an embedder needs
// without reaching into internal/.
package deltakernel

import (
	"time"

	"github.com/deltakernel/txncore/internal/engine"
	"github.com/deltakernel/txncore/internal/icebergcompat"
	"github.com/deltakernel/txncore/internal/planner"
	"github.com/deltakernel/txncore/internal/session"
	"github.com/deltakernel/txncore/internal/txn"
	"github.com/deltakernel/txncore/internal/types"
)

// Core data-model types for working with a table's transaction log.
type (
	Snapshot       = types.Snapshot
	Protocol       = types.Protocol
	Metadata       = types.Metadata
	Action         = types.Action
	DomainMetadata = types.DomainMetadata
)

// Iceberg-compatibility versions a table can target.
const (
	IcebergCompatV2 = icebergcompat.V2
	IcebergCompatV3 = icebergcompat.V3
)

// Engine is the storage abstraction a Transaction commits through.
type Engine = engine.Engine

// NewLocalEngine opens a flock-coordinated local-filesystem engine rooted
// at no particular directory; every call takes an absolute path.
func NewLocalEngine(lockTimeout time.Duration) Engine {
	return engine.NewLocalEngine(lockTimeout)
}

// Transaction is a single-use builder for one commit attempt.
type Transaction = txn.Transaction

// TransactionConfig configures a Transaction's commit behavior.
type TransactionConfig = txn.Config

// NewTransaction builds a Transaction against readSnapshot.
func NewTransaction(eng Engine, readSnapshot Snapshot, cfg TransactionConfig, replaceGeneratedActions []Action) *Transaction {
	return txn.New(eng, readSnapshot, cfg, replaceGeneratedActions)
}

// Descriptor, ExistingTable, and Plan describe a CREATE/REPLACE request and
// its outcome.
type (
	Descriptor    = planner.Descriptor
	ExistingTable = planner.ExistingTable
	Plan          = planner.Plan
)

// Mode and Op select CREATE/REPLACE/CREATE OR REPLACE behavior.
type (
	Mode = planner.Mode
	Op   = planner.Op
)

const (
	ModeAppend        = planner.ModeAppend
	ModeOverwrite      = planner.ModeOverwrite
	ModeErrorIfExists = planner.ModeErrorIfExists
	ModeIgnore        = planner.ModeIgnore

	OpCreate          = planner.OpCreate
	OpReplace         = planner.OpReplace
	OpCreateOrReplace = planner.OpCreateOrReplace
)

// Plan runs the create/replace planner.
func Plan(desc Descriptor, existing *ExistingTable, opts planner.Options) (*Plan, error) {
	return planner.Plan(desc, existing, opts)
}

// SessionConfig is a resolved session configuration.
type SessionConfig = session.Config

// SessionOverrides carries explicit overrides for ResolveSession.
type SessionOverrides = session.Overrides

// ResolveSession resolves a session configuration for projectDir.
func ResolveSession(projectDir string, overrides SessionOverrides) (SessionConfig, error) {
	return session.Resolve(projectDir, overrides)
}
