// Package txn implements the Transaction object and its commit pipeline:
// canonical action ordering, in-commit timestamps, the atomic-create/
// conflict-resolve/retry loop, and post-commit hook dispatch.
package txn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/deltakernel/txncore/internal/actioncodec"
	"github.com/deltakernel/txncore/internal/domainmeta"
	"github.com/deltakernel/txncore/internal/engine"
	"github.com/deltakernel/txncore/internal/hooks"
	"github.com/deltakernel/txncore/internal/kernelerrors"
	"github.com/deltakernel/txncore/internal/resolver"
	"github.com/deltakernel/txncore/internal/types"
)

// IdempotencyMarker is the optional (appId, version) retry-safety marker a
// transaction may carry.
type IdempotencyMarker struct {
	AppID   string
	Version int64
}

// Config is the fixed, non-retry-loop configuration of a Transaction.
type Config struct {
	LogDir                 string
	Operation              string
	EngineInfo             string
	OperationParams        map[string]string
	MaxRetries             int
	CheckpointInterval     int
	LogCompactionInterval  int
	IsReplace              bool
	Logger                 *slog.Logger
	Clock                  func() time.Time
}

func (c Config) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Transaction is a single-use, single-threaded builder over a read
// snapshot. It is closed exactly once, on the first commit attempt whether
// that attempt ultimately succeeds or exhausts its retries.
type Transaction struct {
	cfg Config
	eng engine.Engine

	readSnapshot types.Snapshot

	proposedProtocol     types.Protocol
	proposedMetadata     types.Metadata
	shouldUpdateProtocol bool
	shouldUpdateMetadata bool

	idempotency *IdempotencyMarker

	domain *domainmeta.State

	replaceGeneratedActions []types.Action
	dataActions             []types.Action

	attempted bool
}

// New builds a Transaction against readSnapshot. replaceGeneratedActions,
// when non-empty, is the planner's REPLACE remove-all/tombstone/clustering
// stream, which is concatenated before the caller's own data actions.
func New(eng engine.Engine, readSnapshot types.Snapshot, cfg Config, replaceGeneratedActions []types.Action) *Transaction {
	return &Transaction{
		cfg:                     cfg,
		eng:                     eng,
		readSnapshot:            readSnapshot,
		proposedProtocol:        readSnapshot.Protocol,
		proposedMetadata:        readSnapshot.Metadata,
		domain:                  domainmeta.New(readSnapshot.Protocol),
		replaceGeneratedActions: replaceGeneratedActions,
	}
}

// UpdateMetadata stages a metadata change to be committed as a metadata
// action.
func (t *Transaction) UpdateMetadata(m types.Metadata) {
	t.proposedMetadata = m
	t.shouldUpdateMetadata = true
}

// UpdateProtocol stages a protocol change to be committed as a protocol
// action.
func (t *Transaction) UpdateProtocol(p types.Protocol) {
	t.proposedProtocol = p
	t.shouldUpdateProtocol = true
}

// SetIdempotencyMarker stages a txn action recording (appId, version) as
// this attempt's idempotency marker.
func (t *Transaction) SetIdempotencyMarker(appID string, version int64) {
	t.idempotency = &IdempotencyMarker{AppID: appID, Version: version}
}

// Domain exposes the transaction's domain-metadata buffer.
func (t *Transaction) Domain() *domainmeta.State {
	return t.domain
}

// StageDataActions appends add/remove actions to the caller-ordered data
// stream a data writer has already produced.
func (t *Transaction) StageDataActions(actions ...types.Action) {
	t.dataActions = append(t.dataActions, actions...)
}

// CommitResult is the successful outcome of Commit.
type CommitResult struct {
	CommittedVersion int64
	PostCommitHooks  []string
	Report           Report
}

// Report is the per-commit audit summary.
type Report struct {
	Attempts                 int
	DurationMs               int64
	CRCProducedIncrementally bool
}

// attemptState carries everything that can change between attempts: the
// target version, the action stream so far, and the in-commit timestamp.
type attemptState struct {
	targetVersion int64
	ict           *int64
	dataActions   []types.Action
	domainActions []types.DomainMetadata
}

// Commit runs the canonical-order/atomic-create/conflict-resolve loop. It
// may be called at most once per Transaction.
func (t *Transaction) Commit(ctx context.Context) (*CommitResult, error) {
	if t.attempted {
		return nil, kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeTransactionAlreadyAttempted,
			"this transaction has already been attempted")
	}
	t.attempted = true

	start := t.cfg.now()
	log := t.cfg.logger()

	maxRetries := t.cfg.MaxRetries
	if t.domain.RetriesPinnedToZero() {
		maxRetries = 0
	}

	replaceDataActions, replaceDomainActions := splitReplaceGeneratedActions(t.replaceGeneratedActions)

	state := attemptState{
		targetVersion: t.readSnapshot.Version + 1,
		dataActions:   append(append([]types.Action{}, replaceDataActions...), t.dataActions...),
	}
	domainActions, err := t.domain.Resolve(t.readSnapshot, t.cfg.IsReplace)
	if err != nil {
		return nil, err
	}
	state.domainActions = append(append([]types.DomainMetadata{}, replaceDomainActions...), domainActions...)

	var result *CommitResult
	attempts := 0

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 10 * time.Millisecond
	eb.MaxInterval = 500 * time.Millisecond
	eb.MaxElapsedTime = 0
	bo := backoff.WithMaxRetries(eb, uint64(maxRetries))
	err = backoff.Retry(func() error {
		attempts++
		ict := t.computeICT(state.targetVersion, attempts)
		state.ict = ict

		res, commitErr := t.attemptCommit(ctx, state)
		if commitErr == nil {
			result = res
			return nil
		}

		if !errors.Is(commitErr, engine.ErrFileAlreadyExists) {
			return backoff.Permanent(commitErr)
		}

		log.Warn("commit attempt lost the race, resolving conflicts",
			"attempt", attempts, "target_version", state.targetVersion)

		rebase, resolveErr := resolver.Resolve(ctx, t.eng, resolver.Request{
			LogDir:                t.cfg.LogDir,
			LosingSnapshot:        t.readSnapshot,
			AttemptVersion:        state.targetVersion,
			LosingTxn:             t.idempotencyForResolver(),
			LosingDomainMetadatas: state.domainActions,
			LosingDataActions:     state.dataActions,
			Protocol:              t.proposedProtocol,
		})
		if resolveErr != nil {
			return backoff.Permanent(resolveErr)
		}

		state.targetVersion = rebase.LatestWinningVersion + 1
		state.dataActions = rebase.RewrittenDataActions
		state.domainActions = rebase.RewrittenDomainMetadatas
		t.readSnapshot.Timestamp = rebase.LatestCommitTimestamp
		if rebase.RefreshedCRC != nil {
			t.readSnapshot.CRC = rebase.RefreshedCRC
		}
		return engine.ErrFileAlreadyExists
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		if errors.Is(err, engine.ErrFileAlreadyExists) {
			return nil, kernelerrors.New(kernelerrors.KindConcurrency, kernelerrors.CodeConcurrentWrite,
				"exhausted %d retries attempting to commit version starting at %d", maxRetries, t.readSnapshot.Version+1)
		}
		return nil, err
	}

	result.Report.Attempts = attempts
	result.Report.DurationMs = t.cfg.now().Sub(start).Milliseconds()
	return result, nil
}

func (t *Transaction) idempotencyForResolver() *resolver.LosingTxn {
	if t.idempotency == nil {
		return nil
	}
	return &resolver.LosingTxn{AppID: t.idempotency.AppID, Version: t.idempotency.Version}
}

// computeICT implements spec.md §4.2's ICT rule: attempt 1 uses
// max(wallClock, readSnapshotTimestamp+1); later attempts (post-rebase) use
// max(attemptIct, rebase.latestCommitTimestamp+1), which Commit already
// folds into t.readSnapshot.Timestamp before the next call.
func (t *Transaction) computeICT(targetVersion int64, attempt int) *int64 {
	if !t.proposedMetadata.InCommitTimestampsEnabled() {
		return nil
	}
	wallClock := t.cfg.now().UnixMilli()
	floor := t.readSnapshot.Timestamp + 1
	ict := wallClock
	if floor > ict {
		ict = floor
	}
	t.recordICTEnablementIfNeeded(targetVersion, ict)
	return &ict
}

// recordICTEnablementIfNeeded stages the delta.inCommitTimestampEnablementVersion
// / ...EnablementTimestamp metadata update on the commit that first turns ICT
// on, per spec.md §4.2. A table that already had ICT enabled when this
// transaction read its snapshot leaves metadata alone, even though every
// later commit still carries an in-commit timestamp.
func (t *Transaction) recordICTEnablementIfNeeded(targetVersion, ict int64) {
	if t.readSnapshot.Metadata.InCommitTimestampsEnabled() {
		return
	}
	t.proposedMetadata = t.proposedMetadata.WithConfiguration(map[string]string{
		types.ConfigInCommitTimestampEnablementVersion:   fmt.Sprintf("%d", targetVersion),
		types.ConfigInCommitTimestampEnablementTimestamp: fmt.Sprintf("%d", ict),
	})
	t.shouldUpdateMetadata = true
}

func (t *Transaction) attemptCommit(ctx context.Context, state attemptState) (*CommitResult, error) {
	actions, err := t.assembleActions(state)
	if err != nil {
		return nil, err
	}

	if state.targetVersion == 0 {
		if _, err := t.eng.Mkdirs(ctx, t.cfg.LogDir); err != nil {
			return nil, kernelerrors.Environmental(err, "create log directory %s", t.cfg.LogDir)
		}
	}

	if err := t.checkAppendOnly(actions); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/%020d.json", t.cfg.LogDir, state.targetVersion)
	var buf bytes.Buffer
	if err := actioncodec.EncodeAll(&buf, actions); err != nil {
		return nil, err
	}

	if err := t.eng.WriteJSONAtomically(ctx, path, &buf, false); err != nil {
		return nil, err
	}

	executed, crcIncremental := hooks.Decide(hooks.Inputs{
		CommittedVersion:      state.targetVersion,
		CheckpointInterval:    t.cfg.CheckpointInterval,
		LogCompactionInterval: t.cfg.LogCompactionInterval,
		PriorCRC:              t.readSnapshot.CRC,
		CommittedMetadata:     t.proposedMetadata,
	})
	if err := hooks.Run(ctx, t.eng, t.cfg.LogDir, executed, t.cfg.logger()); err != nil {
		t.cfg.logger().Warn("post-commit hook failed", "error", err)
	}

	return &CommitResult{
		CommittedVersion: state.targetVersion,
		PostCommitHooks:  hooks.Names(executed),
		Report:           Report{CRCProducedIncrementally: crcIncremental},
	}, nil
}

// splitReplaceGeneratedActions separates a REPLACE plan's generated actions
// by kind: domain-metadata entries (tombstones, the clustering reseed) must
// flow through the same dedup block as any transaction-staged domain
// actions so the canonical order's single domainMetadata* run stays intact;
// everything else (the remove-all stream) is a plain data action.
func splitReplaceGeneratedActions(actions []types.Action) (dataActions []types.Action, domainActions []types.DomainMetadata) {
	for _, a := range actions {
		if a.DomainMetadata != nil {
			domainActions = append(domainActions, *a.DomainMetadata)
			continue
		}
		dataActions = append(dataActions, a)
	}
	return dataActions, domainActions
}

// assembleActions builds the canonical-order action stream for one attempt:
// commitInfo, metadata, protocol, txn, domainMetadata (deduplicated by
// name, last write wins), then data actions.
func (t *Transaction) assembleActions(state attemptState) ([]types.Action, error) {
	var out []types.Action

	out = append(out, types.ActionOfCommitInfo(types.CommitInfo{
		InCommitTimestamp: state.ict,
		Timestamp:         t.cfg.now().UnixMilli(),
		EngineInfo:        t.cfg.EngineInfo,
		Operation:         t.cfg.Operation,
		OperationParams:   t.cfg.OperationParams,
		IsBlindAppend:     !t.cfg.IsReplace,
	}))

	if t.shouldUpdateMetadata {
		out = append(out, types.ActionOfMetadata(t.proposedMetadata))
	}
	if t.shouldUpdateProtocol {
		out = append(out, types.ActionOfProtocol(t.proposedProtocol))
	}
	if t.idempotency != nil {
		out = append(out, types.ActionOfTxn(types.Txn{AppID: t.idempotency.AppID, Version: t.idempotency.Version}))
	}

	deduped := make([]types.DomainMetadata, 0, len(state.domainActions))
	emitted := make(map[string]bool, len(state.domainActions))
	for i := len(state.domainActions) - 1; i >= 0; i-- {
		dm := state.domainActions[i]
		if emitted[dm.Domain] {
			continue
		}
		emitted[dm.Domain] = true
		deduped = append([]types.DomainMetadata{dm}, deduped...)
	}
	for _, dm := range deduped {
		out = append(out, types.ActionOfDomainMetadata(dm))
	}

	out = append(out, state.dataActions...)
	return out, nil
}

func (t *Transaction) checkAppendOnly(actions []types.Action) error {
	if !t.proposedMetadata.IsAppendOnly() {
		return nil
	}
	for _, a := range actions {
		if a.Remove != nil && a.Remove.DataChange {
			return kernelerrors.New(kernelerrors.KindUsage, kernelerrors.CodeCannotModifyAppendOnly,
				"table %q is append-only; a data-changing remove was attempted", t.proposedMetadata.ID)
		}
	}
	return nil
}
