// Package resolver implements the optimistic-concurrency conflict resolver:
// given a losing snapshot and an attempted version, it reads the winning
// commits written since that snapshot and either rebases the losing
// transaction's actions onto them or fails with a non-retryable error.
package resolver

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/deltakernel/txncore/internal/actioncodec"
	"github.com/deltakernel/txncore/internal/engine"
	"github.com/deltakernel/txncore/internal/kernelerrors"
	"github.com/deltakernel/txncore/internal/types"
)

// resolverTracer and resolverMeter follow the teacher's storage/dolt
// convention of one package-level tracer/meter bound to the global
// (possibly no-op) provider, so callers that never configure OTel pay
// nothing and the CLI's --otel-stdout flag (cmd/deltactl) makes both
// observable without code here knowing about it.
var (
	resolverTracer = otel.Tracer("github.com/deltakernel/txncore/internal/resolver")
	resolverMeter  = otel.Meter("github.com/deltakernel/txncore/internal/resolver")

	rebaseCounter, _ = resolverMeter.Int64Counter(
		"deltakernel.resolver.rebases",
		metric.WithDescription("number of conflict rebases attempted, by outcome"),
	)
)

// LosingTxn is the idempotency marker the losing transaction is carrying,
// if any.
type LosingTxn struct {
	AppID   string
	Version int64
}

// Request is everything the resolver needs to attempt a rebase.
type Request struct {
	LogDir               string
	LosingSnapshot        types.Snapshot
	AttemptVersion        int64
	LosingTxn             *LosingTxn
	LosingDomainMetadatas []types.DomainMetadata
	LosingDataActions     []types.Action
	// Protocol is the losing transaction's proposed (or, if unchanged, read)
	// protocol. Row-id assignment is gated on this carrying the rowTracking
	// writer feature, per spec.md §4.5 step 4, not on whether either side
	// happened to touch the system domain.
	Protocol types.Protocol
}

// winningCommit is one committed version read back for conflict analysis.
type winningCommit struct {
	version    int64
	actions    []types.Action
	modTimeMs  int64
}

// Resolve lists and reads the commits written since the losing snapshot and
// produces a RebaseState, or a non-retryable error for a true conflict.
func Resolve(ctx context.Context, eng engine.Engine, req Request) (types.RebaseState, error) {
	ctx, span := resolverTracer.Start(ctx, "resolver.Resolve", trace.WithAttributes(
		attribute.Int64("delta.losing_snapshot_version", req.LosingSnapshot.Version),
		attribute.Int64("delta.attempt_version", req.AttemptVersion),
	))
	defer span.End()

	winners, err := listWinningVersions(ctx, eng, req.LogDir, req.LosingSnapshot.Version+1)
	if err != nil {
		endSpan(span, err)
		recordRebaseOutcome(ctx, "gap_in_log")
		return types.RebaseState{}, err
	}
	if len(winners) == 0 {
		recordRebaseOutcome(ctx, "gap_in_log")
		return types.RebaseState{}, kernelerrors.New(kernelerrors.KindIntegrity, kernelerrors.CodeGapInLog,
			"no winning commits found from version %d but a write attempt collided", req.LosingSnapshot.Version+1)
	}

	commits, err := readWinningCommits(ctx, eng, winners)
	if err != nil {
		endSpan(span, err)
		recordRebaseOutcome(ctx, "read_error")
		return types.RebaseState{}, err
	}

	rebase, err := analyzeConflicts(req, commits)
	if err != nil {
		endSpan(span, err)
		recordRebaseOutcome(ctx, "conflict")
		return types.RebaseState{}, err
	}

	span.SetAttributes(attribute.Int64("delta.latest_winning_version", rebase.LatestWinningVersion))
	recordRebaseOutcome(ctx, "rebased")
	return rebase, nil
}

func recordRebaseOutcome(ctx context.Context, outcome string) {
	if rebaseCounter == nil {
		return
	}
	rebaseCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("delta.outcome", outcome)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// listWinningVersions lists commit files (.json) from startVersion upward
// and asserts the sequence is gap-free.
func listWinningVersions(ctx context.Context, eng engine.Engine, logDir string, startVersion int64) ([]engine.FileStatus, error) {
	prefix := versionFileName(startVersion, "")
	all, err := eng.ListFrom(ctx, logDir, prefix)
	if err != nil {
		return nil, kernelerrors.Environmental(err, "list commit files from version %d", startVersion)
	}

	var commits []engine.FileStatus
	for _, f := range all {
		if isCommitFile(f.Path) {
			commits = append(commits, f)
		}
	}

	expected := startVersion
	for _, c := range commits {
		v, err := parseVersionFromPath(c.Path)
		if err != nil {
			return nil, kernelerrors.Wrap(kernelerrors.KindIntegrity, kernelerrors.CodeGapInLog, err, "malformed commit file name %q", c.Path)
		}
		if v != expected {
			return nil, kernelerrors.New(kernelerrors.KindIntegrity, kernelerrors.CodeGapInLog,
				"gap in commit log: expected version %d, found %d", expected, v)
		}
		expected++
	}
	return commits, nil
}

// readWinningCommits reads every winning commit file concurrently (one
// errgroup goroutine per file, with no limit on how many run at once) and
// returns them ordered by version.
func readWinningCommits(ctx context.Context, eng engine.Engine, files []engine.FileStatus) ([]winningCommit, error) {
	commits := make([]winningCommit, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			version, err := parseVersionFromPath(f.Path)
			if err != nil {
				return err
			}
			r, err := eng.ReadJSON(gctx, f.Path)
			if err != nil {
				return kernelerrors.Environmental(err, "read commit file %s", f.Path)
			}
			defer r.Close()

			actions, err := actioncodec.DecodeAll(r)
			if err != nil {
				return kernelerrors.Wrap(kernelerrors.KindIntegrity, kernelerrors.CodeGapInLog, err, "decode commit file %s", f.Path)
			}
			commits[i] = winningCommit{version: version, actions: actions, modTimeMs: f.ModificationTime}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return commits, nil
}

// analyzeConflicts runs the fatal-conflict checks and, if none apply, builds
// the rebase state per spec.md §4.5.
func analyzeConflicts(req Request, commits []winningCommit) (types.RebaseState, error) {
	var lastWinningCommitInfo *types.CommitInfo
	domainWinners := make(map[string]types.DomainMetadata)
	var maxRowTrackingWatermark int64

	for _, c := range commits {
		for _, a := range c.actions {
			switch {
			case a.Protocol != nil:
				return types.RebaseState{}, kernelerrors.New(kernelerrors.KindConcurrency, kernelerrors.CodeProtocolChanged,
					"protocol changed by a concurrent commit at version %d", c.version)
			case a.Metadata != nil:
				return types.RebaseState{}, kernelerrors.New(kernelerrors.KindConcurrency, kernelerrors.CodeMetadataChanged,
					"metadata changed by a concurrent commit at version %d", c.version)
			case a.Txn != nil:
				if req.LosingTxn != nil && a.Txn.AppID == req.LosingTxn.AppID && a.Txn.Version >= req.LosingTxn.Version {
					return types.RebaseState{}, kernelerrors.New(kernelerrors.KindConcurrency, kernelerrors.CodeConcurrentTransaction,
						"idempotency marker (%s, %d) already observed at or after version %d", a.Txn.AppID, a.Txn.Version, c.version)
				}
			case a.DomainMetadata != nil:
				domainWinners[a.DomainMetadata.Domain] = *a.DomainMetadata
				if a.DomainMetadata.Domain == types.RowTrackingDomain {
					if wm, ok := types.ParseRowTrackingWatermark(a.DomainMetadata.Configuration); ok {
						if wm > maxRowTrackingWatermark {
							maxRowTrackingWatermark = wm
						}
					}
				}
			case a.CommitInfo != nil:
				ci := *a.CommitInfo
				lastWinningCommitInfo = &ci
			}
		}
	}

	for _, dm := range req.LosingDomainMetadatas {
		winner, touched := domainWinners[dm.Domain]
		if !touched {
			continue
		}
		if dm.Domain == types.RowTrackingDomain {
			continue // resolved below via the watermark rewrite
		}
		_ = winner
		return types.RebaseState{}, kernelerrors.New(kernelerrors.KindConcurrency, kernelerrors.CodeConcurrentDomainMetadata,
			"domain %q was concurrently modified", dm.Domain)
	}

	lastWinningVersion := commits[len(commits)-1].version

	rewrittenData := req.LosingDataActions
	var refreshedDomains []types.DomainMetadata
	if req.Protocol.HasWriterFeature(types.FeatureRowTracking) {
		currentWatermark := req.LosingSnapshot.RowIDHighWatermark()
		newBase := currentWatermark
		if maxRowTrackingWatermark > newBase {
			newBase = maxRowTrackingWatermark
		}
		rewrittenData, newBase = assignRowIDs(req.LosingDataActions, newBase, lastWinningVersion+1)
		refreshedDomains = append(refreshedDomains, types.RowTrackingDomainMetadata(newBase))
	}
	for _, dm := range req.LosingDomainMetadatas {
		if dm.Domain != types.RowTrackingDomain {
			refreshedDomains = append(refreshedDomains, dm)
		}
	}

	latestCommitTimestamp, err := resolveLatestCommitTimestamp(req, lastWinningCommitInfo, commits[len(commits)-1].modTimeMs)
	if err != nil {
		return types.RebaseState{}, err
	}

	return types.RebaseState{
		LatestWinningVersion:     lastWinningVersion,
		LatestCommitTimestamp:    latestCommitTimestamp,
		RewrittenDataActions:     rewrittenData,
		RewrittenDomainMetadatas: refreshedDomains,
		RefreshedCRC:             nil, // always nil: no .crc file is read, neither here nor in the txn package
	}, nil
}

func resolveLatestCommitTimestamp(req Request, lastWinningCommitInfo *types.CommitInfo, fileModTimeMs int64) (int64, error) {
	if !req.LosingSnapshot.Metadata.InCommitTimestampsEnabled() {
		return fileModTimeMs, nil
	}
	if lastWinningCommitInfo == nil || lastWinningCommitInfo.InCommitTimestamp == nil {
		return 0, kernelerrors.New(kernelerrors.KindIntegrity, kernelerrors.CodeGapInLog,
			"in-commit timestamps enabled but the winning commit carries no commitInfo.inCommitTimestamp")
	}
	return *lastWinningCommitInfo.InCommitTimestamp, nil
}

// assignRowIDs rewrites a in ascending order, assigning baseRowId starting
// at base+1 and defaultRowCommitVersion = commitVersion for every Add that
// does not already carry row-id fields.
func assignRowIDs(actions []types.Action, base int64, commitVersion int64) ([]types.Action, int64) {
	out := make([]types.Action, len(actions))
	next := base
	for i, a := range actions {
		if a.Add == nil || a.Add.BaseRowID != nil {
			out[i] = a
			continue
		}
		add := *a.Add
		next++
		rowID := next
		cv := commitVersion
		add.BaseRowID = &rowID
		add.DefaultRowCommitVersion = &cv
		out[i] = types.ActionOfAdd(add)
	}
	return out, next
}

func versionFileName(version int64, suffix string) string {
	return fmt.Sprintf("%020d%s", version, suffix)
}

func isCommitFile(path string) bool {
	return len(path) >= 5 && path[len(path)-5:] == ".json"
}

func parseVersionFromPath(path string) (int64, error) {
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			base = path[i+1:]
			break
		}
	}
	dot := -1
	for i, c := range base {
		if c == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return 0, fmt.Errorf("path %q has no extension", path)
	}
	digits := base[:dot]
	var v int64
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("path %q is not a numeric version file", path)
		}
		v = v*10 + int64(c-'0')
	}
	return v, nil
}
