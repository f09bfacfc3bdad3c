// Package binder resolves which processes are binder-communicating, directly
// or through a chain of calls, with a target process. A Tracker reads a
// transaction snapshot, groups pids by the partners they were seen with, and
// walks the groups outward from the target.
//
// Resolution is best effort: an unreadable snapshot, malformed lines or a
// fault during the walk all produce an empty or partial Resolution instead of
// an error. Callers must treat an empty result as "no relationships found".
package binder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/closure"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/group"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/procinfo"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/reader"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/tracing"
)

// Annotator names resolved pids. *procinfo.Annotator satisfies it.
type Annotator interface {
	Annotate(pids []int) []procinfo.Process
}

// Options configures a Tracker. Zero values disable the optional parts.
type Options struct {
	Reader        reader.Options
	MaxIterations int
	Timeout       time.Duration
	OpenAttempts  int
	Annotator     Annotator
	Metrics       *metrics.Metrics
}

// Tracker resolves binder relationships against one snapshot source. It keeps
// no per-call state and is safe for concurrent use.
type Tracker struct {
	source reader.Source
	opts   Options
	logger *slog.Logger
}

func New(source reader.Source, opts Options) *Tracker {
	if opts.OpenAttempts <= 0 {
		opts.OpenAttempts = 1
	}
	return &Tracker{
		source: source,
		opts:   opts,
		logger: slog.Default().With("component", "binder-tracker", "source", source.Name()),
	}
}

// Source returns the snapshot source the tracker reads from.
func (t *Tracker) Source() reader.Source { return t.source }

// snapshot is the grouped form of one read of the source.
type snapshot struct {
	pairs     reader.PairList
	stats     reader.Stats
	table     group.Table
	groups    int
	available bool
}

// Resolve returns the transitive binder communication set of pid. The only
// error it returns is ErrInvalidPID for a non-positive pid.
func (t *Tracker) Resolve(ctx context.Context, pid int) (*Resolution, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrInvalidPID, pid)
	}
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	res := newResolution(pid)
	ctx, span := tracing.StartSpan(ctx, "binder.resolve", res.ID)
	span.SetAttr("target_pid", pid)

	snap := t.load(ctx)
	t.walk(ctx, snap, res)
	span.End()
	t.finish(res, snap, span.Timings())
	span.Log(t.logger)
	return res, nil
}

// ResolveMany resolves every pid against a single read of the source. Walks
// run concurrently over the shared, read-only group table. Results are in
// the order of pids.
func (t *Tracker) ResolveMany(ctx context.Context, pids []int) ([]*Resolution, error) {
	for _, pid := range pids {
		if pid <= 0 {
			return nil, fmt.Errorf("%w: %d", apperrors.ErrInvalidPID, pid)
		}
	}
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	batchID := uuid.NewString()
	ctx, span := tracing.StartSpan(ctx, "binder.resolve_many", batchID)
	span.SetAttr("targets", len(pids))
	snap := t.load(ctx)

	results := make([]*Resolution, len(pids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, pid := range pids {
		g.Go(func() error {
			res := newResolution(pid)
			t.walk(gctx, snap, res)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	span.End()
	// read and group ran once for the batch; every walk carries its own time.
	shared := span.Timings()
	delete(shared, "walk")
	for _, res := range results {
		t.finish(res, snap, shared)
	}
	span.Log(t.logger)
	return results, nil
}

func (t *Tracker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.opts.Timeout)
}

func (t *Tracker) load(ctx context.Context) *snapshot {
	snap := &snapshot{available: true}

	readCtx, readSpan := tracing.StartChildSpan(ctx, "read")
	err := resilience.Retry(readCtx, "open-snapshot", resilience.RetryConfig{
		MaxAttempts:  t.opts.OpenAttempts,
		InitialDelay: 20 * time.Millisecond,
		Retryable:    retryableOpenError,
	}, func() error {
		var err error
		snap.pairs, snap.stats, err = reader.Read(readCtx, t.source, t.opts.Reader)
		return err
	})
	readSpan.SetAttr("pairs", len(snap.pairs))
	readSpan.End()
	if err != nil {
		snap.available = false
		t.logger.Warn("binder transaction snapshot unavailable",
			"error", err,
			"pairs_salvaged", len(snap.pairs),
		)
	}

	_, groupSpan := tracing.StartChildSpan(ctx, "group")
	snap.table = group.Build(snap.pairs)
	snap.groups = len(snap.table.Distinct())
	groupSpan.SetAttr("groups", snap.groups)
	groupSpan.End()

	t.logger.Debug("snapshot grouped",
		"lines", snap.stats.Lines,
		"pairs", len(snap.pairs),
		"malformed", snap.stats.Malformed,
		"groups", snap.groups,
	)
	if m := t.opts.Metrics; m != nil {
		m.PairsParsedTotal.Add(float64(len(snap.pairs)))
		m.MalformedLinesTotal.Add(float64(snap.stats.Malformed))
	}
	return snap
}

// retryableOpenError reports whether reopening the source could help. A
// missing or forbidden file will not appear between attempts.
func retryableOpenError(err error) bool {
	return !errors.Is(err, os.ErrNotExist) && !errors.Is(err, os.ErrPermission)
}

func (t *Tracker) walk(ctx context.Context, snap *snapshot, res *Resolution) {
	ctx, span := tracing.StartChildSpan(ctx, "walk")
	defer func() {
		span.End()
		res.Timings["walk"] = span.Elapsed().Microseconds()
	}()

	out := closure.Walk(ctx, res.TargetPID, snap.table, closure.Options{
		MaxIterations: t.opts.MaxIterations,
		Logger:        t.logger,
	})
	res.PIDs = out.PIDs
	res.Iterations = out.Iterations
	res.Truncated = out.Truncated
	if out.Fault != nil {
		res.Fault = out.Fault.Error()
	}
	span.SetAttr("pids", len(out.PIDs))
}

// finish fills in snapshot-level fields. timings holds the phase durations
// shared with other resolutions of the same snapshot; entries res already
// measured for itself are kept.
func (t *Tracker) finish(res *Resolution, snap *snapshot, timings map[string]int64) {
	res.SourceAvailable = snap.available
	res.Pairs = len(snap.pairs)
	res.Groups = snap.groups
	res.Parse = snap.stats

	for phase, us := range timings {
		if _, ok := res.Timings[phase]; !ok {
			res.Timings[phase] = us
		}
	}
	if t.opts.Annotator != nil && len(res.PIDs) > 0 {
		start := time.Now()
		res.Processes = t.opts.Annotator.Annotate(res.PIDs)
		res.Timings["annotate"] = time.Since(start).Microseconds()
	}
	res.DurationUs = time.Since(res.ResolvedAt).Microseconds()

	outcome := res.Outcome()
	if m := t.opts.Metrics; m != nil {
		m.ResolutionsTotal.WithLabelValues(outcome).Inc()
		m.ResolutionLatency.Observe(time.Since(res.ResolvedAt).Seconds())
		m.ResolutionSize.Observe(float64(len(res.PIDs)))
	}

	if len(res.PIDs) == 0 {
		t.logger.Info("no binder communication found", "target_pid", res.TargetPID, "outcome", outcome)
		return
	}
	t.logger.Info("binder communication resolved",
		"target_pid", res.TargetPID,
		"pids", res.PIDs,
		"outcome", outcome,
		"duration_us", res.DurationUs,
	)
}
