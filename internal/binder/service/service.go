// Package service ties a Tracker to the optional cache, report store and
// event collector. The HTTP handler, the RPC endpoint and the CLI all resolve
// through it.
package service

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/cache"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/events"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/logger"
)

// ReportStore persists resolutions. *store.Store satisfies it.
type ReportStore interface {
	Save(ctx context.Context, res *binder.Resolution) error
	List(ctx context.Context, pid, limit int) ([]binder.Resolution, error)
	Latest(ctx context.Context, pid int) (*binder.Resolution, error)
}

// Options holds the optional collaborators. Leave a field nil to disable it.
type Options struct {
	Cache     *cache.ResolutionCache
	Reports   ReportStore
	Collector *events.Collector
}

type Service struct {
	tracker *binder.Tracker
	opts    Options
	logger  *slog.Logger
}

func New(tracker *binder.Tracker, opts Options) *Service {
	return &Service{
		tracker: tracker,
		opts:    opts,
		logger:  slog.Default().With("component", "binder-service"),
	}
}

func (s *Service) Cache() *cache.ResolutionCache { return s.opts.Cache }

func (s *Service) Reports() ReportStore { return s.opts.Reports }

// Resolve returns the resolution for pid, served from the cache when one is
// configured. cacheHit is false only for the caller that read the snapshot;
// callers sharing an in-flight read see true and do not store a report.
func (s *Service) Resolve(ctx context.Context, pid int, origin events.Origin) (res *binder.Resolution, cacheHit bool, err error) {
	if s.opts.Cache != nil {
		res, cacheHit, err = s.opts.Cache.GetOrCompute(ctx, pid, func() (*binder.Resolution, error) {
			return s.tracker.Resolve(ctx, pid)
		})
	} else {
		res, err = s.tracker.Resolve(ctx, pid)
	}
	if err != nil {
		return nil, false, err
	}
	s.record(ctx, res, origin, cacheHit)
	return res, cacheHit, nil
}

// ResolveMany resolves pids against one snapshot read. The cache is bypassed
// so that every result in the batch describes the same snapshot; fresh
// results are still written back to it.
func (s *Service) ResolveMany(ctx context.Context, pids []int, origin events.Origin) ([]*binder.Resolution, error) {
	results, err := s.tracker.ResolveMany(ctx, pids)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if s.opts.Cache != nil {
			s.opts.Cache.Set(ctx, res)
		}
		s.record(ctx, res, origin, false)
	}
	return results, nil
}

func (s *Service) record(ctx context.Context, res *binder.Resolution, origin events.Origin, cacheHit bool) {
	if s.opts.Reports != nil && !cacheHit {
		if err := s.opts.Reports.Save(ctx, res); err != nil {
			logger.FromContext(ctx).Warn("failed to save report", "id", res.ID, "error", err)
		}
	}
	if s.opts.Collector != nil {
		s.opts.Collector.Track(events.FromResolution(res, origin, cacheHit, logger.RequestID(ctx)))
	}
}
