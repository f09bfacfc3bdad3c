// Package closure computes the transitive set of pids reachable from a target
// through shared binder neighbor groups.
package closure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/group"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/errors"
)

// DefaultMaxIterations bounds the number of frontier rounds when Options
// leaves it unset.
const DefaultMaxIterations = 10000

// Lookup returns the neighbor group of a pid, or nil if the pid is unknown.
// group.Table satisfies it.
type Lookup interface {
	Neighbors(pid int) *group.Group
}

// Options bounds a walk.
type Options struct {
	MaxIterations int
	Logger        *slog.Logger
}

// Result is the outcome of one walk. PIDs is in discovery order and never
// holds duplicates.
type Result struct {
	Target     int   `json:"target"`
	PIDs       []int `json:"pids"`
	Iterations int   `json:"iterations"`
	// Truncated is set when the walk stopped on the iteration bound or on ctx
	// before the frontier drained.
	Truncated bool `json:"truncated"`
	// Fault is set when expansion panicked; PIDs holds what was found before.
	Fault error `json:"-"`
}

// Walk expands the frontier breadth-first starting at target until no new
// pid is found. It never panics and never returns an error: faults and
// cancellation are reported on the Result alongside the partial set.
func Walk(ctx context.Context, target int, table Lookup, opts Options) (res Result) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "closure-walker")
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	res.Target = target
	res.PIDs = []int{}
	if target <= 0 || table == nil {
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res.Fault = fmt.Errorf("%w: %v", apperrors.ErrInternalFault, r)
			logger.Error("closure walk failed, returning partial result",
				"target", target,
				"found", len(res.PIDs),
				"iteration", res.Iterations,
				"error", res.Fault,
			)
		}
	}()

	visited := make(map[int]struct{})
	frontier := []int{target}
	for len(frontier) > 0 {
		if res.Iterations >= maxIter {
			res.Truncated = true
			logger.Warn("closure walk hit iteration bound",
				"target", target, "max_iterations", maxIter, "found", len(res.PIDs))
			return res
		}
		if err := ctx.Err(); err != nil {
			res.Truncated = true
			logger.Warn("closure walk interrupted",
				"target", target, "found", len(res.PIDs), "error", err)
			return res
		}
		res.Iterations++

		var next []int
		for _, p := range frontier {
			g := table.Neighbors(p)
			if g == nil {
				continue
			}
			for _, q := range g.Members {
				if q <= 0 {
					continue
				}
				if _, ok := visited[q]; ok {
					continue
				}
				visited[q] = struct{}{}
				res.PIDs = append(res.PIDs, q)
				next = append(next, q)
				logger.Debug("binder communication", "pid", p, "with", q)
			}
		}
		frontier = next
	}
	return res
}
