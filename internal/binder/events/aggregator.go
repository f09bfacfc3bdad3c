package events

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/kafka"
)

const maxLatencySamples = 10000

type Stats struct {
	TotalResolutions     int64            `json:"total_resolutions"`
	Outcomes             map[string]int64 `json:"outcomes"`
	CacheHits            int64            `json:"cache_hits"`
	AvgDurationUs        float64          `json:"avg_duration_us"`
	P50DurationUs        int64            `json:"p50_duration_us"`
	P95DurationUs        int64            `json:"p95_duration_us"`
	P99DurationUs        int64            `json:"p99_duration_us"`
	TopTargets           []PIDCount       `json:"top_targets"`
	TopPeers             []PIDCount       `json:"top_peers"`
	ResolutionsPerMinute float64          `json:"resolutions_per_minute"`
}

type PIDCount struct {
	PID   int   `json:"pid"`
	Count int64 `json:"count"`
}

// Aggregator folds resolution events into Stats. TopPeers counts how often a
// pid showed up in someone else's communication set, which surfaces the
// processes most often sitting in hung call chains.
type Aggregator struct {
	mu           sync.RWMutex
	total        int64
	cacheHits    int64
	outcomes     map[string]int64
	latencies    []int64
	next         int
	targetCounts map[int]int64
	peerCounts   map[int]int64
	startTime    time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator. consumer may be nil when events are
// fed through Record directly.
func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		outcomes:     make(map[string]int64),
		latencies:    make([]int64, 0, 1024),
		targetCounts: make(map[int]int64),
		peerCounts:   make(map[int]int64),
		startTime:    time.Now(),
		consumer:     consumer,
		logger:       slog.Default().With("component", "resolution-aggregator"),
	}
}

// SetConsumer attaches the consumer whose handler feeds this aggregator.
func (a *Aggregator) SetConsumer(consumer *kafka.Consumer) {
	a.consumer = consumer
}

func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		<-ctx.Done()
		return nil
	}
	a.logger.Info("resolution aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent returns a kafka.MessageHandler that records ResolutionEvents
// and ignores other event types.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, eventType string, key []byte, value []byte) error {
		if eventType != "" && eventType != TypeResolution {
			return nil
		}
		event, err := kafka.DecodeJSON[ResolutionEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode resolution event", "key", string(key), "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

func (a *Aggregator) Record(event ResolutionEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.outcomes[event.Outcome]++
	if event.CacheHit {
		a.cacheHits++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.DurationUs)
	} else {
		a.latencies[a.next] = event.DurationUs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.targetCounts[event.TargetPID]++
	for _, pid := range event.PIDs {
		if pid != event.TargetPID {
			a.peerCounts[pid]++
		}
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		TotalResolutions: a.total,
		Outcomes:         make(map[string]int64, len(a.outcomes)),
		CacheHits:        a.cacheHits,
	}
	for k, v := range a.outcomes {
		stats.Outcomes[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgDurationUs = float64(sum) / float64(len(sorted))
		stats.P50DurationUs = percentile(sorted, 50)
		stats.P95DurationUs = percentile(sorted, 95)
		stats.P99DurationUs = percentile(sorted, 99)
	}
	stats.TopTargets = topN(a.targetCounts, 10)
	stats.TopPeers = topN(a.peerCounts, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.ResolutionsPerMinute = float64(stats.TotalResolutions) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n highest counts, ties broken by ascending pid.
func topN(counts map[int]int64, n int) []PIDCount {
	result := make([]PIDCount, 0, len(counts))
	for pid, count := range counts {
		result = append(result, PIDCount{PID: pid, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].PID < result[j].PID
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
