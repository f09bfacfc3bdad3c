// Package events streams resolution outcomes to Kafka and aggregates them
// back into service-wide statistics.
package events

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder"
)

// TypeResolution is the event-type header of ResolutionEvent messages.
const TypeResolution = "binder.resolution"

// Origin names the surface that triggered a resolution.
type Origin string

const (
	OriginCLI  Origin = "cli"
	OriginHTTP Origin = "http"
	OriginRPC  Origin = "rpc"
)

type ResolutionEvent struct {
	ID         string    `json:"id"`
	TargetPID  int       `json:"target_pid"`
	PIDs       []int     `json:"pids"`
	Outcome    string    `json:"outcome"`
	Pairs      int       `json:"pairs"`
	DurationUs int64     `json:"duration_us"`
	CacheHit   bool      `json:"cache_hit"`
	Origin     Origin    `json:"origin"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func FromResolution(res *binder.Resolution, origin Origin, cacheHit bool, requestID string) ResolutionEvent {
	return ResolutionEvent{
		ID:         res.ID,
		TargetPID:  res.TargetPID,
		PIDs:       res.PIDs,
		Outcome:    res.Outcome(),
		Pairs:      res.Pairs,
		DurationUs: res.DurationUs,
		CacheHit:   cacheHit,
		Origin:     origin,
		RequestID:  requestID,
		Timestamp:  time.Now().UTC(),
	}
}
