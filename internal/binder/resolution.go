package binder

import (
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/procinfo"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/reader"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/metrics"
)

// Resolution is the outcome of resolving one target pid.
type Resolution struct {
	ID        string             `json:"id"`
	TargetPID int                `json:"target_pid"`
	PIDs      []int              `json:"pids"`
	Processes []procinfo.Process `json:"processes,omitempty"`

	Pairs      int          `json:"pairs"`
	Groups     int          `json:"groups"`
	Parse      reader.Stats `json:"parse"`
	Iterations int          `json:"iterations"`

	SourceAvailable bool   `json:"source_available"`
	Truncated       bool   `json:"truncated"`
	Fault           string `json:"fault,omitempty"`

	ResolvedAt time.Time        `json:"resolved_at"`
	DurationUs int64            `json:"duration_us"`
	Timings    map[string]int64 `json:"timings_us,omitempty"`
}

func newResolution(pid int) *Resolution {
	return &Resolution{
		ID:         uuid.NewString(),
		TargetPID:  pid,
		PIDs:       []int{},
		ResolvedAt: time.Now().UTC(),
		Timings:    make(map[string]int64),
	}
}

// Outcome classifies the resolution with one of the metrics.Outcome* labels.
// A fault takes precedence over truncation, which takes precedence over an
// unavailable source.
func (r *Resolution) Outcome() string {
	switch {
	case r.Fault != "":
		return metrics.OutcomeFault
	case r.Truncated:
		return metrics.OutcomeTruncated
	case !r.SourceAvailable:
		return metrics.OutcomeUnavailable
	case len(r.PIDs) == 0:
		return metrics.OutcomeEmpty
	default:
		return metrics.OutcomeFound
	}
}

// Peers returns the resolved pids other than the target.
func (r *Resolution) Peers() []int {
	peers := make([]int, 0, len(r.PIDs))
	for _, pid := range r.PIDs {
		if pid != r.TargetPID {
			peers = append(peers, pid)
		}
	}
	return peers
}
