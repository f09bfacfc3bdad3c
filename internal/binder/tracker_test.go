package binder

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/procinfo"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/reader"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/metrics"
)

const chainSnapshot = `... from 100:a to 200:b ...
... from 200:b to 300:c ...
... from 400:d to 500:e ...
`

func newTestTracker(t *testing.T, data string, opts Options) *Tracker {
	t.Helper()
	return New(&reader.BytesSource{Label: "test", Data: []byte(data)}, opts)
}

func TestResolveChain(t *testing.T) {
	tr := newTestTracker(t, chainSnapshot, Options{})
	res, err := tr.Resolve(context.Background(), 100)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := []int{100, 200, 300}; !reflect.DeepEqual(res.PIDs, want) {
		t.Errorf("PIDs = %v, want %v", res.PIDs, want)
	}
	if !res.SourceAvailable {
		t.Error("SourceAvailable = false")
	}
	if res.Pairs != 3 {
		t.Errorf("Pairs = %d, want 3", res.Pairs)
	}
	// {100,200}, {200,100,300}, {300,200}, {400,500} collapsed with {500,400}.
	if res.Groups != 4 {
		t.Errorf("Groups = %d, want 4", res.Groups)
	}
	if res.Outcome() != metrics.OutcomeFound {
		t.Errorf("Outcome = %q", res.Outcome())
	}
	if want := []int{200, 300}; !reflect.DeepEqual(res.Peers(), want) {
		t.Errorf("Peers = %v, want %v", res.Peers(), want)
	}
	if res.ID == "" {
		t.Error("missing resolution ID")
	}
}

func TestResolveInvalidPID(t *testing.T) {
	tr := newTestTracker(t, chainSnapshot, Options{})
	if _, err := tr.Resolve(context.Background(), 0); !apperrors.Is(err, apperrors.ErrInvalidPID) {
		t.Errorf("Resolve(0) err = %v, want ErrInvalidPID", err)
	}
	if _, err := tr.ResolveMany(context.Background(), []int{1, -2}); !apperrors.Is(err, apperrors.ErrInvalidPID) {
		t.Errorf("ResolveMany err = %v, want ErrInvalidPID", err)
	}
}

func TestResolveUnavailableSource(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	src := reader.NewFileSource(filepath.Join(t.TempDir(), "transactions"))
	tr := New(src, Options{OpenAttempts: 3, Metrics: m})

	res, err := tr.Resolve(context.Background(), 100)
	if err != nil {
		t.Fatalf("Resolve on missing source returned error: %v", err)
	}
	if res.SourceAvailable {
		t.Error("SourceAvailable = true for missing file")
	}
	if len(res.PIDs) != 0 {
		t.Errorf("PIDs = %v, want empty", res.PIDs)
	}
	if got := testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues(metrics.OutcomeUnavailable)); got != 1 {
		t.Errorf("unavailable outcome count = %v, want 1", got)
	}
}

func TestResolveEmptyAndZero(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		target int
		want   []int
	}{
		{"empty snapshot", "", 100, []int{}},
		{"zero endpoint", "... from 0:kernel to 50:x ...\n", 50, []int{}},
		{"self pair", "... from 10:a to 10:a ...\n", 10, []int{10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestTracker(t, tt.data, Options{}).Resolve(context.Background(), tt.target)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !reflect.DeepEqual(res.PIDs, tt.want) {
				t.Errorf("PIDs = %v, want %v", res.PIDs, tt.want)
			}
		})
	}
}

func TestResolveMany(t *testing.T) {
	tr := newTestTracker(t, chainSnapshot, Options{})
	results, err := tr.ResolveMany(context.Background(), []int{300, 500, 999})
	if err != nil {
		t.Fatalf("ResolveMany: %v", err)
	}
	want := [][]int{{300, 200, 100}, {500, 400}, {}}
	for i, res := range results {
		if !reflect.DeepEqual(res.PIDs, want[i]) {
			t.Errorf("result %d PIDs = %v, want %v", i, res.PIDs, want[i])
		}
	}
}

func TestResolveManyTimingsPerResult(t *testing.T) {
	tr := newTestTracker(t, chainSnapshot, Options{})
	results, err := tr.ResolveMany(context.Background(), []int{100, 400})
	if err != nil {
		t.Fatalf("ResolveMany: %v", err)
	}
	for i, res := range results {
		for _, phase := range []string{"read", "group", "walk"} {
			if _, ok := res.Timings[phase]; !ok {
				t.Errorf("result %d missing %q timing: %v", i, phase, res.Timings)
			}
		}
	}
	results[0].Timings["marker"] = 1
	if _, ok := results[1].Timings["marker"]; ok {
		t.Error("results share one Timings map")
	}
}

func TestResolveTimings(t *testing.T) {
	tr := newTestTracker(t, chainSnapshot, Options{})
	res, err := tr.Resolve(context.Background(), 100)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Timings) != 3 {
		t.Errorf("Timings = %v, want read, group and walk", res.Timings)
	}
}

func TestResolveConcurrentCallsAreIsolated(t *testing.T) {
	tr := newTestTracker(t, chainSnapshot, Options{})
	var wg sync.WaitGroup
	errs := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(target int) {
			defer wg.Done()
			res, err := tr.Resolve(context.Background(), target)
			if err != nil {
				errs <- err.Error()
				return
			}
			if target == 400 && len(res.PIDs) != 2 {
				errs <- "unexpected result for 400"
			}
			if target == 100 && len(res.PIDs) != 3 {
				errs <- "unexpected result for 100"
			}
		}([]int{100, 400}[i%2])
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

type stubAnnotator struct{}

func (stubAnnotator) Annotate(pids []int) []procinfo.Process {
	out := make([]procinfo.Process, len(pids))
	for i, pid := range pids {
		out[i] = procinfo.Process{PID: pid, Comm: "proc"}
	}
	return out
}

func TestResolveAnnotates(t *testing.T) {
	tr := newTestTracker(t, chainSnapshot, Options{Annotator: stubAnnotator{}})
	res, err := tr.Resolve(context.Background(), 400)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Processes) != 2 || res.Processes[1].PID != 500 || res.Processes[1].Comm != "proc" {
		t.Errorf("Processes = %+v", res.Processes)
	}
}

func TestResolveIterationBound(t *testing.T) {
	data := "from 1 to 2 x\nfrom 2 to 3 x\nfrom 3 to 4 x\nfrom 4 to 5 x\n"
	res, err := newTestTracker(t, data, Options{MaxIterations: 2}).Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Truncated || res.Outcome() != metrics.OutcomeTruncated {
		t.Errorf("expected truncated resolution, got %+v", res)
	}
}
