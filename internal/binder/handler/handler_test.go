package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/events"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/reader"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/service"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/rpc"
)

const snapshot = `... from 100:a to 200:b ...
... from 200:b to 300:c ...
... from 400:d to 500:e ...
`

type listStore struct {
	gotPID, gotLimit int
	latest           *binder.Resolution
}

func (s *listStore) Save(context.Context, *binder.Resolution) error { return nil }

func (s *listStore) List(_ context.Context, pid, limit int) ([]binder.Resolution, error) {
	s.gotPID, s.gotLimit = pid, limit
	return []binder.Resolution{{TargetPID: 100, PIDs: []int{100, 200}}}, nil
}

func (s *listStore) Latest(_ context.Context, pid int) (*binder.Resolution, error) {
	s.gotPID = pid
	return s.latest, nil
}

func newTestMux(opts service.Options, agg *events.Aggregator) *http.ServeMux {
	tracker := binder.New(&reader.BytesSource{Label: "test", Data: []byte(snapshot)}, binder.Options{})
	mux := http.NewServeMux()
	New(service.New(tracker, opts), agg, 2).Routes(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestResolve(t *testing.T) {
	mux := newTestMux(service.Options{}, nil)
	rec := do(t, mux, http.MethodGet, "/api/v1/binder/resolve?pid=300", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var res binder.Resolution
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if len(res.PIDs) != 3 || res.PIDs[0] != 300 {
		t.Errorf("PIDs = %v, want [300 200 100]", res.PIDs)
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("X-Cache = %q", rec.Header().Get("X-Cache"))
	}
}

func TestResolveBadRequests(t *testing.T) {
	mux := newTestMux(service.Options{}, nil)
	tests := []struct {
		name, method, target, body string
	}{
		{"missing pid", http.MethodGet, "/api/v1/binder/resolve", ""},
		{"non numeric", http.MethodGet, "/api/v1/binder/resolve?pid=abc", ""},
		{"zero pid", http.MethodGet, "/api/v1/binder/resolve?pid=0", ""},
		{"bad body", http.MethodPost, "/api/v1/binder/resolve", "{"},
		{"empty batch", http.MethodPost, "/api/v1/binder/resolve", `{"pids":[]}`},
		{"batch too large", http.MethodPost, "/api/v1/binder/resolve", `{"pids":[1,2,3]}`},
		{"negative in batch", http.MethodPost, "/api/v1/binder/resolve", `{"pids":[1,-2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, mux, tt.method, tt.target, tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestResolveBatch(t *testing.T) {
	mux := newTestMux(service.Options{}, nil)
	rec := do(t, mux, http.MethodPost, "/api/v1/binder/resolve", `{"pids":[500,100]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var results []binder.Resolution
	if err := json.NewDecoder(rec.Body).Decode(&results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].TargetPID != 500 || len(results[0].PIDs) != 2 {
		t.Errorf("results = %+v", results)
	}
}

func TestReports(t *testing.T) {
	if rec := do(t, newTestMux(service.Options{}, nil), http.MethodGet, "/api/v1/binder/reports", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("store disabled: status = %d, want 503", rec.Code)
	}

	store := &listStore{}
	mux := newTestMux(service.Options{Reports: store}, nil)
	rec := do(t, mux, http.MethodGet, "/api/v1/binder/reports?pid=200&limit=500", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if store.gotPID != 200 || store.gotLimit != maxReportLimit {
		t.Errorf("List(%d, %d), want List(200, %d)", store.gotPID, store.gotLimit, maxReportLimit)
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/binder/reports?limit=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0: status = %d, want 400", rec.Code)
	}
}

func TestLatestReport(t *testing.T) {
	store := &listStore{}
	mux := newTestMux(service.Options{Reports: store}, nil)

	if rec := do(t, mux, http.MethodGet, "/api/v1/binder/reports/latest?pid=100", ""); rec.Code != http.StatusNotFound {
		t.Errorf("no report: status = %d, want 404", rec.Code)
	}
	if store.gotPID != 100 {
		t.Errorf("Latest(%d), want Latest(100)", store.gotPID)
	}

	store.latest = &binder.Resolution{ID: "r1", TargetPID: 100, PIDs: []int{100, 200}}
	rec := do(t, mux, http.MethodGet, "/api/v1/binder/reports/latest?pid=100", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got binder.Resolution
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "r1" || len(got.PIDs) != 2 {
		t.Errorf("report = %+v", got)
	}

	for _, q := range []string{"", "?pid=x", "?pid=0"} {
		if rec := do(t, mux, http.MethodGet, "/api/v1/binder/reports/latest"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, want 400", q, rec.Code)
		}
	}

	disabled := newTestMux(service.Options{}, nil)
	if rec := do(t, disabled, http.MethodGet, "/api/v1/binder/reports/latest?pid=100", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no store: status = %d, want 503", rec.Code)
	}
}

func TestStatsAndCacheDisabled(t *testing.T) {
	agg := events.NewAggregator(nil)
	agg.Record(events.ResolutionEvent{TargetPID: 1, Outcome: "found"})
	mux := newTestMux(service.Options{}, agg)

	rec := do(t, mux, http.MethodGet, "/api/v1/binder/stats", "")
	var stats events.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalResolutions != 1 {
		t.Errorf("TotalResolutions = %d", stats.TotalResolutions)
	}

	if rec := do(t, mux, http.MethodGet, "/api/v1/cache/stats", ""); !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("cache stats = %s", rec.Body)
	}
	if rec := do(t, mux, http.MethodPost, "/api/v1/cache/invalidate", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d, want 503", rec.Code)
	}
}

func TestRPCResolve(t *testing.T) {
	tracker := binder.New(&reader.BytesSource{Label: "test", Data: []byte(snapshot)}, binder.Options{})
	s := rpc.NewServer(rpc.ServerConfig{})
	RegisterRPC(s, service.New(tracker, service.Options{}))
	if err := s.Listen("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	go s.Serve()
	defer s.Stop()

	c, err := rpc.Dial(s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var res binder.Resolution
	if err := c.Call(MethodResolve, ResolveParams{PID: 400}, &res); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(res.PIDs) != 2 || res.PIDs[0] != 400 || res.PIDs[1] != 500 {
		t.Errorf("PIDs = %v, want [400 500]", res.PIDs)
	}
	if err := c.Call(MethodResolve, ResolveParams{PID: -1}, &res); err == nil {
		t.Error("expected error for pid -1")
	}
}
