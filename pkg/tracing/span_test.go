package tracing

import (
	"context"
	"testing"
)

func TestChildSpansInheritTrace(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "resolve", "trace-1")
	_, read := StartChildSpan(ctx, "read")
	read.End()
	_, walk := StartChildSpan(ctx, "walk")
	walk.SetAttr("pids", 3)
	walk.End()
	root.End()

	if read.TraceID != "trace-1" || walk.TraceID != "trace-1" {
		t.Errorf("children did not inherit trace id: %q %q", read.TraceID, walk.TraceID)
	}
	timings := root.Timings()
	if _, ok := timings["read"]; !ok {
		t.Errorf("missing read timing in %v", timings)
	}
	if _, ok := timings["walk"]; !ok {
		t.Errorf("missing walk timing in %v", timings)
	}
	root.Log(nil)
}

func TestDetachedChild(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	if span.TraceID != "" {
		t.Errorf("orphan TraceID = %q, want empty", span.TraceID)
	}
	if SpanFromContext(ctx) != span {
		t.Error("span not stored in context")
	}
}
