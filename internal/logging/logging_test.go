package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestStartSpanPropagatesTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := WithLogger(context.Background(), logger)

	ctx, parent := StartSpan(ctx, "parent")
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		t.Fatal("expected trace id to be assigned")
	}
	parentSpanID := SpanIDFromContext(ctx)

	childCtx, child := StartSpan(ctx, "child")
	if TraceIDFromContext(childCtx) != traceID {
		t.Fatal("expected child span to share the trace id")
	}
	if SpanIDFromContext(childCtx) == parentSpanID {
		t.Fatal("expected child span to have its own id")
	}

	child.EndWithError(errors.New("boom"))
	parent.End()

	out := buf.String()
	if !strings.Contains(out, `"parent_span_id":"`+parentSpanID+`"`) {
		t.Fatalf("expected parent span id in output: %s", out)
	}
	if !strings.Contains(out, `"error":"boom"`) {
		t.Fatalf("expected failure to be logged: %s", out)
	}
	if parent.Name() != "parent" {
		t.Fatalf("unexpected span name %q", parent.Name())
	}
}

func TestWithAccountID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx = WithAccountID(ctx, "acct-1")
	if got := AccountIDFromContext(ctx); got != "acct-1" {
		t.Fatalf("expected acct-1 got %q", got)
	}

	FromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), `"account_id":"acct-1"`) {
		t.Fatalf("expected account id on logger: %s", buf.String())
	}

	if AccountIDFromContext(context.Background()) != "" {
		t.Fatal("expected empty account id on bare context")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v want %v", in, got, want)
		}
	}
}
