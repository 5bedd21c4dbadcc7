package licensing

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunnerDetachesAndTimesOut(t *testing.T) {
	r := NewRunner(zap.NewNop(), 50*time.Millisecond)
	var deadline bool
	r.Go("probe", nil, func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	})
	r.Wait()
	if !deadline {
		t.Fatal("task context has no deadline")
	}
}

func TestRunnerLogsFailuresAndPanics(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRunner(zap.New(core), 0)
	if r.timeout != DefaultTaskTimeout {
		t.Fatalf("timeout = %v, want default", r.timeout)
	}
	r.Go("fails", []zap.Field{zap.String("purchase_id", "p1")}, func(context.Context) error {
		return errors.New("nope")
	})
	r.Go("panics", nil, func(context.Context) error { panic("boom") })
	r.Go("ok", nil, func(context.Context) error { return nil })
	r.Wait()

	entries := logs.FilterMessage("side effect failed").All()
	if len(entries) != 2 {
		t.Fatalf("logged %d failures, want 2", len(entries))
	}
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.ContextMap()["task"].(string)] = true
	}
	if !seen["fails"] || !seen["panics"] {
		t.Fatalf("tasks logged = %v", seen)
	}
}
