package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcusD9722/Nova/core"
)

func newTestRouter(t *testing.T, ts ...Tool) (*Router, *[]time.Duration) {
	t.Helper()
	reg := NewRegistry()
	for _, tool := range ts {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("register %s: %v", tool.Name, err)
		}
	}
	r := NewRouter(reg)
	var sleeps []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return r, &sleeps
}

func TestRegisterRejectsBadTools(t *testing.T) {
	reg := NewRegistry()
	fn := func(context.Context, map[string]any) (any, error) { return nil, nil }

	if err := reg.Register(Tool{Name: " ", Fn: fn}); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("empty name err = %v", err)
	}
	if err := reg.Register(Tool{Name: "x"}); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("nil fn err = %v", err)
	}
	if err := reg.Register(Tool{Name: "x", Fn: fn}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(Tool{Name: "x", Fn: fn}); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("duplicate err = %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustRegister did not panic on duplicate")
		}
	}()
	reg.MustRegister(Tool{Name: "x", Fn: fn})
}

func TestDescribeSorted(t *testing.T) {
	reg := NewRegistry()
	fn := func(context.Context, map[string]any) (any, error) { return nil, nil }
	reg.MustRegister(
		Tool{Name: "weather.current", Description: "Weather.", Fn: fn},
		Tool{Name: "maps.geocode", Description: "Geocode.", Fn: fn},
	)

	want := "- maps.geocode: Geocode.\n- weather.current: Weather."
	if got := reg.Describe(); got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r, _ := newTestRouter(t)

	res := r.Execute(context.Background(), core.ToolCall{Name: "bogus.tool"}, DefaultExecOptions())
	if res.OK || res.Error != "unknown tool: bogus.tool" {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteInvalidArgsNotAttempted(t *testing.T) {
	var calls int32
	r, _ := newTestRouter(t, Tool{
		Name:   "echo",
		Schema: ObjectSchema(map[string]any{"text": StringProperty("")}, "text"),
		Fn: func(context.Context, map[string]any) (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		},
	})

	res := r.Execute(context.Background(), core.ToolCall{Name: "echo", Args: map[string]any{"text": 3.0}}, DefaultExecOptions())
	if res.OK || !strings.Contains(res.Error, `"text" must be string`) {
		t.Errorf("result = %+v", res)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestExecuteRetriesErrorsWithBackoff(t *testing.T) {
	var calls int32
	r, sleeps := newTestRouter(t, Tool{
		Name: "flaky",
		Fn: func(context.Context, map[string]any) (any, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return nil, errors.New("temporary")
			}
			return "done", nil
		},
	})

	res := r.Execute(context.Background(), core.ToolCall{Name: "flaky"}, ExecOptions{Timeout: time.Second, Retries: 2})
	if !res.OK || res.Result != "done" {
		t.Fatalf("result = %+v", res)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}
	if fmt.Sprint(*sleeps) != fmt.Sprint(want) {
		t.Errorf("sleeps = %v, want %v", *sleeps, want)
	}
}

func TestExecuteGivesUpAfterRetries(t *testing.T) {
	var calls int32
	r, _ := newTestRouter(t, Tool{
		Name: "broken",
		Fn: func(context.Context, map[string]any) (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("still broken")
		},
	})

	res := r.Execute(context.Background(), core.ToolCall{Name: "broken"}, DefaultExecOptions())
	if res.OK || res.Error != "still broken" {
		t.Errorf("result = %+v", res)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestExecuteConfigurationErrorNotRetried(t *testing.T) {
	var calls int32
	r, _ := newTestRouter(t, Tool{
		Name:       "weather",
		Idempotent: true,
		Fn: func(context.Context, map[string]any) (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, fmt.Errorf("%w: missing required key: API_KEY", core.ErrConfiguration)
		},
	})

	res := r.Execute(context.Background(), core.ToolCall{Name: "weather"}, ExecOptions{Retries: 3})
	if res.OK || !strings.Contains(res.Error, "API_KEY") {
		t.Errorf("result = %+v", res)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecuteTimeoutRetryDependsOnIdempotency(t *testing.T) {
	slow := func(calls *int32) Func {
		return func(ctx context.Context, _ map[string]any) (any, error) {
			atomic.AddInt32(calls, 1)
			<-ctx.Done()
			return nil, ctx.Err()
		}
	}

	var sideEffecting, pure int32
	r, _ := newTestRouter(t,
		Tool{Name: "send", Fn: slow(&sideEffecting)},
		Tool{Name: "lookup", Idempotent: true, Fn: slow(&pure)},
	)
	opts := ExecOptions{Timeout: 20 * time.Millisecond, Retries: 1}

	res := r.Execute(context.Background(), core.ToolCall{Name: "send"}, opts)
	if res.OK || !strings.Contains(res.Error, "timed out") {
		t.Errorf("send result = %+v", res)
	}
	if n := atomic.LoadInt32(&sideEffecting); n != 1 {
		t.Errorf("non-idempotent attempts = %d, want 1", n)
	}

	r.Execute(context.Background(), core.ToolCall{Name: "lookup"}, opts)
	if n := atomic.LoadInt32(&pure); n != 2 {
		t.Errorf("idempotent attempts = %d, want 2", n)
	}
}

func TestIdempotencyKeyStableAcrossAttempts(t *testing.T) {
	var keys []string
	r, _ := newTestRouter(t, Tool{
		Name: "k",
		Fn: func(ctx context.Context, _ map[string]any) (any, error) {
			keys = append(keys, IdempotencyKey(ctx))
			return nil, errors.New("again")
		},
	})

	args := map[string]any{"b": 1.0, "a": "x"}
	r.Execute(context.Background(), core.ToolCall{Name: "k", Args: args}, ExecOptions{Retries: 1})
	if len(keys) != 2 || keys[0] == "" || keys[0] != keys[1] {
		t.Fatalf("keys = %q", keys)
	}
	if keys[0] != idempotencyKey("k", map[string]any{"a": "x", "b": 1.0}) {
		t.Error("key depends on map order")
	}
	if keys[0] == idempotencyKey("k", map[string]any{"a": "y", "b": 1.0}) {
		t.Error("different args gave the same key")
	}
}

func TestExecuteRecoversPanics(t *testing.T) {
	r, _ := newTestRouter(t, Tool{
		Name: "boom",
		Fn:   func(context.Context, map[string]any) (any, error) { panic("kaboom") },
	})

	res := r.Execute(context.Background(), core.ToolCall{Name: "boom"}, ExecOptions{})
	if res.OK || !strings.Contains(res.Error, "kaboom") {
		t.Errorf("result = %+v", res)
	}
}
