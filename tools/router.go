package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/MarcusD9722/Nova/core"
	"github.com/MarcusD9722/Nova/logging"
	"github.com/MarcusD9722/Nova/metrics"
)

var log = logging.For("router")

// Router defaults.
const (
	DefaultTimeout = 20 * time.Second
	DefaultRetries = 1

	retryBackoff = 200 * time.Millisecond
)

// ExecOptions bounds one Execute call.
type ExecOptions struct {
	// Timeout applies to each attempt. <= 0 selects DefaultTimeout.
	Timeout time.Duration

	// Retries is the number of extra attempts after the first. Negative
	// values are treated as 0.
	Retries int
}

// DefaultExecOptions returns a 20s timeout and one retry.
func DefaultExecOptions() ExecOptions {
	return ExecOptions{Timeout: DefaultTimeout, Retries: DefaultRetries}
}

// Router executes tool calls against a Registry. Execute never returns a Go
// error; every failure is reported in the ToolResult.
type Router struct {
	registry *Registry
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRateLimit caps attempts router-wide at perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) RouterOption {
	return func(r *Router) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewRouter creates a router over reg.
func NewRouter(reg *Registry, opts ...RouterOption) *Router {
	r := &Router{registry: reg, sleep: sleepCtx}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the router's registry.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Execute runs call. Unknown tools and invalid arguments fail without any
// attempt. Failed attempts are retried after 200ms × attempt, except that
// configuration errors and refusals are never retried and non-idempotent
// tools are not retried after a timeout.
func (r *Router) Execute(ctx context.Context, call core.ToolCall, opts ExecOptions) core.ToolResult {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	fields := logrus.Fields{"tool": call.Name}

	tool, ok := r.registry.Get(call.Name)
	if !ok {
		metrics.ToolCalls.WithLabelValues(call.Name, "unknown").Inc()
		log.WithFields(fields).Warn("unknown tool")
		return failure(call.Name, "unknown tool: "+call.Name)
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := Validate(tool.Schema, args); err != nil {
		metrics.ToolCalls.WithLabelValues(call.Name, "invalid_args").Inc()
		log.WithFields(fields).WithError(err).Warn("invalid tool arguments")
		return failure(call.Name, err.Error())
	}

	ctx = withIdempotencyKey(ctx, idempotencyKey(call.Name, args))

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				lastErr = fmt.Errorf("rate limit: %w", err)
				break
			}
		}

		result, err := r.attempt(ctx, tool, args, opts.Timeout)
		if err == nil {
			metrics.ToolAttempts.WithLabelValues(call.Name, "ok").Inc()
			metrics.ToolCalls.WithLabelValues(call.Name, "ok").Inc()
			return core.ToolResult{Name: call.Name, OK: true, Result: result}
		}
		lastErr = err

		timedOut := errors.Is(err, context.DeadlineExceeded)
		if timedOut {
			metrics.ToolAttempts.WithLabelValues(call.Name, "timeout").Inc()
		} else {
			metrics.ToolAttempts.WithLabelValues(call.Name, "error").Inc()
		}
		log.WithFields(fields).WithError(err).WithField("attempt", attempt+1).Warn("tool attempt failed")

		if errors.Is(err, core.ErrConfiguration) || errors.Is(err, ErrRefused) {
			break
		}
		if timedOut && !tool.Idempotent {
			break
		}
		if ctx.Err() != nil || attempt == opts.Retries {
			break
		}
		if err := r.sleep(ctx, retryBackoff*time.Duration(attempt+1)); err != nil {
			break
		}
	}

	metrics.ToolCalls.WithLabelValues(call.Name, "failed").Inc()
	return failure(call.Name, lastErr.Error())
}

// attempt runs tool.Fn under its own deadline. A timed-out attempt keeps
// running in the background; its result is discarded.
func (r *Router) attempt(ctx context.Context, tool *Tool, args map[string]any, timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", tool.Name, p)}
			}
		}()
		v, err := tool.Fn(ctx, args)
		done <- outcome{v: v, err: err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s: %w", timeout, context.DeadlineExceeded)
		}
		return nil, ctx.Err()
	}
}

func failure(name, msg string) core.ToolResult {
	return core.ToolResult{Name: name, OK: false, Error: msg}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type idempotencyKeyType struct{}

// IdempotencyKey returns the key shared by every attempt of the current
// call, or "" outside a router execution.
func IdempotencyKey(ctx context.Context) string {
	k, _ := ctx.Value(idempotencyKeyType{}).(string)
	return k
}

func withIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyType{}, key)
}

// idempotencyKey hashes the tool name and its arguments. encoding/json
// sorts map keys, so equal argument maps give equal keys.
func idempotencyKey(name string, args map[string]any) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	b, _ := json.Marshal(args)
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}
