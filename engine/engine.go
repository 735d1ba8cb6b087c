// Package engine runs the bounded plan/act loop: a text generator picks
// either a tool call or a final answer at each step, and tool results are fed
// back into the next prompt.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/MarcusD9722/Nova/core"
	"github.com/MarcusD9722/Nova/logging"
	"github.com/MarcusD9722/Nova/metrics"
	"github.com/MarcusD9722/Nova/tools"
)

var log = logging.For("engine")

const (
	DefaultMaxSteps      = 12
	DefaultHistoryWindow = 6

	// FallbackText is returned when no answer could be produced.
	FallbackText = "I wasn't able to complete that request."

	maxToolPayload = 6000
	maxRawInNote   = 200
	maxResultNote  = 500
)

// Engine drives a Generator through the plan/act loop.
type Engine struct {
	gen    core.Generator
	router *tools.Router

	maxSteps      int
	historyWindow int
	exec          tools.ExecOptions
}

// Option configures the engine.
type Option func(*Engine)

// WithMaxSteps bounds the number of planner calls per run.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithHistoryWindow sets how many prior step notes each prompt includes.
func WithHistoryWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyWindow = n
		}
	}
}

// WithExecOptions sets the timeout and retries used for tool calls.
func WithExecOptions(o tools.ExecOptions) Option {
	return func(e *Engine) {
		e.exec = o
	}
}

// New creates an engine.
func New(gen core.Generator, router *tools.Router, opts ...Option) *Engine {
	e := &Engine{
		gen:           gen,
		router:        router,
		maxSteps:      DefaultMaxSteps,
		historyWindow: DefaultHistoryWindow,
		exec:          tools.DefaultExecOptions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input is one user request.
type Input struct {
	UserMessage string

	// MemoryContext is rendered into every planning prompt. May be empty.
	MemoryContext string
}

// Output is the result of a run.
type Output struct {
	// Text is the user-facing answer. It is never empty.
	Text string

	// ToolCalls records every executed call in order.
	ToolCalls []core.ToolExecution

	// Steps is the number of planner calls made.
	Steps int

	// Summarized is set when the step budget ran out and the answer came
	// from the summarization call.
	Summarized bool
}

// decision is the JSON object the planner must return.
type decision struct {
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args"`
	Assistant string          `json:"assistant"`
}

// Run executes the loop. It returns an error only when ctx is done.
func (e *Engine) Run(ctx context.Context, in Input) (*Output, error) {
	out := &Output{}
	var history []string
	toolList := e.router.Registry().Describe()

	note := func(step int, outcome, format string, args ...any) {
		metrics.PlannerSteps.WithLabelValues(outcome).Inc()
		history = append(history, fmt.Sprintf("step %d: ", step)+fmt.Sprintf(format, args...))
	}

	for i := 1; i <= e.maxSteps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Steps = i

		prompt := planPrompt(toolList, in.MemoryContext, lastN(history, e.historyWindow), in.UserMessage)
		raw, err := e.gen.Generate(ctx, prompt, core.GenerateOptions{
			MaxTokens:   220,
			Temperature: 0,
			Stop:        []string{"\n\n", "\n#", "```"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).WithField("step", i).Warn("planner generation failed")
			note(i, "generate_error", "generate_error: %v", err)
			continue
		}
		raw = strings.TrimSpace(raw)

		obj, ok := extractJSONObject(raw)
		if !ok {
			note(i, "unparseable", "planner_output_unparseable: %s", logging.Truncate(raw, maxRawInNote))
			continue
		}
		var d decision
		if err := json.Unmarshal([]byte(obj), &d); err != nil {
			note(i, "json_error", "planner_json_error: %v", err)
			continue
		}

		switch d.Type {
		case "final":
			metrics.PlannerSteps.WithLabelValues("final").Inc()
			out.Text = strings.TrimSpace(d.Assistant)
			if out.Text == "" {
				out.Text = FallbackText
			}
			log.WithFields(logrus.Fields{"steps": i, "tool_calls": len(out.ToolCalls)}).Debug("planner finished")
			return out, nil
		case "tool":
		default:
			note(i, "invalid_type", "planner_invalid_type: %s", d.Type)
			continue
		}

		name := strings.TrimSpace(d.Name)
		if _, known := e.router.Registry().Get(name); !known {
			note(i, "unknown_tool", "unknown_tool: %s", name)
			continue
		}
		var args map[string]any
		if err := json.Unmarshal(d.Args, &args); err != nil || args == nil {
			note(i, "invalid_args", "invalid_args")
			continue
		}

		call := core.ToolCall{Name: name, Args: args}
		res := e.router.Execute(ctx, call, e.exec)
		out.ToolCalls = append(out.ToolCalls, core.ToolExecution{Call: call, Result: res})

		resultJSON, _ := json.Marshal(res.Result)
		note(i, "tool", "tool %s ok=%t error=%s result=%s",
			name, res.OK, res.Error, logging.Truncate(string(resultJSON), maxResultNote))
	}

	out.Summarized = true
	out.Text = e.summarize(ctx, in.UserMessage, out.ToolCalls)
	log.WithFields(logrus.Fields{
		"steps":      out.Steps,
		"tool_calls": len(out.ToolCalls),
	}).Info("step budget exhausted, summarized")
	return out, nil
}

// summarize produces the answer once the step budget is spent.
func (e *Engine) summarize(ctx context.Context, request string, calls []core.ToolExecution) string {
	if calls == nil {
		calls = []core.ToolExecution{}
	}
	payload, _ := json.Marshal(calls)
	if len(payload) > maxToolPayload {
		payload = payload[:maxToolPayload]
	}

	text, err := e.gen.Generate(ctx, summaryPrompt(request, string(payload)), core.GenerateOptions{
		MaxTokens:   256,
		Temperature: 0.1,
		Stop:        []string{"<tool_results>", "Tool results:", "Respond to the user in natural language"},
	})
	if err != nil {
		log.WithError(err).Warn("summary generation failed")
		return FallbackText
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackText
	}
	return text
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
