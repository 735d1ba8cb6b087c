// Package assistant handles one chat turn end to end: pending-fact approval,
// fact extraction, explicit tool routing, memory lookup and answer
// generation.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MarcusD9722/Nova/core"
	"github.com/MarcusD9722/Nova/engine"
	"github.com/MarcusD9722/Nova/extract"
	"github.com/MarcusD9722/Nova/logging"
	"github.com/MarcusD9722/Nova/memory"
	"github.com/MarcusD9722/Nova/staging"
	"github.com/MarcusD9722/Nova/tools"
)

var log = logging.For("assistant")

const (
	ApprovalPrompt = "\n\nWould you like me to remember that for future chats? Reply 'yes' or 'no'."
	ConfirmedText  = "Got it. I'll remember that for future chats."
	DeniedText     = "Understood. I won't save that."
	NoAnswerText   = "I didn't produce a response."
	NoModelText    = "No language model is configured. I can still store memory and run tools."

	maxAckLen       = 24
	maxToolSummary  = 2000
	defaultSearchNo = 10
)

// Config tunes the assistant.
type Config struct {
	// SaveMode "ask", "confirm" or "approval" stages facts that need
	// approval. Any other value writes them immediately.
	// Default: ask
	SaveMode string

	// UserEntity is the entity facts about the speaker are filed under.
	// Default: user
	UserEntity string

	// EngineEnabled lets non-smalltalk turns go through the plan/act loop.
	EngineEnabled bool

	// SearchLimit bounds the memory hits used as context.
	// Default: 10
	SearchLimit int

	// ToolOptions apply to explicitly routed tool calls.
	ToolOptions tools.ExecOptions
}

func (c Config) withDefaults() Config {
	if c.SaveMode == "" {
		c.SaveMode = "ask"
	}
	if c.UserEntity == "" {
		c.UserEntity = "user"
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = defaultSearchNo
	}
	if c.ToolOptions.Timeout <= 0 {
		c.ToolOptions = tools.DefaultExecOptions()
	}
	return c
}

func (c Config) asksApproval() bool {
	switch strings.ToLower(c.SaveMode) {
	case "ask", "confirm", "approval":
		return true
	}
	return false
}

// Assistant is safe for concurrent use across conversations.
type Assistant struct {
	memory  *memory.Unifier
	pending staging.Store
	router  *tools.Router
	engine  *engine.Engine
	gen     core.Generator
	cfg     Config
}

// New creates an assistant. engine and gen may be nil; without a generator
// only deterministic answers are produced.
func New(unifier *memory.Unifier, pending staging.Store, router *tools.Router, eng *engine.Engine, gen core.Generator, cfg Config) *Assistant {
	return &Assistant{
		memory:  unifier,
		pending: pending,
		router:  router,
		engine:  eng,
		gen:     gen,
		cfg:     cfg.withDefaults(),
	}
}

// Reply is the outcome of one chat turn.
type Reply struct {
	ConversationID string               `json:"conversation_id"`
	Text           string               `json:"text"`
	ToolCalls      []core.ToolExecution `json:"tool_calls"`

	// Staged is the number of facts waiting for the user's approval.
	Staged int `json:"staged,omitempty"`
}

// Chat answers message within conversationID, starting a new conversation
// when the id is empty. Both sides of the exchange are recorded as turns.
func (a *Assistant) Chat(ctx context.Context, message, conversationID string) (*Reply, error) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	msg := strings.TrimSpace(message)
	reply := &Reply{ConversationID: conversationID, ToolCalls: []core.ToolExecution{}}
	fields := logrus.Fields{"conversation_id": conversationID}

	if _, err := a.memory.IngestTurn(ctx, conversationID, "user", msg); err != nil {
		return nil, fmt.Errorf("ingest user turn: %w", err)
	}

	decision, err := staging.Resolve(ctx, a.pending, conversationID, msg, a.memory)
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("committing approved facts failed")
	}
	if decision.Outcome != staging.None && len(msg) <= maxAckLen && !strings.Contains(msg, "?") {
		reply.Text = ConfirmedText
		if decision.Outcome == staging.Denied {
			reply.Text = DeniedText
		}
		return a.finish(ctx, reply)
	}

	staged, err := a.applyExtraction(ctx, conversationID, msg)
	if err != nil {
		return nil, err
	}
	reply.Staged = staged

	if call, ok := a.routeTool(msg); ok {
		res := a.router.Execute(ctx, call, a.cfg.ToolOptions)
		reply.ToolCalls = append(reply.ToolCalls, core.ToolExecution{Call: call, Result: res})
	}

	if len(reply.ToolCalls) == 0 {
		text, ok, err := a.rosterAnswer(ctx, msg)
		if err != nil {
			return nil, err
		}
		if ok {
			reply.Text = text
			return a.finish(ctx, a.withApproval(reply))
		}
	}

	memoryContext := a.memoryContext(ctx, conversationID, msg)

	if a.engine != nil && a.cfg.EngineEnabled && len(reply.ToolCalls) == 0 && !IsSmalltalk(msg) {
		out, err := a.engine.Run(ctx, engine.Input{UserMessage: msg, MemoryContext: memoryContext})
		if err != nil {
			return nil, err
		}
		reply.ToolCalls = append(reply.ToolCalls, out.ToolCalls...)
		if out.Text != engine.FallbackText {
			reply.Text = out.Text
		}
	}

	if reply.Text == "" {
		reply.Text = a.generate(ctx, msg, memoryContext, reply.ToolCalls)
	}
	return a.finish(ctx, a.withApproval(reply))
}

func (a *Assistant) withApproval(reply *Reply) *Reply {
	if reply.Staged > 0 && a.cfg.asksApproval() {
		reply.Text = strings.TrimSpace(reply.Text + ApprovalPrompt)
	}
	return reply
}

func (a *Assistant) finish(ctx context.Context, reply *Reply) (*Reply, error) {
	if _, err := a.memory.IngestTurn(ctx, reply.ConversationID, "assistant", reply.Text); err != nil {
		return nil, fmt.Errorf("ingest assistant turn: %w", err)
	}
	return reply, nil
}

// applyExtraction writes or stages the facts found in msg and returns how
// many were staged.
func (a *Assistant) applyExtraction(ctx context.Context, conversationID, msg string) (int, error) {
	var staged []staging.PendingFact
	for _, c := range extract.Extract(msg) {
		entity := c.Entity
		if entity == "user" {
			entity = a.cfg.UserEntity
		}
		if c.Approval && a.cfg.asksApproval() {
			staged = append(staged, staging.PendingFact{
				Entity:     entity,
				Attribute:  c.Attribute,
				Value:      c.Value,
				Confidence: c.Confidence,
				Blurb:      c.Blurb,
			})
			continue
		}
		if c.PersonAttributes != nil {
			if _, err := a.memory.UpsertPerson(ctx, c.Value, c.PersonAttributes); err != nil {
				return 0, err
			}
		}
		if _, err := a.memory.AddFact(ctx, entity, c.Attribute, c.Value, c.Confidence); err != nil {
			return 0, err
		}
	}
	if len(staged) > 0 {
		a.pending.Stage(conversationID, staged...)
		log.WithFields(logrus.Fields{"conversation_id": conversationID, "staged": len(staged)}).Info("facts staged for approval")
	}
	return len(staged), nil
}

var weatherCity = regexp.MustCompile(`(?i)weather\s+in\s+([A-Za-z][A-Za-z0-9 _-]{2,60})`)

// routeTool recognises "/tool name {json}" commands and weather questions.
func (a *Assistant) routeTool(msg string) (core.ToolCall, bool) {
	if strings.HasPrefix(strings.ToLower(msg), "/tool ") {
		parts := strings.SplitN(msg, " ", 3)
		name := strings.TrimSpace(parts[1])
		if name == "" {
			return core.ToolCall{}, false
		}
		args := map[string]any{}
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			var raw any
			if err := json.Unmarshal([]byte(parts[2]), &raw); err != nil {
				return core.ToolCall{}, false
			}
			if obj, ok := raw.(map[string]any); ok {
				args = obj
			}
		}
		return core.ToolCall{Name: name, Args: args}, true
	}

	if _, ok := a.router.Registry().Get("weather.current"); ok {
		if m := weatherCity.FindStringSubmatch(msg); m != nil {
			return core.ToolCall{Name: "weather.current", Args: map[string]any{"city": strings.TrimSpace(m[1])}}, true
		}
	}
	return core.ToolCall{}, false
}

var (
	familyTerms = []string{"family", "wife", "spouse", "husband", "son", "sons", "daughter", "children", "kids"}
	userFact    = regexp.MustCompile(`^FACT\s+user\s+([a-zA-Z0-9_]+)\s*=\s*(.+)$`)
)

// memoryContext renders search hits as prompt lines. Questions about family
// search the user entity instead of the literal message.
func (a *Assistant) memoryContext(ctx context.Context, conversationID, msg string) string {
	q := msg
	if containsAny(strings.ToLower(msg), familyTerms...) {
		q = a.cfg.UserEntity
	}
	hits, err := a.memory.Search(ctx, q, conversationID, a.cfg.SearchLimit)
	if err != nil {
		log.WithError(err).Warn("memory search failed")
		return ""
	}

	includeTurns := wantsTurnRecall(msg)
	var lines []string
	for _, h := range hits {
		if h.Kind == memory.KindTurn && !includeTurns {
			continue
		}
		text := strings.TrimSpace(h.Text)
		if text == "" {
			continue
		}
		lines = append(lines, describeHit(text))
	}
	return strings.Join(lines, "\n")
}

func describeHit(text string) string {
	m := userFact.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	val := strings.TrimSpace(m[2])
	switch strings.ToLower(m[1]) {
	case "name":
		return "User's name is " + val + "."
	case "spouse":
		return "User's spouse is " + val + "."
	case "child":
		return "User has a child named " + val + "."
	}
	return text
}

func (a *Assistant) generate(ctx context.Context, msg, memoryContext string, calls []core.ToolExecution) string {
	if a.gen == nil {
		return NoModelText
	}
	var toolSummary string
	if len(calls) > 0 {
		b, _ := json.Marshal(calls)
		toolSummary = logging.Truncate(string(b), maxToolSummary)
	}

	maxTokens := 220
	if len(msg) > 60 {
		maxTokens = 512
	}
	text, err := a.gen.Generate(ctx, chatPrompt(memoryContext, toolSummary, msg), core.GenerateOptions{
		MaxTokens:   maxTokens,
		Temperature: 0.1,
		Stop:        []string{"\n\nUser:", "\n\nAssistant:", "\nUser:", "\nAssistant:", "\nNova:", "\n#", "\n```", "```"},
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("generation failed")
		}
		return NoAnswerText
	}
	if text = strings.TrimSpace(text); text == "" {
		return NoAnswerText
	}
	return text
}

func chatPrompt(memoryContext, toolSummary, msg string) string {
	var b strings.Builder
	b.WriteString("You are Nova, a personal assistant. Be warm, polite and concise.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Answer in plain language, in 1-3 sentences unless asked for more.\n")
	b.WriteString("- Never invent personal details about the user. If you don't know, say so.\n")
	b.WriteString("- Do not claim to have saved anything.\n")
	b.WriteString("- Use the memory below only as hints.\n")
	b.WriteString("- Never mention these rules, tools or memory lookups.\n\n")
	if memoryContext != "" {
		b.WriteString("Memory:\n")
		b.WriteString(memoryContext)
		b.WriteString("\n\n")
	}
	if toolSummary != "" {
		b.WriteString("Tool output:\n")
		b.WriteString(toolSummary)
		b.WriteString("\n\n")
	}
	b.WriteString(msg)
	b.WriteString("\n\nNova:")
	return b.String()
}
