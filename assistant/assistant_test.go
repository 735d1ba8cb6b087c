package assistant_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MarcusD9722/Nova/assistant"
	"github.com/MarcusD9722/Nova/core"
	"github.com/MarcusD9722/Nova/engine"
	"github.com/MarcusD9722/Nova/memory"
	"github.com/MarcusD9722/Nova/memory/audit"
	"github.com/MarcusD9722/Nova/memory/cache"
	"github.com/MarcusD9722/Nova/memory/embedder/hash"
	"github.com/MarcusD9722/Nova/memory/store/chromem"
	"github.com/MarcusD9722/Nova/memory/store/sqlite"
	"github.com/MarcusD9722/Nova/staging"
	"github.com/MarcusD9722/Nova/tools"
)

// recordingGenerator returns reply for every prompt and keeps the prompts.
type recordingGenerator struct {
	mu      sync.Mutex
	reply   string
	prompts []string
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string, _ core.GenerateOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, nil
}

type fixture struct {
	memory *memory.Unifier
	store  *sqlite.Store
	gen    *recordingGenerator
	echoes int
	reg    *tools.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := sqlite.New(dir + "/nova.db")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	index, err := chromem.New(chromem.Config{}, hash.New(0))
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	c, err := cache.NewLocal(0)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	a, err := audit.New(dir+"/audit", nil)
	if err != nil {
		t.Fatalf("create audit: %v", err)
	}

	f := &fixture{
		memory: memory.NewUnifier(store, index, c, a, nil),
		store:  store,
		gen:    &recordingGenerator{reply: "Hello from Nova."},
		reg:    tools.NewRegistry(),
	}
	f.reg.MustRegister(tools.Tool{
		Name:        "echo",
		Description: "Echo the text argument.",
		Schema:      tools.ObjectSchema(map[string]any{"text": tools.StringProperty("")}, "text"),
		Idempotent:  true,
		Fn: func(_ context.Context, args map[string]any) (any, error) {
			f.echoes++
			return map[string]any{"text": args["text"]}, nil
		},
	})
	return f
}

func (f *fixture) assistant(cfg assistant.Config) *assistant.Assistant {
	router := tools.NewRouter(f.reg)
	eng := engine.New(f.gen, router)
	return assistant.New(f.memory, staging.NewMemoryStore(0), router, eng, f.gen, cfg)
}

func chat(t *testing.T, a *assistant.Assistant, msg, conv string) *assistant.Reply {
	t.Helper()
	r, err := a.Chat(context.Background(), msg, conv)
	if err != nil {
		t.Fatalf("chat %q: %v", msg, err)
	}
	return r
}

func TestApprovalConfirmed(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(assistant.Config{})

	r := chat(t, a, "my wife is Ana", "")
	if r.ConversationID == "" || r.Staged != 1 {
		t.Fatalf("reply = %+v", r)
	}
	if !strings.HasSuffix(r.Text, strings.TrimSpace(assistant.ApprovalPrompt)) {
		t.Errorf("text lacks approval prompt: %q", r.Text)
	}
	if _, err := f.memory.LatestFact(context.Background(), "user", "spouse"); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("spouse written before approval: %v", err)
	}

	r = chat(t, a, "yes", r.ConversationID)
	if r.Text != assistant.ConfirmedText {
		t.Errorf("text = %q", r.Text)
	}
	fact, err := f.memory.LatestFact(context.Background(), "user", "spouse")
	if err != nil || fact.Value != "Ana" {
		t.Errorf("spouse = %+v, %v", fact, err)
	}
}

func TestApprovalDenied(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(assistant.Config{})

	r := chat(t, a, "my wife is Ana", "")
	r = chat(t, a, "no thanks", r.ConversationID)
	if r.Text != assistant.DeniedText {
		t.Errorf("text = %q", r.Text)
	}
	if _, err := f.memory.LatestFact(context.Background(), "user", "spouse"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("spouse written after denial: %v", err)
	}
}

func TestAutoSaveMode(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(assistant.Config{SaveMode: "relationships"})

	r := chat(t, a, "my wife is Ana", "")
	if r.Staged != 0 || strings.Contains(r.Text, "remember that") {
		t.Errorf("reply = %+v", r)
	}
	fact, err := f.memory.LatestFact(context.Background(), "user", "spouse")
	if err != nil || fact.Value != "Ana" {
		t.Errorf("spouse = %+v, %v", fact, err)
	}
}

func TestAutoFactsAndTurns(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(assistant.Config{})

	r := chat(t, a, "my name is Marcus", "")
	fact, err := f.memory.LatestFact(context.Background(), "user", "name")
	if err != nil || fact.Value != "Marcus" {
		t.Fatalf("name = %+v, %v", fact, err)
	}
	people, err := f.store.SearchPeople(context.Background(), "marcus", 5)
	if err != nil || len(people) != 1 || people[0].Attributes["relation"] != "user" {
		t.Errorf("people = %+v, %v", people, err)
	}

	turns, err := f.store.RecentTurns(context.Background(), r.ConversationID, 10)
	if err != nil {
		t.Fatalf("recent turns: %v", err)
	}
	if len(turns) != 2 || turns[0].Role != "assistant" || turns[1].Role != "user" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestRosterAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.memory.AddFact(ctx, "user", "spouse", "Ana", 0.85); err != nil {
		t.Fatal(err)
	}
	if _, err := f.memory.AddFact(ctx, "user", "pet", "Rex|dog", 0.9); err != nil {
		t.Fatal(err)
	}
	a := f.assistant(assistant.Config{EngineEnabled: true})

	r := chat(t, a, "What do you know about my family?", "")
	if r.Text != "I know your spouse: Ana; pets: Rex." {
		t.Errorf("text = %q", r.Text)
	}
	r = chat(t, a, "what's my dog's name?", "")
	if r.Text != "Your pet's name is Rex." {
		t.Errorf("text = %q", r.Text)
	}
	r = chat(t, a, "what are my parents' names?", "")
	if r.Text != "I don't have your parents' names saved yet." {
		t.Errorf("text = %q", r.Text)
	}
	if len(f.gen.prompts) != 0 {
		t.Errorf("generator called %d times for roster answers", len(f.gen.prompts))
	}
}

func TestExplicitToolCommand(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(assistant.Config{EngineEnabled: true})

	r := chat(t, a, `/tool echo {"text":"ping"}`, "")
	if f.echoes != 1 || len(r.ToolCalls) != 1 || !r.ToolCalls[0].Result.OK {
		t.Fatalf("tool calls = %+v", r.ToolCalls)
	}
	if r.Text != "Hello from Nova." {
		t.Errorf("text = %q", r.Text)
	}
	if len(f.gen.prompts) != 1 || !strings.Contains(f.gen.prompts[0], "Tool output:") {
		t.Errorf("prompts = %q", f.gen.prompts)
	}

	chat(t, a, `/tool echo {not json`, "")
	if f.echoes != 1 {
		t.Errorf("malformed command executed a tool")
	}
}

func TestSmalltalkSkipsEngine(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(assistant.Config{EngineEnabled: true})

	r := chat(t, a, "hey nova", "")
	if r.Text != "Hello from Nova." || len(f.gen.prompts) != 1 {
		t.Fatalf("reply = %+v, prompts = %d", r, len(f.gen.prompts))
	}
	if !strings.HasSuffix(f.gen.prompts[0], "Nova:") {
		t.Errorf("expected direct chat prompt, got:\n%s", f.gen.prompts[0])
	}
}

func TestEngineAnswer(t *testing.T) {
	f := newFixture(t)
	f.gen.reply = `{"type":"final","assistant":"Lisbon is lovely in spring."}`
	a := f.assistant(assistant.Config{EngineEnabled: true})

	r := chat(t, a, "Where should I travel in April?", "")
	if r.Text != "Lisbon is lovely in spring." {
		t.Errorf("text = %q", r.Text)
	}
	if len(f.gen.prompts) != 1 {
		t.Errorf("generate calls = %d, want 1", len(f.gen.prompts))
	}
}

func TestNoGenerator(t *testing.T) {
	f := newFixture(t)
	router := tools.NewRouter(f.reg)
	a := assistant.New(f.memory, staging.NewMemoryStore(0), router, nil, nil, assistant.Config{})

	r := chat(t, a, "tell a story", "")
	if r.Text != assistant.NoModelText {
		t.Errorf("text = %q", r.Text)
	}
}

func TestIsSmalltalk(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"", true},
		{"Hi!", true},
		{"hey nova, how's it going", false},
		{"hey there", true},
		{"good morning", true},
		{"thanks a lot", true},
		{"what time is it?", false},
		{"find flights", false},
		{"tell me about the history of the roman empire", false},
	}
	for _, tt := range tests {
		if got := assistant.IsSmalltalk(tt.msg); got != tt.want {
			t.Errorf("IsSmalltalk(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
