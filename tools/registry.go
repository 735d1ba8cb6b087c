// Package tools holds the capability registry and the router that executes
// tool calls with timeouts, retries and argument validation.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/MarcusD9722/Nova/core"
)

// Func implements a capability. Errors wrapping core.ErrConfiguration or
// ErrRefused are surfaced without retry.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named capability.
type Tool struct {
	Name        string
	Description string

	// Schema is a JSON Schema object for Args. Nil accepts any object.
	Schema map[string]any

	// Idempotent tools may be retried after a timeout.
	Idempotent bool

	// Network tools call third-party services and can be switched off as a
	// group.
	Network bool

	Fn Func
}

// Registry maps tool names to tools. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds t. Empty names, missing functions and duplicates are
// configuration errors.
func (r *Registry) Register(t Tool) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: tool name cannot be empty", core.ErrConfiguration)
	}
	if t.Fn == nil {
		return fmt.Errorf("%w: tool %s has no function", core.ErrConfiguration, t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("%w: tool %s is already registered", core.ErrConfiguration, t.Name)
	}
	r.tools[t.Name] = &t
	return nil
}

// MustRegister registers every tool and panics on the first failure.
func (r *Registry) MustRegister(ts ...Tool) {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe renders "- name: description" lines for prompts, sorted by name.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, n := range r.Names() {
		t, _ := r.Get(n)
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
