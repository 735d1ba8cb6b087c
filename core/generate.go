package core

import "context"

// GenerateOptions tunes a single text-generation request.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Generator is the text-generation capability the engine and assistant
// drive. Implementations may be slow; callers pass a context they are
// prepared to cancel.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	return f(ctx, prompt, opts)
}
