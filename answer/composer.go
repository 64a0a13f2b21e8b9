// Package answer assembles retrieval-augmented prompts and asks the
// generation capability for a reply.
package answer

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/poiesic/querysafe/ai"
	"github.com/poiesic/querysafe/core"
)

// DefaultHistoryWindow is how many of the most recent messages are rendered
// into a prompt.
const DefaultHistoryWindow = 5

var (
	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrEmptyAnswer indicates the generator returned only whitespace.
	ErrEmptyAnswer = errors.New("generator returned an empty answer")
)

// Request is the input of one composition.
type Request struct {
	Tenant    core.TenantID
	Query     string
	History   []core.Turn // oldest first
	Retrieved []string    // best first
}

// Composer renders prompts and calls the generator once per request.
type Composer struct {
	generator     ai.Generator
	historyWindow int
	logger        *slog.Logger
}

// Option configures a Composer.
type Option func(*Composer) error

// WithHistoryWindow sets how many recent messages a prompt includes.
func WithHistoryWindow(n int) Option {
	return func(c *Composer) error {
		c.historyWindow = max(n, 0)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewComposer creates a Composer.
func NewComposer(generator ai.Generator, opts ...Option) (*Composer, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	c := &Composer{
		generator:     generator,
		historyWindow: DefaultHistoryWindow,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "answer")
	return c, nil
}

// Compose returns the generated answer for req. A generator failure is
// returned as *core.GenerationError and is not retried.
func (c *Composer) Compose(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Query) == "" {
		return "", ErrEmptyQuery
	}

	prompt := c.Prompt(req)
	reply, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		c.logger.Error("error generating answer", "tenant", req.Tenant, "err", err)
		return "", &core.GenerationError{Err: err}
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &core.GenerationError{Err: ErrEmptyAnswer}
	}
	return reply, nil
}

// Prompt renders req. Only the last historyWindow turns are included.
func (c *Composer) Prompt(req Request) string {
	history := req.History
	if len(history) > c.historyWindow {
		history = history[len(history)-c.historyWindow:]
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for i, turn := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(turn.Role.Label())
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}

	b.WriteString("\n\nKnowledge context:\n")
	b.WriteString(strings.Join(req.Retrieved, "\n\n"))

	b.WriteString("\n\nBased on the conversation history and available knowledge, provide a natural and contextually appropriate response to:\n")
	b.WriteString(req.Query)
	b.WriteString("\n\n")
	b.WriteString(instructions)
	b.WriteByte('\n')
	return b.String()
}
