// Package engine implements the scriptable browser engine used by the
// orchestrator: a Playwright-backed session exposing navigation, a
// single-action API, and an autonomous multi-step agent. The orchestrator
// only depends on the Engine interface; everything behind it is opaque.
package engine

import (
	"context"
	"time"
)

// ActResult is the outcome of one deterministic action.
type ActResult struct {
	// Message describes what was done ("clicked element matching ...").
	Message string
}

// AgentResult is the outcome of an autonomous agent run.
type AgentResult struct {
	// Message is the agent's final answer or summary.
	Message string

	// Done reports whether the agent declared the task complete (as opposed
	// to running out of steps).
	Done bool

	// Steps is the number of actions the agent executed.
	Steps int
}

// Engine is one browser automation session. Sessions are single-request:
// the orchestrator owns one exclusively for the duration of a run and the
// strategies use it strictly sequentially.
type Engine interface {
	// Init starts the underlying browser and resolves an active page.
	Init(ctx context.Context) error

	// Goto navigates the active page.
	Goto(ctx context.Context, url string) error

	// Act performs a single deterministic action described in natural
	// language ("click the Learn more button").
	Act(ctx context.Context, prompt string, maxSteps int) (ActResult, error)

	// RunAgent runs the autonomous multi-step agent against the active page.
	RunAgent(ctx context.Context, instruction string, maxSteps int) (AgentResult, error)

	// Title returns the active page's title.
	Title(ctx context.Context) (string, error)

	// URL returns the active page's current URL.
	URL() string

	// Close tears the session down. Safe to call after a failed Init.
	Close(ctx context.Context) error
}

// Factory produces a fresh Engine per orchestration run so concurrent
// requests never share a browser session.
type Factory func() Engine

// Options configures a Playwright engine session.
type Options struct {
	Headless bool

	// Model and APIKey configure the model used for act-selector
	// resolution and agent planning.
	Model   string
	APIKey  string
	BaseURL string
}

// msRemaining converts a context deadline to Playwright's millisecond
// timeout, falling back when the context has none.
func msRemaining(ctx context.Context, fallback time.Duration) float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return float64(fallback.Milliseconds())
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 1
	}
	return float64(remaining.Milliseconds())
}
