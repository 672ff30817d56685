package orchestrator

import (
	"context"
	"time"
)

// Strategy names, used as the engine identifier in results and as the keys
// of per-attempt diagnostics.
const (
	StrategyCLIPrimary   = "external-tool-primary"
	StrategyEngineAction = "engine-action"
	StrategyEngineAgent  = "engine-agent"
	StrategyActionNarrow = "engine-action-narrow"
	StrategyCLIFallback  = "external-tool-fallback"
)

// narrowActPrompt is the last-resort deterministic phrasing used when a
// click target exists but earlier strategies produced nothing.
const narrowActPrompt = "find and click the primary visible call-to-action"

// CLITool runs one instruction through the external CLI automation tool and
// returns its output summary. Success is marker-based; anything else is an
// error.
type CLITool interface {
	Execute(ctx context.Context, instruction, startURL string, maxSteps int, timeout time.Duration) (string, error)
}

// Strategy is one entry of the ordered fallback chain. The chain is an
// explicit list so the precedence stays auditable: the orchestrator folds
// over it, running each enabled strategy until one succeeds.
type Strategy struct {
	Name string

	// Enabled strategies run; disabled ones are skipped without recording
	// an attempt.
	Enabled bool

	// NeedsEngine marks strategies that require an initialized browser
	// session. When session init failed they are skipped (the init error is
	// already recorded) and only subprocess-backed strategies remain.
	NeedsEngine bool

	Run func(ctx context.Context) (AttemptResult, error)
}

// runChain executes the strategies in order and returns the first success.
// Every failed attempt is retained so the final response can explain why
// each earlier strategy failed.
func runChain(ctx context.Context, strategies []Strategy, engineReady bool, prior []AttemptResult) (AttemptResult, []AttemptResult) {
	attempts := prior
	for _, s := range strategies {
		if !s.Enabled {
			continue
		}
		if s.NeedsEngine && !engineReady {
			continue
		}
		result, err := s.Run(ctx)
		if err != nil {
			attempts = append(attempts, AttemptResult{
				StrategyName: s.Name,
				RawError:     err.Error(),
			})
			continue
		}
		result.StrategyName = s.Name
		result.Succeeded = true
		return result, attempts
	}
	return AttemptResult{}, attempts
}
