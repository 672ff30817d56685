// Package orchestrator turns one natural-language browser instruction into
// one structured result by sequencing imperfect automation backends: it
// composes prompts, bounds every suspend point with a named budget, retries
// transient failures, and falls back across strategies in a fixed precedence
// order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/surf/pkg/config"
	"github.com/entrhq/surf/pkg/engine"
	"github.com/entrhq/surf/pkg/logging"
)

// ErrMissingInstruction rejects requests before any engine is invoked.
var ErrMissingInstruction = errors.New("Missing required field: instruction")

// Orchestrator executes TaskRequests. It holds only read-only configuration
// and collaborator handles; all per-request state lives on the stack, so
// concurrent requests need no locking.
type Orchestrator struct {
	cfg       config.Config
	budgets   Budgets
	newEngine engine.Factory
	cli       CLITool
	log       *logging.Logger
}

// New builds an orchestrator. The engine factory produces a fresh browser
// session per request; cli may be nil when no external tool is configured.
func New(cfg config.Config, factory engine.Factory, cli CLITool, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		budgets:   NewBudgets(cfg.Timeouts),
		newEngine: factory,
		cli:       cli,
		log:       log,
	}
}

// Budgets exposes the effective budget values for introspection.
func (o *Orchestrator) Budgets() Budgets {
	return o.budgets
}

// Execute runs one instruction to completion: primary strategy, fallbacks,
// teardown. It returns a Result when any strategy succeeded, and an error
// aggregating every strategy's failure otherwise.
func (o *Orchestrator) Execute(ctx context.Context, req TaskRequest) (Result, error) {
	if strings.TrimSpace(req.Instruction) == "" {
		return Result{}, ErrMissingInstruction
	}

	maxSteps := ClampSteps(req.MaxSteps, o.cfg.DefaultMaxSteps)
	startURL := req.StartURL
	if startURL == "" {
		startURL = DeriveStartURL(req.Instruction, req.ContextText)
	}
	composed := Compose(req.Instruction, req.ContextText, startURL)

	runCtx, cancel := o.budgets.Context(ctx, o.budgets.Overall)
	defer cancel()

	o.log.Infof("executing instruction (primary=%s, steps=%d, startURL=%q, clickTarget=%q)",
		o.cfg.PrimaryEngine, maxSteps, startURL, composed.ClickTarget)

	attempts := o.cfg.Retries + 1
	return WithRetries(runCtx, attempts, o.cfg.RetryBackoff, func(attempt int) (Result, error) {
		if attempt > 0 {
			o.log.Warnf("retrying strategy chain (attempt %d of %d)", attempt+1, attempts)
		}
		if o.cfg.PrimaryEngine == config.EngineCLI {
			return o.runCLIPrimary(runCtx, req, composed, startURL, maxSteps)
		}
		return o.runEngineChain(runCtx, req, composed, startURL, maxSteps)
	})
}

// runCLIPrimary short-circuits to the external tool alone: when it is the
// primary engine, no other strategy is ever attempted.
func (o *Orchestrator) runCLIPrimary(ctx context.Context, req TaskRequest, composed Composed, startURL string, maxSteps int) (Result, error) {
	if o.cli == nil {
		return Result{}, fmt.Errorf("external tool selected as primary engine but not configured")
	}

	cliCtx, cancel := o.budgets.Context(ctx, o.budgets.CLI+cliGrace)
	defer cancel()

	output, err := o.cli.Execute(cliCtx, req.Instruction, startURL, maxSteps, o.budgets.CLI)
	if err != nil {
		return Result{}, fmt.Errorf("%s error: %s", StrategyCLIPrimary, err.Error())
	}
	return Result{
		OK:         true,
		Engine:     StrategyCLIPrimary,
		TaskPrompt: composed.TaskPrompt,
		Result: ResultBody{
			FinalMessage: output,
			IsDone:       true,
		},
	}, nil
}

// runEngineChain initializes a browser session and folds over the ordered
// strategy list. Session init or navigation failure still leaves the
// external-tool fallback reachable before the run is declared failed.
func (o *Orchestrator) runEngineChain(ctx context.Context, req TaskRequest, composed Composed, startURL string, maxSteps int) (Result, error) {
	eng := o.newEngine()
	defer o.teardown(eng, req.KeepAlive)

	var prior []AttemptResult
	engineReady := false

	initCtx, cancelInit := o.budgets.Context(ctx, o.budgets.Init)
	err := eng.Init(initCtx)
	cancelInit()
	if err != nil {
		o.log.Errorf("engine init failed: %v", err)
		prior = append(prior, AttemptResult{StrategyName: "engine-init", RawError: err.Error()})
	} else {
		engineReady = true
		if startURL != "" {
			navCtx, cancelNav := o.budgets.Context(ctx, o.budgets.Navigation)
			navErr := eng.Goto(navCtx, startURL)
			cancelNav()
			if navErr != nil {
				o.log.Errorf("navigation to %s failed: %v", startURL, navErr)
				prior = append(prior, AttemptResult{StrategyName: "engine-navigation", RawError: navErr.Error()})
				engineReady = false
			}
		}
	}

	strategies := o.buildChain(eng, req, composed, startURL, maxSteps)
	winner, attempts := runChain(ctx, strategies, engineReady, prior)

	if !winner.Succeeded {
		return Result{}, errors.New(aggregateErrors(attempts))
	}

	engineWon := winner.StrategyName == StrategyEngineAction ||
		winner.StrategyName == StrategyEngineAgent ||
		winner.StrategyName == StrategyActionNarrow
	if winner.ConfirmedURL == "" && engineReady && engineWon {
		winner.ConfirmedURL = eng.URL()
		titleCtx, cancelTitle := o.budgets.Context(ctx, teardownTimeout)
		if title, titleErr := eng.Title(titleCtx); titleErr == nil {
			winner.PageTitle = title
		}
		cancelTitle()
	}

	o.log.Infof("instruction succeeded via %s", winner.StrategyName)
	return buildResult(winner, attempts, composed.TaskPrompt), nil
}

// buildChain assembles the ordered strategy list for one run. The branch
// decision: deterministic-first when the instruction is action-like or a
// click target was extracted, otherwise agent-first. The narrow deterministic
// retry and the external-tool fallback close the chain.
func (o *Orchestrator) buildChain(eng engine.Engine, req TaskRequest, composed Composed, startURL string, maxSteps int) []Strategy {
	action := Strategy{
		Name:        StrategyEngineAction,
		Enabled:     true,
		NeedsEngine: true,
		Run: func(ctx context.Context) (AttemptResult, error) {
			return o.runAction(ctx, eng, composed, maxSteps)
		},
	}
	agent := Strategy{
		Name:        StrategyEngineAgent,
		Enabled:     o.cfg.AgentEnabled,
		NeedsEngine: true,
		Run: func(ctx context.Context) (AttemptResult, error) {
			return o.runAgent(ctx, eng, composed, maxSteps)
		},
	}

	deterministicFirst := IsActionLike(req.Instruction) || composed.ClickTarget != ""
	var chain []Strategy
	if deterministicFirst {
		chain = append(chain, action, agent)
	} else {
		chain = append(chain, agent, action)
	}

	chain = append(chain, Strategy{
		Name:        StrategyActionNarrow,
		Enabled:     composed.ClickTarget != "",
		NeedsEngine: true,
		Run: func(ctx context.Context) (AttemptResult, error) {
			actCtx, cancel := o.budgets.Context(ctx, o.budgets.Action)
			defer cancel()
			result, err := eng.Act(actCtx, narrowActPrompt, maxSteps)
			if err != nil {
				return AttemptResult{}, err
			}
			return AttemptResult{OutputSummary: result.Message}, nil
		},
	})

	chain = append(chain, Strategy{
		Name:    StrategyCLIFallback,
		Enabled: o.cfg.CLIFallbackEnabled && o.cli != nil,
		Run: func(ctx context.Context) (AttemptResult, error) {
			cliCtx, cancel := o.budgets.Context(ctx, o.budgets.CLI+cliGrace)
			defer cancel()
			output, err := o.cli.Execute(cliCtx, req.Instruction, startURL, maxSteps, o.budgets.CLI)
			if err != nil {
				return AttemptResult{}, err
			}
			return AttemptResult{OutputSummary: output}, nil
		},
	})

	return chain
}

// runAction is the deterministic single-action strategy: the extracted click
// phrase first, then one internal retry with the full task prompt.
func (o *Orchestrator) runAction(ctx context.Context, eng engine.Engine, composed Composed, maxSteps int) (AttemptResult, error) {
	prompts := []string{composed.TaskPrompt}
	if composed.ClickTarget != "" {
		prompts = []string{fmt.Sprintf("click %q", composed.ClickTarget), composed.TaskPrompt}
	}

	var lastErr error
	for _, prompt := range prompts {
		actCtx, cancel := o.budgets.Context(ctx, o.budgets.Action)
		result, err := eng.Act(actCtx, prompt, maxSteps)
		cancel()
		if err == nil {
			return AttemptResult{OutputSummary: result.Message}, nil
		}
		lastErr = err
	}
	return AttemptResult{}, lastErr
}

// runAgent is the autonomous-agent strategy.
func (o *Orchestrator) runAgent(ctx context.Context, eng engine.Engine, composed Composed, maxSteps int) (AttemptResult, error) {
	agentCtx, cancel := o.budgets.Context(ctx, o.budgets.Agent)
	defer cancel()

	result, err := eng.RunAgent(agentCtx, composed.AgentInstruction, maxSteps)
	if err != nil {
		return AttemptResult{}, err
	}
	return AttemptResult{OutputSummary: result.Message}, nil
}

// teardown closes the engine session under a short fixed timeout unless the
// caller asked to keep it alive. Teardown errors are swallowed: they must
// never mask the primary result.
func (o *Orchestrator) teardown(eng engine.Engine, keepAlive bool) {
	if keepAlive {
		return
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := eng.Close(closeCtx); err != nil {
		o.log.Warnf("engine teardown failed: %v", err)
	}
}

// buildResult folds the winner and the retained failures into the response
// envelope. Diagnostics survive the success path so callers can see why
// earlier strategies failed.
func buildResult(winner AttemptResult, attempts []AttemptResult, taskPrompt string) Result {
	body := ResultBody{
		FinalMessage: winner.OutputSummary,
		ConfirmedURL: winner.ConfirmedURL,
		PageTitle:    winner.PageTitle,
		IsDone:       true,
	}
	for _, a := range attempts {
		switch a.StrategyName {
		case StrategyEngineAction, StrategyActionNarrow:
			body.ActError = a.RawError
		case StrategyEngineAgent:
			body.AgentError = a.RawError
		case StrategyCLIPrimary, StrategyCLIFallback:
			body.CLIError = a.RawError
		case "engine-init", "engine-navigation":
			body.EngineError = a.RawError
		}
	}
	return Result{
		OK:         true,
		Engine:     winner.StrategyName,
		TaskPrompt: taskPrompt,
		Result:     body,
	}
}

// aggregateErrors joins every attempt's failure into one composite message.
// No information is lost across the fallback chain.
func aggregateErrors(attempts []AttemptResult) string {
	if len(attempts) == 0 {
		return "no strategies were enabled"
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, fmt.Sprintf("%s error: %s", a.StrategyName, a.RawError))
	}
	return strings.Join(parts, "; ")
}
