package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/surf/pkg/config"
	"github.com/entrhq/surf/pkg/engine"
	"github.com/entrhq/surf/pkg/logging"
)

// fakeEngine records every call so tests can assert strategy ordering and
// step propagation without a real browser.
type fakeEngine struct {
	initErr  error
	gotoErr  error
	agentErr error

	// actFailures fails that many Act calls before succeeding.
	actFailures int

	calls      []string
	actPrompts []string
	stepsSeen  []int
	gotoURLs   []string
	closed     bool
	url        string
	title      string
}

func (e *fakeEngine) Init(ctx context.Context) error {
	e.calls = append(e.calls, "init")
	return e.initErr
}

func (e *fakeEngine) Goto(ctx context.Context, url string) error {
	e.calls = append(e.calls, "goto")
	e.gotoURLs = append(e.gotoURLs, url)
	if e.gotoErr != nil {
		return e.gotoErr
	}
	e.url = url
	return nil
}

func (e *fakeEngine) Act(ctx context.Context, prompt string, maxSteps int) (engine.ActResult, error) {
	e.calls = append(e.calls, "act")
	e.actPrompts = append(e.actPrompts, prompt)
	e.stepsSeen = append(e.stepsSeen, maxSteps)
	if e.actFailures > 0 {
		e.actFailures--
		return engine.ActResult{}, errors.New("element not found")
	}
	return engine.ActResult{Message: "acted: " + prompt}, nil
}

func (e *fakeEngine) RunAgent(ctx context.Context, instruction string, maxSteps int) (engine.AgentResult, error) {
	e.calls = append(e.calls, "agent")
	e.stepsSeen = append(e.stepsSeen, maxSteps)
	if e.agentErr != nil {
		return engine.AgentResult{}, e.agentErr
	}
	return engine.AgentResult{Message: "agent finished", Done: true, Steps: 2}, nil
}

func (e *fakeEngine) Title(ctx context.Context) (string, error) { return e.title, nil }
func (e *fakeEngine) URL() string                               { return e.url }

func (e *fakeEngine) Close(ctx context.Context) error {
	e.closed = true
	return nil
}

// fakeCLI counts invocations and returns a canned output or error.
type fakeCLI struct {
	calls        int
	err          error
	output       string
	instructions []string
	urls         []string
	steps        []int
}

func (c *fakeCLI) Execute(ctx context.Context, instruction, startURL string, maxSteps int, timeout time.Duration) (string, error) {
	c.calls++
	c.instructions = append(c.instructions, instruction)
	c.urls = append(c.urls, startURL)
	c.steps = append(c.steps, maxSteps)
	if c.err != nil {
		return "", c.err
	}
	return c.output, nil
}

func baseConfig() config.Config {
	return config.Config{
		PrimaryEngine:      config.EngineBrowser,
		AgentEnabled:       true,
		CLIFallbackEnabled: true,
		Retries:            0,
		RetryBackoff:       time.Millisecond,
		DefaultMaxSteps:    12,
	}
}

func newTestOrchestrator(t *testing.T, cfg config.Config, eng *fakeEngine, cli CLITool) *Orchestrator {
	t.Helper()
	log, _ := logging.NewLogger("orchestrator-test")
	t.Cleanup(func() { log.Close() })
	factory := engine.Factory(func() engine.Engine { return eng })
	return New(cfg, factory, cli, log)
}

func TestExecuteRejectsEmptyInstruction(t *testing.T) {
	o := newTestOrchestrator(t, baseConfig(), &fakeEngine{}, &fakeCLI{})

	_, err := o.Execute(context.Background(), TaskRequest{Instruction: "   "})
	assert.ErrorIs(t, err, ErrMissingInstruction)
}

func TestCLIPrimaryNeverTouchesEngine(t *testing.T) {
	cfg := baseConfig()
	cfg.PrimaryEngine = config.EngineCLI
	eng := &fakeEngine{}
	cli := &fakeCLI{output: "success: true"}
	o := newTestOrchestrator(t, cfg, eng, cli)

	result, err := o.Execute(context.Background(), TaskRequest{
		Instruction: "open the dashboard",
		StartURL:    "https://example.com",
	})
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.Equal(t, StrategyCLIPrimary, result.Engine)
	assert.Equal(t, 1, cli.calls, "primary CLI makes exactly one tool invocation")
	assert.Empty(t, eng.calls, "engine is never constructed into the chain")
}

func TestCLIPrimaryRetriesWholeAttempt(t *testing.T) {
	cfg := baseConfig()
	cfg.PrimaryEngine = config.EngineCLI
	cfg.Retries = 1
	cli := &fakeCLI{err: errors.New("tool crashed")}
	o := newTestOrchestrator(t, cfg, &fakeEngine{}, cli)

	_, err := o.Execute(context.Background(), TaskRequest{Instruction: "open the dashboard"})
	require.Error(t, err)
	assert.Equal(t, 2, cli.calls)
	assert.ErrorContains(t, err, "external-tool-primary error")
	assert.ErrorContains(t, err, "tool crashed")
}

func TestActionLikeInstructionRunsDeterministicFirst(t *testing.T) {
	eng := &fakeEngine{}
	o := newTestOrchestrator(t, baseConfig(), eng, &fakeCLI{})

	result, err := o.Execute(context.Background(), TaskRequest{
		Instruction: `Go to apple.com and click "Learn more"`,
	})
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.Equal(t, StrategyEngineAction, result.Engine)
	require.NotEmpty(t, eng.gotoURLs)
	assert.Equal(t, "https://apple.com", eng.gotoURLs[0])
	require.NotEmpty(t, eng.actPrompts)
	assert.Equal(t, `click "Learn more"`, eng.actPrompts[0])
	assert.Equal(t, "https://apple.com", result.Result.ConfirmedURL)
	assert.True(t, result.Result.IsDone)
}

func TestOpenEndedInstructionRunsAgentFirst(t *testing.T) {
	eng := &fakeEngine{}
	o := newTestOrchestrator(t, baseConfig(), eng, &fakeCLI{})

	result, err := o.Execute(context.Background(), TaskRequest{
		Instruction: "summarize the pricing page",
		StartURL:    "https://example.com/pricing",
	})
	require.NoError(t, err)

	assert.Equal(t, StrategyEngineAgent, result.Engine)
	assert.Equal(t, []string{"init", "goto", "agent"}, eng.calls)
}

func TestAgentDisabledSkipsAgentStrategy(t *testing.T) {
	cfg := baseConfig()
	cfg.AgentEnabled = false
	eng := &fakeEngine{}
	o := newTestOrchestrator(t, cfg, eng, &fakeCLI{})

	result, err := o.Execute(context.Background(), TaskRequest{
		Instruction: "summarize the pricing page",
		StartURL:    "https://example.com/pricing",
	})
	require.NoError(t, err)

	assert.Equal(t, StrategyEngineAction, result.Engine)
	assert.NotContains(t, eng.calls, "agent")
}

func TestFallbackReachesCLIAndKeepsDiagnostics(t *testing.T) {
	eng := &fakeEngine{actFailures: 10, agentErr: errors.New("planner unavailable")}
	cli := &fakeCLI{output: "done: true"}
	o := newTestOrchestrator(t, baseConfig(), eng, cli)

	result, err := o.Execute(context.Background(), TaskRequest{
		Instruction: `click "Buy now"`,
		StartURL:    "https://example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, StrategyCLIFallback, result.Engine)
	assert.Equal(t, 1, cli.calls)
	assert.Contains(t, result.Result.ActError, "element not found")
	assert.Contains(t, result.Result.AgentError, "planner unavailable")
	assert.True(t, result.Result.IsDone)
}

func TestAllStrategiesFailAggregatesEveryReason(t *testing.T) {
	eng := &fakeEngine{actFailures: 10, agentErr: errors.New("planner unavailable")}
	cli := &fakeCLI{err: errors.New("no success marker in output")}
	o := newTestOrchestrator(t, baseConfig(), eng, cli)

	_, err := o.Execute(context.Background(), TaskRequest{
		Instruction: `click "Buy now"`,
		StartURL:    "https://example.com",
	})
	require.Error(t, err)

	for _, want := range []string{
		StrategyEngineAction,
		StrategyEngineAgent,
		StrategyActionNarrow,
		StrategyCLIFallback,
		"element not found",
		"planner unavailable",
		"no success marker in output",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestInitFailureStillReachesCLIFallback(t *testing.T) {
	eng := &fakeEngine{initErr: errors.New("browser failed to launch")}
	cli := &fakeCLI{output: "success: true"}
	o := newTestOrchestrator(t, baseConfig(), eng, cli)

	result, err := o.Execute(context.Background(), TaskRequest{
		Instruction: "open example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, StrategyCLIFallback, result.Engine)
	assert.NotContains(t, eng.calls, "act", "engine strategies are skipped without a session")
	assert.NotContains(t, eng.calls, "agent")
	assert.Contains(t, result.Result.EngineError, "browser failed to launch")
	assert.True(t, eng.closed, "a failed session is still torn down")
}

func TestNavigationFailureDisablesEngineStrategies(t *testing.T) {
	eng := &fakeEngine{gotoErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	cli := &fakeCLI{output: "success: true"}
	o := newTestOrchestrator(t, baseConfig(), eng, cli)

	result, err := o.Execute(context.Background(), TaskRequest{
		Instruction: `click "Learn more"`,
		StartURL:    "https://doesnotexist.example",
	})
	require.NoError(t, err)

	assert.Equal(t, StrategyCLIFallback, result.Engine)
	assert.NotContains(t, eng.calls, "act")
	assert.Contains(t, result.Result.EngineError, "ERR_NAME_NOT_RESOLVED")
}

func TestEngineChainRetriesAfterFullFailure(t *testing.T) {
	cfg := baseConfig()
	cfg.Retries = 1
	cfg.AgentEnabled = false
	cfg.CLIFallbackEnabled = false
	// First chain: click prompt, task prompt, and narrow retry all fail.
	// Second chain succeeds on the first Act.
	eng := &fakeEngine{actFailures: 3}
	o := newTestOrchestrator(t, cfg, eng, nil)

	result, err := o.Execute(context.Background(), TaskRequest{
		Instruction: `click "Learn more"`,
		StartURL:    "https://example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, StrategyEngineAction, result.Engine)
	assert.GreaterOrEqual(t, len(eng.actPrompts), 4)
}

func TestMaxStepsClampedToUpperBound(t *testing.T) {
	eng := &fakeEngine{}
	o := newTestOrchestrator(t, baseConfig(), eng, &fakeCLI{})

	_, err := o.Execute(context.Background(), TaskRequest{
		Instruction: "summarize the pricing page",
		StartURL:    "https://example.com",
		MaxSteps:    500,
	})
	require.NoError(t, err)

	require.NotEmpty(t, eng.stepsSeen)
	assert.Equal(t, MaxSteps, eng.stepsSeen[0])
}

func TestMaxStepsDefaultsWhenUnset(t *testing.T) {
	eng := &fakeEngine{}
	o := newTestOrchestrator(t, baseConfig(), eng, &fakeCLI{})

	_, err := o.Execute(context.Background(), TaskRequest{
		Instruction: "summarize the pricing page",
		StartURL:    "https://example.com",
	})
	require.NoError(t, err)

	require.NotEmpty(t, eng.stepsSeen)
	assert.Equal(t, 12, eng.stepsSeen[0])
}

func TestKeepAliveSkipsTeardown(t *testing.T) {
	eng := &fakeEngine{}
	o := newTestOrchestrator(t, baseConfig(), eng, &fakeCLI{})

	_, err := o.Execute(context.Background(), TaskRequest{
		Instruction: `click "Learn more"`,
		StartURL:    "https://example.com",
		KeepAlive:   true,
	})
	require.NoError(t, err)
	assert.False(t, eng.closed)
}

func TestDefaultTeardownClosesEngine(t *testing.T) {
	eng := &fakeEngine{}
	o := newTestOrchestrator(t, baseConfig(), eng, &fakeCLI{})

	_, err := o.Execute(context.Background(), TaskRequest{
		Instruction: `click "Learn more"`,
		StartURL:    "https://example.com",
	})
	require.NoError(t, err)
	assert.True(t, eng.closed)
}

func TestClampSteps(t *testing.T) {
	assert.Equal(t, 12, ClampSteps(0, 12))
	assert.Equal(t, 12, ClampSteps(-3, 12))
	assert.Equal(t, MinSteps, ClampSteps(1, 12))
	assert.Equal(t, MaxSteps, ClampSteps(500, 12))
	assert.Equal(t, 40, ClampSteps(40, 12))
}
