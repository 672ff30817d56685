package orchestrator

// Step count bounds applied to every request before any strategy runs.
const (
	MinSteps = 1
	MaxSteps = 200
)

// TaskRequest is the immutable input for one orchestration run.
type TaskRequest struct {
	// Instruction is the natural-language browser instruction. Required.
	Instruction string

	// ContextText is optional free-form context appended to the prompt.
	ContextText string

	// StartURL is the page to open first. Derived from the instruction or
	// context when empty.
	StartURL string

	// MaxSteps bounds the number of actions a strategy may take. Clamped to
	// [MinSteps, MaxSteps]; zero means the configured default.
	MaxSteps int

	// KeepAlive leaves the engine session open after the run.
	KeepAlive bool
}

// ClampSteps returns steps bounded to [MinSteps, MaxSteps], substituting
// fallback when steps is zero or negative.
func ClampSteps(steps, fallback int) int {
	if steps <= 0 {
		steps = fallback
	}
	if steps < MinSteps {
		return MinSteps
	}
	if steps > MaxSteps {
		return MaxSteps
	}
	return steps
}

// AttemptResult is the outcome of one strategy attempt. Created fresh per
// attempt and never mutated after construction.
type AttemptResult struct {
	StrategyName  string
	Succeeded     bool
	OutputSummary string
	ConfirmedURL  string
	PageTitle     string
	RawError      string
}

// ResultBody carries the outcome fields of the winning attempt plus the
// retained error of every attempt that ran, so callers can see why earlier
// strategies failed even when a later one succeeded.
type ResultBody struct {
	FinalMessage string `json:"final_result"`
	ConfirmedURL string `json:"confirmed_url,omitempty"`
	PageTitle    string `json:"page_title,omitempty"`
	IsDone       bool   `json:"is_done"`
	ActError     string `json:"act_error,omitempty"`
	AgentError   string `json:"agent_error,omitempty"`
	CLIError     string `json:"cli_error,omitempty"`
	EngineError  string `json:"engine_error,omitempty"`
}

// Result is the final envelope returned for a successful orchestration run.
// If OK is true, exactly one attempt succeeded and Engine names it.
type Result struct {
	OK         bool       `json:"ok"`
	Engine     string     `json:"engine"`
	TaskPrompt string     `json:"task_prompt"`
	Result     ResultBody `json:"result"`
}
