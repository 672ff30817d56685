package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// maxSnapshotTokens bounds the page text shipped to the model per step.
const maxSnapshotTokens = 3000

const agentSystemPrompt = `You are a browser automation agent. You are given a task, the current page
state, and the actions taken so far. Respond with exactly one JSON object for
the next action, no prose, one of:
  {"action":"click","text":"<visible element label>"}
  {"action":"click","selector":"<css selector>"}
  {"action":"fill","selector":"<css selector>","value":"<text>"}
  {"action":"goto","url":"<absolute url>"}
  {"action":"done","message":"<final answer or confirmation>"}
Use "done" as soon as the task is satisfied.`

// agentAction is the JSON contract between the planner model and the
// execution loop.
type agentAction struct {
	Action   string `json:"action"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Value    string `json:"value,omitempty"`
	URL      string `json:"url,omitempty"`
	Message  string `json:"message,omitempty"`
}

// actor runs the act and agent loops over a pageDriver. It holds no state
// between calls; the driver owns the page.
type actor struct {
	driver  pageDriver
	planner planner
}

// runAgent is the autonomous plan/execute loop: snapshot the page, ask the
// model for the next action, execute it, repeat until the model declares
// done or the step budget is exhausted.
func (a *actor) runAgent(ctx context.Context, instruction string, maxSteps int) (AgentResult, error) {
	var history []string

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return AgentResult{}, fmt.Errorf("agent run aborted: %w", err)
		}

		snapshot, err := a.snapshot(ctx)
		if err != nil {
			return AgentResult{}, err
		}

		prompt := buildAgentPrompt(instruction, snapshot, a.driver.PageURL(), history)
		raw, err := a.planner.Complete(ctx, agentSystemPrompt, prompt)
		if err != nil {
			return AgentResult{}, err
		}

		action, err := decodeAgentAction(raw)
		if err != nil {
			return AgentResult{}, err
		}

		if action.Action == "done" {
			message := action.Message
			if message == "" {
				message = "task completed"
			}
			return AgentResult{Message: message, Done: true, Steps: step}, nil
		}

		if err := a.execute(ctx, action); err != nil {
			// Feed the failure back to the planner rather than aborting:
			// the model may pick a different element on the next step.
			history = append(history, fmt.Sprintf("step %d: %s FAILED: %v", step+1, summarizeAction(action), err))
			continue
		}
		history = append(history, fmt.Sprintf("step %d: %s", step+1, summarizeAction(action)))
	}

	return AgentResult{
		Message: fmt.Sprintf("stopped after reaching the %d step limit", maxSteps),
		Done:    false,
		Steps:   maxSteps,
	}, nil
}

func (a *actor) snapshot(ctx context.Context) (string, error) {
	raw, err := a.driver.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	snap, err := snapshotHTML(raw)
	if err != nil {
		return "", err
	}
	if snap.Title == "" {
		if title, titleErr := a.driver.PageTitle(ctx); titleErr == nil {
			snap.Title = title
		}
	}
	return snap.Render(maxSnapshotTokens), nil
}

func (a *actor) execute(ctx context.Context, action agentAction) error {
	switch action.Action {
	case "click":
		if action.Selector != "" {
			return a.driver.ClickSelector(ctx, action.Selector)
		}
		if action.Text != "" {
			return a.driver.ClickText(ctx, action.Text)
		}
		return fmt.Errorf("click action missing selector and text")
	case "fill":
		if action.Selector == "" {
			return fmt.Errorf("fill action missing selector")
		}
		return a.driver.FillSelector(ctx, action.Selector, action.Value)
	case "goto":
		if action.URL == "" {
			return fmt.Errorf("goto action missing url")
		}
		return a.driver.Navigate(ctx, action.URL)
	default:
		return fmt.Errorf("unknown action %q", action.Action)
	}
}

func buildAgentPrompt(instruction, snapshot, currentURL string, history []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nCurrent page:\n%s\n", instruction, snapshot)
	if currentURL != "" {
		fmt.Fprintf(&b, "Current URL: %s\n", currentURL)
	}
	if len(history) > 0 {
		b.WriteString("\nActions so far:\n")
		for _, h := range history {
			fmt.Fprintf(&b, "  %s\n", h)
		}
	}
	b.WriteString("\nNext action:")
	return b.String()
}

// decodeAgentAction tolerates markdown fences and surrounding prose: it
// extracts the first JSON object from the model output.
func decodeAgentAction(raw string) (agentAction, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return agentAction{}, fmt.Errorf("model output contained no action JSON: %s", firstLine(raw))
	}
	var action agentAction
	if err := json.Unmarshal([]byte(raw[start:end+1]), &action); err != nil {
		return agentAction{}, fmt.Errorf("failed to decode action JSON: %w", err)
	}
	if action.Action == "" {
		return agentAction{}, fmt.Errorf("model output missing action field")
	}
	return action, nil
}

func summarizeAction(a agentAction) string {
	switch a.Action {
	case "click":
		if a.Selector != "" {
			return fmt.Sprintf("clicked %s", a.Selector)
		}
		return fmt.Sprintf("clicked %q", a.Text)
	case "fill":
		return fmt.Sprintf("filled %s", a.Selector)
	case "goto":
		return fmt.Sprintf("navigated to %s", a.URL)
	default:
		return a.Action
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		s = s[:idx]
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
