package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var actClickRe = regexp.MustCompile(`(?i)^(?:find and )?click(?:\s+on)?(?:\s+the)?\s+["']?(.+?)["']?$`)

const actSystemPrompt = `You are a browser automation engine resolving a single action. Given the
page state and an instruction, respond with exactly one JSON object, no
prose, one of:
  {"action":"click","text":"<visible element label>"}
  {"action":"click","selector":"<css selector>"}
  {"action":"fill","selector":"<css selector>","value":"<text>"}
If multiple elements match, prefer the most primary call-to-action.`

// act performs one deterministic action. Simple click/fill phrasings are
// resolved locally against the page; anything else, and any local miss,
// costs one model round-trip to resolve a selector.
func (a *actor) act(ctx context.Context, prompt string) (ActResult, error) {
	line := firstLine(prompt)

	if m := actClickRe.FindStringSubmatch(line); m != nil {
		target := strings.TrimSpace(m[1])
		if err := a.driver.ClickText(ctx, target); err == nil {
			return ActResult{Message: fmt.Sprintf("clicked %q", target)}, nil
		}
		// The label heuristic missed; let the model pick a selector.
		return a.actViaModel(ctx, prompt)
	}

	// Fill phrasings and full task prompts both need page context to
	// resolve, so they go straight to the model.
	return a.actViaModel(ctx, prompt)
}

func (a *actor) actViaModel(ctx context.Context, prompt string) (ActResult, error) {
	snapshot, err := a.snapshot(ctx)
	if err != nil {
		return ActResult{}, err
	}

	user := fmt.Sprintf("Instruction: %s\n\nCurrent page:\n%s\nAction:", prompt, snapshot)
	raw, err := a.planner.Complete(ctx, actSystemPrompt, user)
	if err != nil {
		return ActResult{}, err
	}

	action, err := decodeAgentAction(raw)
	if err != nil {
		return ActResult{}, err
	}
	if action.Action != "click" && action.Action != "fill" {
		return ActResult{}, fmt.Errorf("single-action resolution produced %q, expected click or fill", action.Action)
	}
	if err := a.execute(ctx, action); err != nil {
		return ActResult{}, err
	}
	return ActResult{Message: summarizeAction(action)}, nil
}
