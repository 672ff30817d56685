package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
)

// Instruction composition and classification heuristics. These are pure
// functions so their edge cases can be tested independently of the
// orchestrator: same inputs always produce the same outputs.

var (
	// Quoted click target: click "Learn more" / click on 'Sign up'.
	clickQuotedRe = regexp.MustCompile(`(?i)click(?:\s+on)?\s+["'\x{201C}\x{2018}]([^"'\x{201D}\x{2019}]+)["'\x{201D}\x{2019}]`)

	// Unquoted click target: click (on) (the) Learn more [button|link|...].
	// The phrase runs to an optional element-kind suffix or sentence end.
	clickUnquotedRe = regexp.MustCompile(`(?i)click(?:\s+on)?(?:\s+the)?\s+([A-Za-z0-9][^.,!?;"']*?)(?:\s+(?:button|link|tab|menu|option))?\s*(?:[.,!?;]|$)`)

	// Explicit URL in the instruction or context.
	urlRe = regexp.MustCompile(`https?://[^\s"'<>)]+`)

	// Bare domain promoted to https:// when no explicit URL is present.
	bareDomainRe = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.[a-z]{2,}(?:/[^\s"'<>)]*)?`)

	// Instructions that look like a single concrete action are routed to the
	// deterministic strategy before the autonomous agent.
	actionLikeRe = regexp.MustCompile(`(?i)\b(click|open|go to|navigate|compare|buy|select|choose|learn more)\b`)
)

// Composed holds everything derived from one TaskRequest's text.
type Composed struct {
	TaskPrompt       string
	AgentInstruction string
	ClickTarget      string
}

// Compose derives the deterministic task prompt, the autonomous-agent
// instruction, and the extracted click target for an instruction.
func Compose(instruction, contextText, startURL string) Composed {
	target := ExtractClickTarget(instruction)
	return Composed{
		TaskPrompt:       ComposeTaskPrompt(instruction, contextText, startURL),
		AgentInstruction: ComposeAgentInstruction(instruction, contextText, startURL, target),
		ClickTarget:      target,
	}
}

// ComposeTaskPrompt builds the deterministic prompt handed to the
// single-action engine path and echoed back to the caller.
func ComposeTaskPrompt(instruction, contextText, startURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Primary instruction: %s", strings.TrimSpace(instruction))
	if strings.TrimSpace(contextText) != "" {
		fmt.Fprintf(&b, "\nContext: %s", strings.TrimSpace(contextText))
	}
	if startURL != "" {
		fmt.Fprintf(&b, "\nRequired start URL: %s\nOpen the start URL before doing anything else.", startURL)
	}
	b.WriteString("\nPerform the minimum actions needed to complete the instruction, then stop.")
	return b.String()
}

// ComposeAgentInstruction builds the longer-form instruction for the
// engine's autonomous agent, including the click directive when a target
// was extracted.
func ComposeAgentInstruction(instruction, contextText, startURL, clickTarget string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(instruction))
	if strings.TrimSpace(contextText) != "" {
		fmt.Fprintf(&b, "\nAdditional context: %s", strings.TrimSpace(contextText))
	}
	if startURL != "" {
		fmt.Fprintf(&b, "\nOpen this URL first: %s", startURL)
	}
	if clickTarget != "" {
		fmt.Fprintf(&b, "\nClick the element labeled %q. If multiple elements match, choose the most primary call-to-action.", clickTarget)
	}
	b.WriteString("\nStop as soon as the instruction is satisfied.")
	return b.String()
}

// ExtractClickTarget pulls a UI element label out of the instruction. The
// quoted form takes precedence over the unquoted form; empty string when
// neither pattern matches.
func ExtractClickTarget(instruction string) string {
	if m := clickQuotedRe.FindStringSubmatch(instruction); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := clickUnquotedRe.FindStringSubmatch(instruction); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// DeriveStartURL finds a start URL when the caller did not supply one:
// explicit http(s) URL in the instruction, then in the context, then the
// first bare domain promoted to https. Empty when nothing matches.
func DeriveStartURL(instruction, contextText string) string {
	if m := urlRe.FindString(instruction); m != "" {
		return trimURLPunctuation(m)
	}
	if m := urlRe.FindString(contextText); m != "" {
		return trimURLPunctuation(m)
	}
	if m := bareDomainRe.FindString(instruction); m != "" {
		return "https://" + trimURLPunctuation(m)
	}
	if m := bareDomainRe.FindString(contextText); m != "" {
		return "https://" + trimURLPunctuation(m)
	}
	return ""
}

// IsActionLike reports whether the instruction reads like a concrete page
// action rather than an open-ended task.
func IsActionLike(instruction string) bool {
	return actionLikeRe.MatchString(instruction)
}

func trimURLPunctuation(url string) string {
	return strings.TrimRight(url, ".,)")
}
