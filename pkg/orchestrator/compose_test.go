package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractClickTargetQuoted(t *testing.T) {
	tests := []struct {
		name        string
		instruction string
		want        string
	}{
		{"double quotes", `click "Learn more"`, "Learn more"},
		{"single quotes", `click on 'Sign up'`, "Sign up"},
		{"smart quotes", "click “Get started”", "Get started"},
		{"quoted wins over unquoted", `click "Buy now" then click the Cancel button`, "Buy now"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractClickTarget(tt.instruction))
		})
	}
}

func TestExtractClickTargetUnquoted(t *testing.T) {
	tests := []struct {
		name        string
		instruction string
		want        string
	}{
		{"plain", "go to apple.com and click Learn more", "Learn more"},
		{"element suffix stripped", "click the Submit button", "Submit"},
		{"on the", "click on the Pricing tab", "Pricing"},
		{"sentence terminator", "Please click Checkout. Then wait.", "Checkout"},
		{"no click phrase", "summarize this page", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractClickTarget(tt.instruction))
		})
	}
}

func TestDeriveStartURL(t *testing.T) {
	tests := []struct {
		name        string
		instruction string
		contextText string
		want        string
	}{
		{"explicit url", "open https://example.com/pricing and compare plans", "", "https://example.com/pricing"},
		{"url from context", "compare the plans", "see https://example.com/plans.", "https://example.com/plans"},
		{"bare domain promoted", "go to apple.com and click Learn more", "", "https://apple.com"},
		{"trailing punctuation stripped", "open (https://example.com/a)", "", "https://example.com/a"},
		{"nothing resolvable", "summarize this page", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStartURL(tt.instruction, tt.contextText))
		})
	}
}

func TestIsActionLike(t *testing.T) {
	assert.True(t, IsActionLike("go to apple.com and click Learn more"))
	assert.True(t, IsActionLike("Compare the two plans"))
	assert.True(t, IsActionLike("navigate to the dashboard"))
	assert.False(t, IsActionLike("summarize this page"))
	assert.False(t, IsActionLike("what does this article say?"))
}

func TestComposeTaskPromptShape(t *testing.T) {
	prompt := ComposeTaskPrompt("click Learn more", "marketing site", "https://apple.com")

	assert.Contains(t, prompt, "Primary instruction: click Learn more")
	assert.Contains(t, prompt, "Context: marketing site")
	assert.Contains(t, prompt, "Required start URL: https://apple.com")
	assert.Contains(t, prompt, "minimum actions")
}

func TestComposeTaskPromptOmitsEmptySections(t *testing.T) {
	prompt := ComposeTaskPrompt("summarize this page", "", "")

	assert.NotContains(t, prompt, "Context:")
	assert.NotContains(t, prompt, "Required start URL:")
}

func TestComposeAgentInstructionClickDirective(t *testing.T) {
	instr := ComposeAgentInstruction("click Learn more", "", "https://apple.com", "Learn more")

	assert.Contains(t, instr, "Open this URL first: https://apple.com")
	assert.Contains(t, instr, `"Learn more"`)
	assert.Contains(t, instr, "most primary call-to-action")
}

func TestComposeIsDeterministic(t *testing.T) {
	first := Compose("go to apple.com and click Learn more", "ctx", "https://apple.com")
	second := Compose("go to apple.com and click Learn more", "ctx", "https://apple.com")

	assert.Equal(t, first.TaskPrompt, second.TaskPrompt)
	assert.Equal(t, first.AgentInstruction, second.AgentInstruction)
	assert.Equal(t, first.ClickTarget, second.ClickTarget)
}
