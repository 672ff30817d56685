package extern

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
)

// maxExcerptLen bounds the output excerpt embedded in classification errors.
const maxExcerptLen = 1200

// sessionCloseGrace extends the hard kill past the caller's budget so the
// trailing close subcommand can still run and the tool's session is not
// leaked when the run itself used the whole budget.
const sessionCloseGrace = 15 * time.Second

// ToolConfig configures the external CLI automation tool adapter.
type ToolConfig struct {
	// Binary is the tool executable name or path.
	Binary string

	// Headless passes the tool's headless flag.
	Headless bool

	// SuccessMarkers are glob patterns matched case-insensitively against
	// the tool's combined output to detect logical success. The tool has no
	// explicit exit protocol, so a zero exit code alone is not success.
	SuccessMarkers []string
}

// Tool drives the external CLI automation tool: open a URL in a named
// session, run a natural-language instruction, close the session. Each
// Execute uses a fresh session name so concurrent runs never collide.
type Tool struct {
	cfg      ToolConfig
	runner   *Runner
	markers  []glob.Glob
	patterns []string
}

// NewTool compiles the success-marker patterns and returns the adapter.
func NewTool(cfg ToolConfig) (*Tool, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("external tool binary not configured")
	}
	patterns := cfg.SuccessMarkers
	if len(patterns) == 0 {
		patterns = []string{"*success: true*", "*done: true*"}
	}
	markers := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid success marker %q: %w", p, err)
		}
		markers = append(markers, g)
	}
	return &Tool{cfg: cfg, runner: &Runner{}, markers: markers, patterns: patterns}, nil
}

// Execute runs one instruction through the tool as a single shell pipeline:
// open the start URL, run the instruction with a step bound, then close the
// session regardless of the run outcome. The hard kill fires at timeout plus
// sessionCloseGrace so the close subcommand always has a window to run.
func (t *Tool) Execute(ctx context.Context, instruction, startURL string, maxSteps int, timeout time.Duration) (string, error) {
	session := "surf-" + uuid.NewString()

	var b strings.Builder
	if startURL != "" {
		b.WriteString(t.command("open", session, startURL))
		b.WriteString(" && ")
	}
	b.WriteString(t.command("run", session, "--max-steps", strconv.Itoa(maxSteps), instruction))
	b.WriteString(" ; ")
	b.WriteString(t.command("close", session))

	out, err := t.runner.Run(ctx, timeout+sessionCloseGrace, "sh", "-c", b.String())
	if err != nil {
		return "", fmt.Errorf("external tool failed: %w", err)
	}
	combined := out.Combined()
	if !t.outputSucceeded(combined) {
		return "", fmt.Errorf("external tool reported no success marker; output: %s", excerpt(combined))
	}
	return strings.TrimSpace(combined), nil
}

func (t *Tool) command(subcommand, session string, args ...string) string {
	parts := []string{t.cfg.Binary, subcommand, "--session", shellQuote(session)}
	if t.cfg.Headless {
		parts = append(parts, "--headless")
	}
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// outputSucceeded scans each line of the combined output against the
// compiled marker globs, case-insensitively.
func (t *Tool) outputSucceeded(output string) bool {
	for _, line := range strings.Split(strings.ToLower(output), "\n") {
		for _, marker := range t.markers {
			if marker.Match(line) {
				return true
			}
		}
	}
	return false
}

// Markers returns the configured marker patterns, for introspection.
func (t *Tool) Markers() []string {
	return t.patterns
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(empty)"
	}
	if len(s) > maxExcerptLen {
		return s[:maxExcerptLen] + "..."
	}
	return s
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
