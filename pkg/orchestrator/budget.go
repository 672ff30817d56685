package orchestrator

import (
	"context"
	"time"

	"github.com/entrhq/surf/pkg/config"
)

// Budget floors. A misconfigured or zero value can never produce a timeout
// below these, so no suspend point ever gets a zero or negative deadline.
const (
	floorInit       = 5 * time.Second
	floorNavigation = 8 * time.Second
	floorAction     = 8 * time.Second
	floorAgent      = 8 * time.Second
	floorCLI        = 10 * time.Second
	floorOverall    = 30 * time.Second

	// teardownTimeout bounds best-effort session close; it is fixed rather
	// than configurable because teardown must never dominate a request.
	teardownTimeout = 5 * time.Second

	// cliGrace is added on top of the CLI budget for the external tool's own
	// process startup and session close.
	cliGrace = 15 * time.Second
)

// Budgets holds the effective (post-floor) duration for every named budget.
// Budgets are independent: exceeding one does not shorten the others.
type Budgets struct {
	Init       time.Duration
	Navigation time.Duration
	Action     time.Duration
	Agent      time.Duration
	CLI        time.Duration
	Overall    time.Duration
}

// NewBudgets applies each budget's floor to the configured values:
// effective = max(floor, configured).
func NewBudgets(t config.Timeouts) Budgets {
	return Budgets{
		Init:       atLeast(t.Init, floorInit),
		Navigation: atLeast(t.Navigation, floorNavigation),
		Action:     atLeast(t.Action, floorAction),
		Agent:      atLeast(t.Agent, floorAgent),
		CLI:        atLeast(t.CLI, floorCLI),
		Overall:    atLeast(t.Overall, floorOverall),
	}
}

// Context derives a deadline-bounded context for one suspend point. Every
// engine call, navigation, and subprocess wait goes through this; there is
// no unbounded await anywhere in the orchestrator.
func (b Budgets) Context(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

func atLeast(configured, floor time.Duration) time.Duration {
	if configured < floor {
		return floor
	}
	return configured
}
