package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Default action timeout when a context carries no deadline.
const defaultOpTimeout = 30 * time.Second

// PlaywrightEngine is one Playwright-backed browser session implementing
// Engine. It is not safe for concurrent use; the orchestrator drives it
// strictly sequentially within a single run.
type PlaywrightEngine struct {
	opts    Options
	planner planner
	actor   *actor

	mu      sync.Mutex
	closed  bool
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
}

// NewPlaywright creates an engine session. Nothing is launched until Init.
func NewPlaywright(opts Options) *PlaywrightEngine {
	e := &PlaywrightEngine{
		opts:    opts,
		planner: newOpenAIPlanner(opts),
	}
	e.actor = &actor{driver: e, planner: e.planner}
	return e
}

// NewFactory returns a Factory producing a fresh Playwright engine per run.
func NewFactory(opts Options) Factory {
	return func() Engine {
		return NewPlaywright(opts)
	}
}

// Init starts Playwright, launches the browser, and resolves an active
// page. The launch is raced against ctx: if the deadline wins, Init returns
// a timeout error while the launch finishes (or dies) in the background —
// Close still tears down whatever was created.
func (e *PlaywrightEngine) Init(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.initSync()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("engine init timed out: %w", ctx.Err())
	}
}

func (e *PlaywrightEngine) initSync() error {
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(e.opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 800},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return fmt.Errorf("failed to create page: %w", err)
	}

	if !e.adopt(pw, browser, bctx, page) {
		// Close ran while the launch was still in flight (abandoned init).
		// Nobody else holds these handles, so tear them down here or the
		// browser process leaks.
		teardownSession(page, bctx, browser, pw)
		return fmt.Errorf("engine closed during init")
	}
	return nil
}

// adopt stores freshly launched session handles. It reports false when the
// engine was already closed; the caller then owns the handles' teardown.
func (e *PlaywrightEngine) adopt(pw *playwright.Playwright, browser playwright.Browser, bctx playwright.BrowserContext, page playwright.Page) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.pw = pw
	e.browser = browser
	e.bctx = bctx
	e.page = page
	return true
}

func (e *PlaywrightEngine) activePage() (playwright.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.page == nil {
		return nil, fmt.Errorf("engine not initialized")
	}
	return e.page, nil
}

// Goto navigates the active page, waiting for DOM content.
func (e *PlaywrightEngine) Goto(ctx context.Context, url string) error {
	return e.Navigate(ctx, url)
}

// Act performs one deterministic action. maxSteps is accepted for interface
// symmetry; a single action never takes more than one step.
func (e *PlaywrightEngine) Act(ctx context.Context, prompt string, maxSteps int) (ActResult, error) {
	return e.actor.act(ctx, prompt)
}

// RunAgent runs the autonomous plan/execute loop against the active page.
func (e *PlaywrightEngine) RunAgent(ctx context.Context, instruction string, maxSteps int) (AgentResult, error) {
	return e.actor.runAgent(ctx, instruction, maxSteps)
}

// Title returns the active page's title.
func (e *PlaywrightEngine) Title(ctx context.Context) (string, error) {
	return e.PageTitle(ctx)
}

// URL returns the active page's current URL, empty before Init.
func (e *PlaywrightEngine) URL() string {
	return e.PageURL()
}

// Close tears down the session, ignoring per-resource errors: teardown is
// best effort and must never mask a primary result.
func (e *PlaywrightEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	page, bctx, browser, pw := e.page, e.bctx, e.browser, e.pw
	e.page, e.bctx, e.browser, e.pw = nil, nil, nil, nil
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		teardownSession(page, bctx, browser, pw)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine close timed out: %w", ctx.Err())
	}
}

func teardownSession(page playwright.Page, bctx playwright.BrowserContext, browser playwright.Browser, pw *playwright.Playwright) {
	if page != nil {
		_ = page.Close()
	}
	if bctx != nil {
		_ = bctx.Close()
	}
	if browser != nil {
		_ = browser.Close()
	}
	if pw != nil {
		_ = pw.Stop()
	}
}

// pageDriver implementation.

// Content returns the raw HTML of the active page.
func (e *PlaywrightEngine) Content(ctx context.Context) (string, error) {
	page, err := e.activePage()
	if err != nil {
		return "", err
	}
	return page.Content()
}

// ClickText resolves an element by its accessible name or visible text:
// role=button first, then role=link, then any text match. The most primary
// call-to-action heuristic is "first matching button wins".
func (e *PlaywrightEngine) ClickText(ctx context.Context, text string) error {
	page, err := e.activePage()
	if err != nil {
		return err
	}

	timeout := playwright.Float(msRemaining(ctx, defaultOpTimeout))
	locators := []playwright.Locator{
		page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: text}),
		page.GetByRole(*playwright.AriaRoleLink, playwright.PageGetByRoleOptions{Name: text}),
		page.GetByText(text),
	}
	for _, locator := range locators {
		count, countErr := locator.Count()
		if countErr != nil || count == 0 {
			continue
		}
		if clickErr := locator.First().Click(playwright.LocatorClickOptions{Timeout: timeout}); clickErr != nil {
			return fmt.Errorf("click on %q failed: %w", text, clickErr)
		}
		return nil
	}
	return fmt.Errorf("no element matching %q", text)
}

// ClickSelector clicks the first element matching a CSS selector.
func (e *PlaywrightEngine) ClickSelector(ctx context.Context, selector string) error {
	page, err := e.activePage()
	if err != nil {
		return err
	}
	err = page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(msRemaining(ctx, defaultOpTimeout)),
	})
	if err != nil {
		return fmt.Errorf("click on selector %q failed: %w", selector, err)
	}
	return nil
}

// FillSelector fills the first element matching a CSS selector.
func (e *PlaywrightEngine) FillSelector(ctx context.Context, selector, value string) error {
	page, err := e.activePage()
	if err != nil {
		return err
	}
	err = page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: playwright.Float(msRemaining(ctx, defaultOpTimeout)),
	})
	if err != nil {
		return fmt.Errorf("fill on selector %q failed: %w", selector, err)
	}
	return nil
}

// Navigate loads a URL on the active page.
func (e *PlaywrightEngine) Navigate(ctx context.Context, url string) error {
	page, err := e.activePage()
	if err != nil {
		return err
	}
	_, err = page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(msRemaining(ctx, defaultOpTimeout)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// PageTitle returns the active page title.
func (e *PlaywrightEngine) PageTitle(ctx context.Context) (string, error) {
	page, err := e.activePage()
	if err != nil {
		return "", err
	}
	return page.Title()
}

// PageURL returns the active page URL, empty before Init.
func (e *PlaywrightEngine) PageURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.page == nil {
		return ""
	}
	return e.page.URL()
}
