package harness

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/cruzjc/pi5-dashboard/pkg/fault"
	"github.com/cruzjc/pi5-dashboard/pkg/fsutil"
	"github.com/cruzjc/pi5-dashboard/pkg/models"
)

const (
	browserDefaultTimeout = 15 * time.Second
	browserClickPause     = 250 * time.Millisecond
)

var browserCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
}

// browserExecutable locates a usable browser binary on PATH.
func browserExecutable() (string, bool) {
	for _, name := range browserCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

// stageBrowserValidation drives the configured scenarios against a headless
// browser, with one CLI repair pass and a single retry on failure.
func (s *Service) stageBrowserValidation(r *Run) stageOutcome {
	scenarios := r.task.BrowserScenarios
	if len(scenarios) == 0 {
		return skipped("no browser scenarios")
	}
	execPath, ok := browserExecutable()
	if !ok {
		return failed(fmt.Errorf("browser executable: %w", fault.ErrUnavailableDependency))
	}
	layout := r.layout()

	attempt1, err := s.runScenarios(r, execPath, scenarios)
	if err != nil {
		return failed(err)
	}
	if _, err := r.artifacts.AddJSON("browser/attempt-1.json", "attempt-1.json",
		attempt1, "Browser scenario results, first attempt"); err != nil {
		return failed(err)
	}
	r.setBrowserResult(attempt1)

	if scenariosAllOK(attempt1) {
		return completed(fmt.Sprintf("%d scenarios passed", len(scenarios)))
	}

	r.note("browser validation failed, attempting repair")
	repair, err := s.runCLI(r, ChannelBrowserWorker, layout.Parent.Path,
		browserRepairPrompt(scenarioFailureReport(attempt1)))
	if err != nil {
		return failed(fmt.Errorf("browser repair pass: %w", err))
	}
	if _, err := r.artifacts.AddText("browser/repair.log", "repair.log",
		repair.Plain, "Browser repair pass output"); err != nil {
		return failed(err)
	}

	attempt2, err := s.runScenarios(r, execPath, scenarios)
	if err != nil {
		return failed(err)
	}
	if _, err := r.artifacts.AddJSON("browser/attempt-2.json", "attempt-2.json",
		attempt2, "Browser scenario results after repair"); err != nil {
		return failed(err)
	}
	r.setBrowserResult(attempt2)

	if !scenariosAllOK(attempt2) {
		var names []string
		for _, sc := range attempt2 {
			if !sc.OK {
				names = append(names, sc.Name)
			}
		}
		return failed(fmt.Errorf("browser scenarios still failing after repair: %s", strings.Join(names, ", ")))
	}
	return completed(fmt.Sprintf("%d scenarios passed after one repair", len(scenarios)))
}

func (r *Run) setBrowserResult(scenarios []models.ScenarioResult) {
	result := models.BrowserResult{
		Attempted: true,
		OK:        scenariosAllOK(scenarios),
		Scenarios: scenarios,
	}
	if !result.OK {
		result.Detail = "one or more scenarios failed"
	}
	r.mu.Lock()
	r.browser = &result
	r.touchLocked()
	r.mu.Unlock()
}

// runScenarios executes the scenarios sequentially, honoring cancellation
// between them.
func (s *Service) runScenarios(r *Run, execPath string, scenarios []models.BrowserScenario) ([]models.ScenarioResult, error) {
	results := make([]models.ScenarioResult, 0, len(scenarios))
	for _, sc := range scenarios {
		if err := r.checkpoint(); err != nil {
			return nil, err
		}
		results = append(results, s.runScenario(r, execPath, sc))
	}
	return results, nil
}

// runScenario drives one scenario in a fresh browser context: navigate, wait,
// fill, click, screenshot. Console and page errors stream into the result.
func (s *Service) runScenario(r *Run, execPath string, sc models.BrowserScenario) models.ScenarioResult {
	result := models.ScenarioResult{Name: sc.Name}

	timeout := browserDefaultTimeout
	if sc.TimeoutSec > 0 {
		clamped := min(max(sc.TimeoutSec, 1), 60)
		timeout = time.Duration(clamped) * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.NoSandbox,
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(r.ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var errMu sync.Mutex
	chromedp.ListenTarget(browserCtx, func(ev any) {
		switch ev := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			if ev.Type != runtime.APITypeError {
				return
			}
			parts := make([]string, 0, len(ev.Args))
			for _, arg := range ev.Args {
				if len(arg.Value) > 0 {
					parts = append(parts, string(arg.Value))
				}
			}
			errMu.Lock()
			result.ConsoleErrors = append(result.ConsoleErrors, strings.Join(parts, " "))
			errMu.Unlock()
		case *runtime.EventExceptionThrown:
			errMu.Lock()
			result.PageErrors = append(result.PageErrors, ev.ExceptionDetails.Error())
			errMu.Unlock()
		}
	})

	ctx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	actions := []chromedp.Action{navigateDOMContentLoaded(sc.URL)}
	if sc.WaitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(sc.WaitSelector, chromedp.ByQuery))
	}
	if sc.WaitText != "" {
		var found bool
		expr := fmt.Sprintf("document.body !== null && document.body.innerText.includes(%q)", sc.WaitText)
		actions = append(actions, chromedp.Poll(expr, &found))
	}
	for _, fill := range sc.Fill {
		actions = append(actions, chromedp.SetValue(fill.Selector, fill.Value, chromedp.ByQuery))
	}
	for _, sel := range sc.Click {
		actions = append(actions,
			chromedp.Click(sel, chromedp.ByQuery),
			chromedp.Sleep(browserClickPause),
		)
	}
	var shot []byte
	actions = append(actions, chromedp.FullScreenshot(&shot, 90))

	runErr := chromedp.Run(ctx, actions...)

	errMu.Lock()
	defer errMu.Unlock()
	if runErr != nil {
		result.Error = runErr.Error()
		return result
	}

	shotName := fmt.Sprintf("browser-%s.png", fsutil.Slug(sc.Name, 40))
	meta, err := r.artifacts.AddImage("browser/"+shotName, shotName, shot,
		fmt.Sprintf("Screenshot of scenario %s", sc.Name))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Screenshot = meta.RelPath
	result.OK = true
	return result
}

// navigateDOMContentLoaded starts navigation and returns once the document
// is parsed. chromedp.Navigate would block until the full load event, which
// stalls on pages with slow subresources.
func navigateDOMContentLoaded(url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		domReady := make(chan struct{}, 1)
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		chromedp.ListenTarget(listenCtx, func(ev any) {
			if _, ok := ev.(*page.EventDomContentEventFired); ok {
				select {
				case domReady <- struct{}{}:
				default:
				}
			}
		})

		_, _, errText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return fmt.Errorf("navigate %s: %s", url, errText)
		}
		select {
		case <-domReady:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func scenariosAllOK(scenarios []models.ScenarioResult) bool {
	for _, sc := range scenarios {
		if !sc.OK {
			return false
		}
	}
	return true
}

// scenarioFailureReport renders the failed scenarios for the repair prompt.
func scenarioFailureReport(scenarios []models.ScenarioResult) string {
	var b strings.Builder
	for _, sc := range scenarios {
		if sc.OK {
			continue
		}
		fmt.Fprintf(&b, "Scenario: %s\n", sc.Name)
		if sc.Error != "" {
			fmt.Fprintf(&b, "Error: %s\n", sc.Error)
		}
		for _, e := range sc.ConsoleErrors {
			fmt.Fprintf(&b, "Console error: %s\n", e)
		}
		for _, e := range sc.PageErrors {
			fmt.Fprintf(&b, "Page error: %s\n", e)
		}
		b.WriteString("\n")
	}
	return b.String()
}
