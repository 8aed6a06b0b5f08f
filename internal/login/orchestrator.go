// Package login drives a single login attempt against the control panel: load the
// login page, outlast any challenge, fill the form, submit, optionally recover once
// and decide whether the session ended up authenticated.
package login

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
	"github.com/xkilldash9x/panelkeeper/internal/challenge"
	"github.com/xkilldash9x/panelkeeper/internal/config"
	"github.com/xkilldash9x/panelkeeper/internal/diagnostics"
	"github.com/xkilldash9x/panelkeeper/internal/humanoid"
	"github.com/xkilldash9x/panelkeeper/internal/locator"
	"github.com/xkilldash9x/panelkeeper/internal/notify"
	"github.com/xkilldash9x/panelkeeper/internal/timing"
)

// cleanupTimeout bounds diagnostics, notification and browser shutdown, which run
// even after the attempt's context is cancelled.
const cleanupTimeout = 30 * time.Second

// Notifier delivers a Markdown message to the operator.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// DiagnosticsSink persists failure artifacts for a page.
type DiagnosticsSink interface {
	Capture(ctx context.Context, page browser.Page) (diagnostics.Bundle, error)
}

// Opener starts the browser session for one attempt.
type Opener func(ctx context.Context) (browser.Page, error)

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock used for every pause and deadline.
func WithClock(clock timing.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// Orchestrator runs login attempts. It holds no per-attempt state.
type Orchestrator struct {
	cfg      *config.Config
	open     Opener
	notifier Notifier
	sink     DiagnosticsSink
	clock    timing.Clock
	logger   *zap.Logger

	detector   *challenge.Detector
	waiter     *challenge.Waiter
	human      *humanoid.Humanoid
	classifier *Classifier
}

// New wires an Orchestrator. notifier and sink may be nil.
func New(cfg *config.Config, open Opener, notifier Notifier, sink DiagnosticsSink, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		open:     open,
		notifier: notifier,
		sink:     sink,
		clock:    timing.Real(),
		logger:   logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.detector = challenge.NewDetector(cfg.Challenge)
	o.waiter = challenge.NewWaiter(o.detector, o.clock, cfg.Challenge.PollInterval, logger)
	o.human = humanoid.New(cfg.Browser.Humanoid, o.clock, logger)
	o.classifier = NewClassifier(o.detector, cfg.Login)
	return o
}

// attempt carries the state of one Run.
type attempt struct {
	*Orchestrator
	page      browser.Page
	states    []State
	recovered bool
}

// Run performs one attempt. The browser session is closed on every path. On
// failure diagnostics are captured, the operator is notified and the returned
// error is the *Error also stored in the Outcome.
func (o *Orchestrator) Run(ctx context.Context) (Outcome, error) {
	a := &attempt{Orchestrator: o}
	a.enter(StateInit, zap.String("login_url", o.cfg.LoginURL()))

	page, err := o.open(ctx)
	if err != nil {
		return a.fail(ctx, classify(fmt.Errorf("failed to start browser session: %w", err)))
	}
	a.page = page
	defer a.release(ctx)

	final, err := a.execute(ctx)
	if err != nil {
		return a.fail(ctx, classify(err))
	}
	return a.succeed(ctx, final), nil
}

// execute runs the sequence and turns a panic into an UnexpectedRuntimeError.
func (a *attempt) execute(ctx context.Context) (final challenge.Signals, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Recovered from panic during login attempt.", zap.Any("panic", r), zap.Stack("stack"))
			err = newError(KindUnexpected, fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return a.sequence(ctx)
}

func (a *attempt) sequence(ctx context.Context) (challenge.Signals, error) {
	cfg := a.cfg.Login
	none := challenge.Signals{}

	// 1. Load the login page.
	if err := a.page.Navigate(ctx, a.cfg.LoginURL(), cfg.NavigationTimeout); err != nil {
		return none, fmt.Errorf("failed to load login page: %w", err)
	}
	a.enter(StatePageLoaded)

	// 2. Outlast the initial challenge.
	if err := a.waiter.Wait(ctx, a.page, cfg.InitialChallengeTimeout); err != nil {
		return none, err
	}
	a.enter(StateChallengeCleared)
	a.human.SimulatePresence(ctx, a.page)

	// 3. Find the form.
	email, err := a.locate(ctx, locator.RoleEmail, locator.PresentAll(cfg.FieldTimeout, cfg.EmailSelectors...))
	if err != nil {
		return none, err
	}
	password, err := a.locate(ctx, locator.RolePassword, locator.PresentAll(cfg.FieldTimeout, cfg.PasswordSelectors...))
	if err != nil {
		return none, err
	}
	if email == nil || password == nil {
		return none, newError(KindFormNotFound, "login form not found: "+missingRoles(email, password), nil)
	}
	a.enter(StateFieldsLocated,
		zap.String("email_selector", email.Selector),
		zap.String("password_selector", password.Selector),
	)

	// 4. Type the credentials.
	if err := a.human.EnterCredential(ctx, a.page, email.Selector, a.cfg.Credentials.Username); err != nil {
		return none, err
	}
	if err := a.human.EnterCredential(ctx, a.page, password.Selector, a.cfg.Credentials.Password.Reveal()); err != nil {
		return none, err
	}
	a.human.SimulatePresence(ctx, a.page)
	a.enter(StateCredentialsEntered)

	// 5. Find a visible submit control.
	submit, err := a.locate(ctx, locator.RoleSubmit, locator.VisibleAll(cfg.SubmitSelectors...))
	if err != nil {
		return none, err
	}
	if submit == nil {
		return none, newError(KindSubmitNotFound, "no visible submit control", nil)
	}
	a.enter(StateSubmitLocated, zap.String("submit_selector", submit.Selector))

	// 6. Submit.
	beforeURL, err := a.page.URL(ctx)
	if err != nil {
		a.logger.Debug("Could not read URL before submit.", zap.Error(err))
	}
	if err := a.page.Click(ctx, submit.Selector); err != nil {
		return none, fmt.Errorf("failed to click submit control: %w", err)
	}
	a.enter(StateSubmitted, zap.String("pre_click_url", beforeURL))
	if err := a.clock.Sleep(ctx, cfg.SubmitSettle); err != nil {
		return none, err
	}

	// 7. A challenge after submit gets a shorter budget.
	if a.challengeActive(ctx) {
		a.logger.Info("Challenge appeared after submit, waiting for it to clear.")
		if err := a.waiter.Wait(ctx, a.page, cfg.PostChallengeTimeout); err != nil {
			return none, err
		}
	}
	if err := a.clock.Sleep(ctx, cfg.PostCheckSettle); err != nil {
		return none, err
	}
	a.enter(StatePostSubmitChallengeCheck)

	currentURL, _ := a.page.URL(ctx)
	currentTitle, _ := a.page.Title(ctx)
	a.logger.Info("Post-submit page.",
		zap.String("url", currentURL),
		zap.String("title", currentTitle),
		zap.Bool("url_changed", currentURL != beforeURL),
	)

	// 8. One direct navigation into the panel if the form did not take us there.
	if a.classifier.OnLoginPage(currentURL) || a.challengeActive(ctx) {
		if err := a.recoverOnce(ctx); err != nil {
			return none, err
		}
	}

	// 9. Classify the final page.
	final, err := challenge.Read(ctx, a.page)
	if err != nil {
		return none, fmt.Errorf("failed to read final page state: %w", err)
	}
	a.enter(StateOutcomeClassified, zap.String("url", final.URL), zap.String("title", final.Title))
	if a.classifier.Classify(final) {
		return final, nil
	}
	return final, a.failureReason(ctx, final)
}

// locate returns nil when no candidate matched.
func (a *attempt) locate(ctx context.Context, role locator.Role, matchers []locator.Matcher) (*locator.Result, error) {
	res, found, err := locator.Locate(ctx, a.page, role, matchers...)
	if err != nil {
		return nil, err
	}
	if !found {
		a.logger.Warn("No candidate selector matched.", zap.String("role", string(role)), zap.Int("candidates", len(matchers)))
		return nil, nil
	}
	return &res, nil
}

func missingRoles(email, password *locator.Result) string {
	var missing []string
	if email == nil {
		missing = append(missing, string(locator.RoleEmail))
	}
	if password == nil {
		missing = append(missing, string(locator.RolePassword))
	}
	return strings.Join(missing, ", ") + " field"
}

// challengeActive treats an unreadable page as still challenged.
func (a *attempt) challengeActive(ctx context.Context) bool {
	active, err := a.detector.Active(ctx, a.page)
	if err != nil {
		a.logger.Debug("Challenge check failed, treating as active.", zap.Error(err))
		return true
	}
	return active
}

func (a *attempt) recoverOnce(ctx context.Context) error {
	if a.recovered {
		return nil
	}
	a.recovered = true

	cfg := a.cfg.Login
	target := a.cfg.RecoveryURL()
	a.logger.Warn("Still on the login page or behind a challenge, navigating directly to the panel.", zap.String("url", target))

	if err := a.page.Navigate(ctx, target, cfg.RecoveryNavigationTimeout); err != nil {
		return fmt.Errorf("recovery navigation failed: %w", err)
	}
	if err := a.waiter.Wait(ctx, a.page, cfg.PostChallengeTimeout); err != nil {
		return err
	}
	return a.clock.Sleep(ctx, cfg.RecoverySettle)
}

// failureReason explains a page that did not classify as authenticated.
func (a *attempt) failureReason(ctx context.Context, final challenge.Signals) *Error {
	for _, sel := range a.cfg.Login.ErrorSelectors {
		text, err := a.page.TextContent(ctx, sel)
		if err != nil {
			a.logger.Debug("Error display lookup failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return rejected(text)
		}
	}
	if active, err := a.detector.Active(ctx, a.page); err == nil && active {
		return newError(KindChallengeBlocked, "login blocked by challenge", nil)
	}
	return indeterminate(final.URL, final.Title)
}

func (a *attempt) enter(s State, fields ...zap.Field) {
	a.states = append(a.states, s)
	a.logger.Info("State transition.", append([]zap.Field{zap.Stringer("state", s)}, fields...)...)
}

func (a *attempt) succeed(ctx context.Context, final challenge.Signals) Outcome {
	a.enter(StateSuccess)
	now := a.clock.Now()
	a.send(ctx, notify.SuccessMessage(now, final.URL, final.Title))
	return Outcome{
		Status:     StatusSuccess,
		URL:        final.URL,
		Title:      final.Title,
		Recovered:  a.recovered,
		FinishedAt: now,
		States:     append([]State(nil), a.states...),
	}
}

func (a *attempt) fail(ctx context.Context, lerr *Error) (Outcome, error) {
	a.enter(StateFailure, zap.Stringer("kind", lerr.Kind), zap.Error(lerr))

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	out := Outcome{Status: StatusFailure, Recovered: a.recovered, Err: lerr}
	saved := false
	if a.page != nil {
		out.URL, _ = a.page.URL(cctx)
		out.Title, _ = a.page.Title(cctx)
		saved = a.capture(cctx)
	}

	out.FinishedAt = a.clock.Now()
	a.send(ctx, notify.FailureMessage(out.FinishedAt, lerr, saved))
	out.States = append([]State(nil), a.states...)
	return out, lerr
}

// capture reports whether any artifact was written. A panicking sink is contained.
func (a *attempt) capture(ctx context.Context) (saved bool) {
	if a.sink == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Diagnostics capture panicked.", zap.Any("panic", r))
			saved = false
		}
	}()
	bundle, err := a.sink.Capture(ctx, a.page)
	if err != nil {
		a.logger.Warn("Diagnostics capture incomplete.", zap.Error(err))
	}
	return bundle.Screenshot != "" || bundle.HTML != ""
}

// send delivers a notification. Failures are logged and discarded.
func (a *attempt) send(ctx context.Context, text string) {
	if a.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Notifier panicked.", zap.Any("panic", r))
		}
	}()
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := a.notifier.Send(cctx, text); err != nil {
		a.logger.Warn("Failed to send notification.", zap.Error(err))
	}
}

func (a *attempt) release(ctx context.Context) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := a.page.Close(cctx); err != nil {
		a.logger.Warn("Failed to close browser session.", zap.Error(err))
	}
}
