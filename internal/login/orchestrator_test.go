package login

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
	"github.com/xkilldash9x/panelkeeper/internal/challenge"
	"github.com/xkilldash9x/panelkeeper/internal/config"
	"github.com/xkilldash9x/panelkeeper/internal/diagnostics"
	"github.com/xkilldash9x/panelkeeper/internal/mocks"
)

const (
	baseURL      = "https://panel.example"
	loginURL     = baseURL + "/login"
	dashboardURL = baseURL + "/dashboard"
	testUser     = "operator@example.com"
	testPassword = "s3cr3t-pass"
	submitSel    = `button[type="submit"]`
)

var happyTrail = []State{
	StateInit, StatePageLoaded, StateChallengeCleared, StateFieldsLocated,
	StateCredentialsEntered, StateSubmitLocated, StateSubmitted,
	StatePostSubmitChallengeCheck, StateOutcomeClassified, StateSuccess,
}

// =============================================================================
// Test Infrastructure
// =============================================================================

type scenario struct {
	cfg      *config.Config
	page     *mocks.FakePage
	clock    *mocks.ManualClock
	notifier *mocks.MockNotifier
	sink     *mocks.MockSink
	logs     *observer.ObservedLogs
	opened   int
	openErr  error
}

// newScenario scripts a login page whose form matches the first candidate selectors.
// Navigating to the recovery URL lands on the dashboard unless a test overrides it.
func newScenario(t *testing.T) *scenario {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Target.URL = baseURL
	cfg.Credentials = config.CredentialsConfig{Username: testUser, Password: config.Secret(testPassword)}
	cfg.Browser.Humanoid.Rng = rand.New(rand.NewSource(1))

	clock := mocks.NewManualClock()
	page := mocks.NewFakePage()
	page.Clock = clock
	page.OnNavigate = func(p *mocks.FakePage, url string) error {
		switch url {
		case loginURL:
			p.SetDocument(loginURL, "Login", `<form><input id="email"><input id="password"></form>`)
			p.AddElement("#email", true)
			p.AddElement("#password", true)
			p.AddElement(submitSel, true)
		default:
			p.SetDocument(url, "Dashboard", "<h1>Dashboard</h1>")
		}
		return nil
	}

	s := &scenario{
		cfg:      cfg,
		page:     page,
		clock:    clock,
		notifier: &mocks.MockNotifier{},
		sink:     &mocks.MockSink{},
	}
	s.notifier.On("Send", mock.Anything, mock.AnythingOfType("string")).Return(nil)
	s.sink.On("Capture", mock.Anything, mock.Anything).
		Return(diagnostics.Bundle{Screenshot: "login-failure-x.png", HTML: "login-debug-x.html"}, nil)
	return s
}

// submitLandsOn makes the submit click move the page to url with the given title and content.
func (s *scenario) submitLandsOn(url, title, content string) {
	s.page.OnClick = func(p *mocks.FakePage, selector string) error {
		if selector == submitSel {
			p.SetDocument(url, title, content)
		}
		return nil
	}
}

func (s *scenario) run(t *testing.T, ctx context.Context) (Outcome, error) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	s.logs = logs
	open := func(context.Context) (browser.Page, error) {
		s.opened++
		if s.openErr != nil {
			return nil, s.openErr
		}
		return s.page, nil
	}
	o := New(s.cfg, open, s.notifier, s.sink, zap.New(core), WithClock(s.clock))
	return o.Run(ctx)
}

func (s *scenario) assertNoCredentialsLogged(t *testing.T) {
	t.Helper()
	for _, entry := range s.logs.All() {
		line := entry.Message + fmt.Sprint(entry.ContextMap())
		assert.NotContains(t, line, testPassword, "password leaked into log entry %q", entry.Message)
		assert.NotContains(t, line, testUser, "identifier leaked into log entry %q", entry.Message)
	}
}

// =============================================================================
// End-to-end scenarios
// =============================================================================

func TestRun_HappyPath(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newScenario(t)
	s.submitLandsOn(dashboardURL, "Dashboard", "<h1>Dashboard</h1>")

	out, err := s.run(t, context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, out.Status)
	assert.True(t, out.Succeeded())
	assert.Equal(t, dashboardURL, out.URL)
	assert.Equal(t, "Dashboard", out.Title)
	assert.False(t, out.Recovered)
	assert.Nil(t, out.Err)
	if diff := cmp.Diff(happyTrail, out.States); diff != "" {
		t.Errorf("state trail mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{loginURL}, s.page.Navigations())
	assert.Equal(t, testUser, s.page.Value("#email"))
	assert.Equal(t, testPassword, s.page.Value("#password"))
	assert.Equal(t, []string{"#email", "#password", submitSel}, s.page.Clicks())
	assert.Len(t, s.page.Scrolls(), 2, "presence is simulated after the challenge and after typing")

	msgs := s.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Login succeeded")
	assert.Contains(t, msgs[0], dashboardURL)
	s.sink.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything)

	assert.Equal(t, 1, s.page.CloseCount())
	s.assertNoCredentialsLogged(t)
}

func TestRun_ChallengeNeverClears(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newScenario(t)
	s.page.OnNavigate = func(p *mocks.FakePage, url string) error {
		p.SetDocument(url, "Just a moment...", `<div id="cf-challenge-running"></div>`)
		return nil
	}
	start := s.clock.Now()

	out, err := s.run(t, context.Background())
	require.Error(t, err)

	assert.Equal(t, KindChallengeTimeout, KindOf(err))
	assert.True(t, errors.Is(err, &Error{Kind: KindChallengeTimeout}))
	assert.Equal(t, StatusFailure, out.Status)
	assert.Same(t, out.Err, err)
	assert.GreaterOrEqual(t, s.clock.Since(start), 60*time.Second)
	if diff := cmp.Diff([]State{StateInit, StatePageLoaded, StateFailure}, out.States); diff != "" {
		t.Errorf("state trail mismatch (-want +got):\n%s", diff)
	}

	s.sink.AssertNumberOfCalls(t, "Capture", 1)
	msgs := s.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Login failed")
	assert.Contains(t, msgs[0], "Debug artifacts saved")
	assert.Equal(t, 1, s.page.CloseCount())
}

func TestRun_RecoveryPath(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newScenario(t)
	s.submitLandsOn(loginURL, "Login", "<form></form>")

	recoveryNavs := 0
	base := s.page.OnNavigate
	s.page.OnNavigate = func(p *mocks.FakePage, url string) error {
		if url == s.cfg.RecoveryURL() {
			recoveryNavs++
			p.SetDocument(url, "Control", "<nav>Panel</nav>")
			return nil
		}
		return base(p, url)
	}

	out, err := s.run(t, context.Background())
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.True(t, out.Recovered)
	assert.Equal(t, 1, recoveryNavs)
	assert.Equal(t, []string{loginURL, dashboardURL}, s.page.Navigations())
	if diff := cmp.Diff(happyTrail, out.States); diff != "" {
		t.Errorf("state trail mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_RecoveryAttemptedAtMostOnce(t *testing.T) {
	s := newScenario(t)
	s.submitLandsOn(loginURL, "Login", "<form></form>")
	base := s.page.OnNavigate
	s.page.OnNavigate = func(p *mocks.FakePage, url string) error {
		if url == s.cfg.RecoveryURL() {
			// The panel bounces unauthenticated visitors back to the form.
			p.SetDocument(loginURL, "Login", "<form></form>")
			return nil
		}
		return base(p, url)
	}

	out, err := s.run(t, context.Background())
	require.Error(t, err)
	assert.True(t, out.Recovered)
	assert.Equal(t, []string{loginURL, dashboardURL}, s.page.Navigations(), "never a second recovery")
	assert.Equal(t, KindIndeterminateState, KindOf(err))
}

// =============================================================================
// Failure classification
// =============================================================================

func TestRun_FormNotFound(t *testing.T) {
	s := newScenario(t)
	base := s.page.OnNavigate
	s.page.OnNavigate = func(p *mocks.FakePage, url string) error {
		err := base(p, url)
		p.RemoveElement("#email")
		return err
	}
	start := s.clock.Now()

	out, err := s.run(t, context.Background())
	require.Error(t, err)
	assert.Equal(t, KindFormNotFound, KindOf(err))
	assert.Contains(t, err.Error(), "email")
	assert.NotContains(t, err.Error(), "password field")

	// Every email candidate spent its full budget; nothing waited longer.
	candidates := len(s.cfg.Login.EmailSelectors)
	budget := time.Duration(candidates) * s.cfg.Login.FieldTimeout
	assert.GreaterOrEqual(t, s.clock.Since(start), budget)
	assert.Empty(t, s.page.Keys(), "no credential is typed without a complete form")
	assert.Equal(t, StateFailure, out.States[len(out.States)-1])
	assert.Equal(t, 1, s.page.CloseCount())
}

func TestRun_SubmitNotFound(t *testing.T) {
	s := newScenario(t)
	base := s.page.OnNavigate
	s.page.OnNavigate = func(p *mocks.FakePage, url string) error {
		err := base(p, url)
		p.AddElement(submitSel, false) // present but hidden
		return err
	}

	_, err := s.run(t, context.Background())
	require.Error(t, err)
	assert.Equal(t, KindSubmitNotFound, KindOf(err))
	assert.NotContains(t, s.page.Clicks(), submitSel)
}

func TestRun_FallsBackToLaterSubmitCandidate(t *testing.T) {
	s := newScenario(t)
	base := s.page.OnNavigate
	s.page.OnNavigate = func(p *mocks.FakePage, url string) error {
		err := base(p, url)
		p.AddElement(submitSel, false)
		p.AddElement(".btn", true)
		return err
	}
	s.page.OnClick = func(p *mocks.FakePage, selector string) error {
		if selector == ".btn" {
			p.SetDocument(dashboardURL, "Dashboard", "Server Control")
		}
		return nil
	}

	out, err := s.run(t, context.Background())
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
	assert.Contains(t, s.page.Clicks(), ".btn")
}

func TestRun_LoginRejected(t *testing.T) {
	s := newScenario(t)
	s.page.OnClick = func(p *mocks.FakePage, selector string) error {
		if selector == submitSel {
			p.SetText(".alert-danger", "  Invalid credentials  ")
		}
		return nil
	}
	base := s.page.OnNavigate
	s.page.OnNavigate = func(p *mocks.FakePage, url string) error {
		if url == s.cfg.RecoveryURL() {
			p.SetDocument(loginURL, "Login", "<form></form>")
			return nil
		}
		return base(p, url)
	}

	out, err := s.run(t, context.Background())
	require.Error(t, err)
	assert.Equal(t, KindLoginRejected, KindOf(err))
	assert.Equal(t, "Invalid credentials", out.Err.Message)

	msgs := s.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Invalid credentials")
}

func TestRun_LongErrorDisplayStillNotifies(t *testing.T) {
	s := newScenario(t)
	long := strings.Repeat("x", 7500)
	s.page.OnClick = func(p *mocks.FakePage, selector string) error {
		if selector == submitSel {
			p.SetText(".error", long)
		}
		return nil
	}
	base := s.page.OnNavigate
	s.page.OnNavigate = func(p *mocks.FakePage, url string) error {
		if url == s.cfg.RecoveryURL() {
			p.SetDocument(loginURL, "Login", "<form></form>")
			return nil
		}
		return base(p, url)
	}

	out, err := s.run(t, context.Background())
	require.Error(t, err)
	assert.Equal(t, KindLoginRejected, KindOf(err))
	assert.Equal(t, long, out.Err.Message)

	msgs := s.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Less(t, utf8.RuneCountInString(msgs[0]), 4096)
	assert.Contains(t, msgs[0], "Error: LoginRejected: xxx")
}

func TestRun_IndeterminateState(t *testing.T) {
	s := newScenario(t)
	s.submitLandsOn(baseURL+"/welcome", "Welcome", "<p>hello</p>")

	out, err := s.run(t, context.Background())
	require.Error(t, err)
	assert.Equal(t, KindIndeterminateState, KindOf(err))
	assert.False(t, out.Recovered, "recovery only runs from the login page or a challenge")
	assert.Equal(t, baseURL+"/welcome", out.Err.URL)
	assert.Equal(t, "Welcome", out.Err.Title)
	assert.Contains(t, err.Error(), baseURL+"/welcome")
}

func TestRun_PostSubmitChallengeClears(t *testing.T) {
	s := newScenario(t)
	challenged, reads := false, 0
	s.page.OnClick = func(p *mocks.FakePage, selector string) error {
		if selector == submitSel {
			challenged = true
			p.SetDocument(dashboardURL, "Checking your browser", "")
		}
		return nil
	}
	s.page.OnRead = func(p *mocks.FakePage) {
		if !challenged {
			return
		}
		reads++
		if reads == 3 {
			p.SetDocument(dashboardURL, "Dashboard", "Betadash")
		}
	}

	out, err := s.run(t, context.Background())
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
	assert.False(t, out.Recovered)
	assert.Equal(t, []string{loginURL}, s.page.Navigations())
}

func TestRun_NavigationTimeout(t *testing.T) {
	s := newScenario(t)
	s.page.FailOn("Navigate", fmt.Errorf("%w: %s", browser.ErrNavigationTimeout, loginURL))

	out, err := s.run(t, context.Background())
	require.Error(t, err)
	assert.Equal(t, KindNavigationTimeout, KindOf(err))
	assert.ErrorIs(t, err, browser.ErrNavigationTimeout)
	if diff := cmp.Diff([]State{StateInit, StateFailure}, out.States); diff != "" {
		t.Errorf("state trail mismatch (-want +got):\n%s", diff)
	}
	s.sink.AssertNumberOfCalls(t, "Capture", 1)
	assert.Equal(t, 1, s.page.CloseCount())
}

// =============================================================================
// Boundary behavior
// =============================================================================

func TestRun_PanicBecomesUnexpectedRuntimeError(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := newScenario(t)
	s.page.OnClick = func(p *mocks.FakePage, selector string) error {
		if selector == submitSel {
			panic("nil map write")
		}
		return nil
	}

	out, err := s.run(t, context.Background())
	require.Error(t, err)
	assert.Equal(t, KindUnexpected, KindOf(err))
	assert.Contains(t, err.Error(), "UnexpectedRuntimeError")
	assert.Contains(t, err.Error(), "nil map write")
	assert.Equal(t, StatusFailure, out.Status)
	s.sink.AssertNumberOfCalls(t, "Capture", 1)
	assert.Len(t, s.notifier.Messages(), 1)
	assert.Equal(t, 1, s.page.CloseCount())
}

func TestRun_OpenerFailure(t *testing.T) {
	s := newScenario(t)
	s.openErr = errors.New("chrome not found")

	out, err := s.run(t, context.Background())
	require.Error(t, err)
	assert.Equal(t, KindUnexpected, KindOf(err))
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Equal(t, StatusFailure, out.Status)
	s.sink.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything)
	assert.Len(t, s.notifier.Messages(), 1)
	assert.Equal(t, 0, s.page.CloseCount())
}

func TestRun_NotificationFailureDoesNotMaskOutcome(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		s := newScenario(t)
		s.notifier = &mocks.MockNotifier{}
		s.notifier.On("Send", mock.Anything, mock.Anything).Return(errors.New("telegram down"))
		s.submitLandsOn(dashboardURL, "Dashboard", "Dashboard")

		out, err := s.run(t, context.Background())
		require.NoError(t, err)
		assert.True(t, out.Succeeded())
	})

	t.Run("Failure", func(t *testing.T) {
		s := newScenario(t)
		s.notifier = &mocks.MockNotifier{}
		s.notifier.On("Send", mock.Anything, mock.Anything).Return(errors.New("telegram down"))
		s.submitLandsOn(baseURL+"/welcome", "Welcome", "")

		_, err := s.run(t, context.Background())
		assert.Equal(t, KindIndeterminateState, KindOf(err))
	})
}

func TestRun_DiagnosticsFailureIsReported(t *testing.T) {
	s := newScenario(t)
	s.sink = &mocks.MockSink{}
	s.sink.On("Capture", mock.Anything, mock.Anything).Return(diagnostics.Bundle{}, errors.New("disk full"))
	s.submitLandsOn(baseURL+"/welcome", "Welcome", "")

	_, err := s.run(t, context.Background())
	assert.Equal(t, KindIndeterminateState, KindOf(err))
	msgs := s.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.NotContains(t, msgs[0], "Debug artifacts saved")
}

func TestRun_CancelledContextStillCleansUp(t *testing.T) {
	s := newScenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := s.run(t, ctx)
	require.Error(t, err)
	assert.Equal(t, StatusFailure, out.Status)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, s.notifier.Messages(), 1)
	assert.Equal(t, 1, s.page.CloseCount())
}

func TestRun_NilCollaborators(t *testing.T) {
	s := newScenario(t)
	s.submitLandsOn(baseURL+"/welcome", "Welcome", "")
	open := func(context.Context) (browser.Page, error) { return s.page, nil }

	o := New(s.cfg, open, nil, nil, zap.NewNop(), WithClock(s.clock))
	_, err := o.Run(context.Background())
	assert.Equal(t, KindIndeterminateState, KindOf(err))
	assert.Equal(t, 1, s.page.CloseCount())
}

func TestFailureReason(t *testing.T) {
	s := newScenario(t)
	o := New(s.cfg, nil, nil, nil, zap.NewNop(), WithClock(s.clock))

	t.Run("ChallengeBlocked", func(t *testing.T) {
		page := mocks.NewFakePage()
		page.SetDocument(dashboardURL, "Home", `<div id="cf-challenge-running"></div>`)
		a := &attempt{Orchestrator: o, page: page}

		got := a.failureReason(context.Background(), challenge.Signals{URL: dashboardURL, Title: "Home"})
		assert.Equal(t, KindChallengeBlocked, got.Kind)
	})

	t.Run("ErrorDisplayTakesPrecedence", func(t *testing.T) {
		page := mocks.NewFakePage()
		page.SetDocument(loginURL, "Just a moment...", "")
		page.SetText(".text-danger", "Account suspended")
		a := &attempt{Orchestrator: o, page: page}

		got := a.failureReason(context.Background(), challenge.Signals{URL: loginURL})
		assert.Equal(t, KindLoginRejected, got.Kind)
		assert.Equal(t, "Account suspended", got.Message)
	})

	t.Run("UnreadablePageIsIndeterminate", func(t *testing.T) {
		page := mocks.NewFakePage()
		page.FailOn("Title", errors.New("target crashed"))
		a := &attempt{Orchestrator: o, page: page}

		got := a.failureReason(context.Background(), challenge.Signals{URL: "about:blank"})
		assert.Equal(t, KindIndeterminateState, got.Kind)
	})
}
