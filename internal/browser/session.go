// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// opTimeout bounds every browser operation that has no budget of its own.
const opTimeout = 30 * time.Second

// Session is one browser process plus one controlled tab, driven over CDP.
type Session struct {
	id     string
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

var _ Page = (*Session)(nil)

// ID returns the session identifier used in log lines.
func (s *Session) ID() string { return s.id }

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	// Operations must run on a child of the tab context; the caller's ctx only cancels.
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// evaluate runs a JS expression with selector injected as a JSON string literal.
func (s *Session) evaluate(ctx context.Context, script, selector string, res interface{}, await bool) error {
	if selector != "" {
		quoted, err := json.Marshal(selector)
		if err != nil {
			return fmt.Errorf("failed to encode selector: %w", err)
		}
		script = fmt.Sprintf(script, quoted)
	}
	var opts []chromedp.EvaluateOption
	if await {
		opts = append(opts, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		})
	}
	return s.run(ctx, opTimeout, chromedp.Evaluate(script, res, opts...))
}

// Navigate loads url and waits for the main frame's networkIdle lifecycle event.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.logger.Debug("Navigating", zap.String("url", url), zap.Duration("timeout", timeout))

	navCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	mainFrame := cdp.FrameID(chromedp.FromContext(s.tabCtx).Target.TargetID)
	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(navCtx, func(ev interface{}) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok || e.Name != "networkIdle" || e.FrameID != mainFrame {
			return
		}
		select {
		case idle <- struct{}{}:
		default:
		}
	})

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return s.navigationError(ctx, navCtx, url, err)
	}

	select {
	case <-idle:
		return nil
	case <-navCtx.Done():
		return s.navigationError(ctx, navCtx, url, navCtx.Err())
	}
}

func (s *Session) navigationError(callerCtx, navCtx context.Context, url string, err error) error {
	if callerCtx.Err() != nil {
		return callerCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(navCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
	}
	return fmt.Errorf("navigation to %s failed: %w", url, err)
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, opTimeout, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, opTimeout, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return location, nil
}

func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, opTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read document markup: %w", err)
	}
	return html, nil
}

func (s *Session) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	err := s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrElementNotFound, selector, timeout)
	}
	return fmt.Errorf("waiting for %s failed: %w", selector, err)
}

func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	if err := s.evaluate(ctx, `document.querySelector(%s) !== null`, selector, &found, false); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return found, nil
}

const inViewportScript = `new Promise((resolve) => {
	const el = document.querySelector(%s);
	if (!el) { resolve(false); return; }
	const observer = new IntersectionObserver((entries) => {
		resolve(entries[0].intersectionRatio > 0);
		observer.disconnect();
	});
	observer.observe(el);
})`

func (s *Session) InViewport(ctx context.Context, selector string) (bool, error) {
	var visible bool
	if err := s.evaluate(ctx, inViewportScript, selector, &visible, true); err != nil {
		return false, fmt.Errorf("failed to check visibility of %s: %w", selector, err)
	}
	return visible, nil
}

func (s *Session) TextContent(ctx context.Context, selector string) (string, error) {
	var text string
	script := `(() => { const el = document.querySelector(%s); return el && el.textContent ? el.textContent.trim() : ""; })()`
	if err := s.evaluate(ctx, script, selector, &text, false); err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, opTimeout, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

func (s *Session) ClearValue(ctx context.Context, selector string) error {
	var cleared bool
	script := `(() => { const el = document.querySelector(%s); if (!el) return false; el.value = ""; return true; })()`
	if err := s.evaluate(ctx, script, selector, &cleared, false); err != nil {
		return fmt.Errorf("failed to clear %s: %w", selector, err)
	}
	return nil
}

func (s *Session) TypeKey(ctx context.Context, selector string, key rune) error {
	if err := s.run(ctx, opTimeout, chromedp.SendKeys(selector, string(key), chromedp.ByQuery)); err != nil {
		// The key is not part of the error.
		return fmt.Errorf("failed to type into %s: %w", selector, err)
	}
	return nil
}

func (s *Session) ScrollTo(ctx context.Context, y int) error {
	var done bool
	script := fmt.Sprintf(`(() => { window.scrollTo(0, %d); return true; })()`, y)
	if err := s.run(ctx, opTimeout, chromedp.Evaluate(script, &done)); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 makes chromedp capture PNG rather than JPEG.
	if err := s.run(ctx, opTimeout, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Close shuts the browser down. It waits for the process to exit, bounded by ctx.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// chromedp.Cancel closes the browser gracefully when this context created it.
	if err := chromedp.Cancel(s.tabCtx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("Graceful browser close failed.", zap.Error(err))
	}
	s.release()

	select {
	case <-s.allocCtx.Done():
		s.logger.Info("Browser session closed.")
	case <-ctx.Done():
		s.logger.Warn("Deadline exceeded waiting for the browser to exit.", zap.Error(ctx.Err()))
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) release() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}
