// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNavigationTimeout means the page did not reach network idle within the navigation budget.
	ErrNavigationTimeout = errors.New("navigation timed out before network idle")
	// ErrElementNotFound means a selector matched nothing within its wait budget.
	ErrElementNotFound = errors.New("element not found")
	// ErrSessionClosed is returned by any operation on a closed session.
	ErrSessionClosed = errors.New("browser session is closed")
)

// Page is the browser capability the login sequence drives. Session implements it
// over chromedp; tests substitute a scripted fake.
type Page interface {
	// Navigate loads url and waits until the network is idle or timeout elapses.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	// Content returns the full markup of the current document.
	Content(ctx context.Context) (string, error)

	// WaitPresent waits up to timeout for selector to exist in the DOM.
	WaitPresent(ctx context.Context, selector string, timeout time.Duration) error
	// Exists is a single, non-waiting DOM query.
	Exists(ctx context.Context, selector string) (bool, error)
	// InViewport reports whether the first match of selector intersects the viewport.
	InViewport(ctx context.Context, selector string) (bool, error)
	// TextContent returns the trimmed text of the first match, or "" if nothing matches.
	TextContent(ctx context.Context, selector string) (string, error)

	Click(ctx context.Context, selector string) error
	// ClearValue resets the value of the first matching form control.
	ClearValue(ctx context.Context, selector string) error
	// TypeKey dispatches a single character into selector.
	TypeKey(ctx context.Context, selector string, key rune) error
	// ScrollTo scrolls the window to vertical offset y.
	ScrollTo(ctx context.Context, y int) error

	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the page and its browser. Safe to call more than once.
	Close(ctx context.Context) error
}
