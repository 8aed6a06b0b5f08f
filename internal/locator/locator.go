// Package locator finds form controls by trying candidate selectors in priority order.
package locator

import (
	"context"
	"time"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
)

// Role is the semantic purpose of a located element.
type Role string

const (
	RoleEmail    Role = "email"
	RolePassword Role = "password"
	RoleSubmit   Role = "submit"
)

// Result is the selector that satisfied a role.
type Result struct {
	Role     Role
	Selector string
}

// Matcher is one strategy for finding an element. A miss is (_, false, nil);
// only cancellation of ctx is reported as an error.
type Matcher interface {
	Match(ctx context.Context, page browser.Page) (selector string, ok bool, err error)
}

// Present matches when Selector appears in the DOM within Timeout.
type Present struct {
	Selector string
	Timeout  time.Duration
}

func (m Present) Match(ctx context.Context, page browser.Page) (string, bool, error) {
	if err := page.WaitPresent(ctx, m.Selector, m.Timeout); err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", false, nil
	}
	return m.Selector, true, nil
}

// Visible matches when Selector exists right now and intersects the viewport.
type Visible struct {
	Selector string
}

func (m Visible) Match(ctx context.Context, page browser.Page) (string, bool, error) {
	exists, err := page.Exists(ctx, m.Selector)
	if err != nil || !exists {
		return "", false, ctx.Err()
	}
	inView, err := page.InViewport(ctx, m.Selector)
	if err != nil || !inView {
		return "", false, ctx.Err()
	}
	return m.Selector, true, nil
}

// PresentAll wraps each selector in a Present matcher with the same timeout.
func PresentAll(timeout time.Duration, selectors ...string) []Matcher {
	out := make([]Matcher, 0, len(selectors))
	for _, s := range selectors {
		out = append(out, Present{Selector: s, Timeout: timeout})
	}
	return out
}

// VisibleAll wraps each selector in a Visible matcher.
func VisibleAll(selectors ...string) []Matcher {
	out := make([]Matcher, 0, len(selectors))
	for _, s := range selectors {
		out = append(out, Visible{Selector: s})
	}
	return out
}

// Locate tries matchers in order and returns the first hit. When nothing matches
// it returns found=false and a nil error.
func Locate(ctx context.Context, page browser.Page, role Role, matchers ...Matcher) (Result, bool, error) {
	for _, m := range matchers {
		selector, ok, err := m.Match(ctx, page)
		if err != nil {
			return Result{}, false, err
		}
		if ok {
			return Result{Role: role, Selector: selector}, true, nil
		}
	}
	return Result{Role: role}, false, nil
}
