// File: internal/mocks/page.go
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
)

// FakeElement is one selector's worth of DOM in a FakePage.
type FakeElement struct {
	Visible bool
	Text    string
	Value   string
}

// KeyEvent records a single TypeKey call.
type KeyEvent struct {
	Selector string
	Key      rune
}

// FakePage is a scripted browser.Page. Elements are keyed by the exact selector
// string the caller uses. Hooks run without the page lock held, so they may call
// the setters.
type FakePage struct {
	mu sync.Mutex

	// Clock, when set, is advanced by the full timeout of a WaitPresent that finds nothing.
	Clock *ManualClock

	title    string
	url      string
	content  string
	elements map[string]*FakeElement
	errs     map[string]error

	// OnNavigate runs after a navigation is recorded; its error is returned from Navigate.
	OnNavigate func(p *FakePage, url string) error
	// OnClick runs after a click is recorded.
	OnClick func(p *FakePage, selector string) error
	// OnRead runs before every Title read, once per detector poll.
	OnRead func(p *FakePage)

	navigations []string
	clicks      []string
	keys        []KeyEvent
	clears      []string
	scrolls     []int
	waits       []string
	titleReads  int
	closeCount  int

	ScreenshotPNG []byte
}

var _ browser.Page = (*FakePage)(nil)

// NewFakePage returns an empty page at about:blank.
func NewFakePage() *FakePage {
	return &FakePage{
		url:           "about:blank",
		elements:      make(map[string]*FakeElement),
		errs:          make(map[string]error),
		ScreenshotPNG: []byte("\x89PNG fake"),
	}
}

// -- Scripting --

// SetDocument replaces the current URL, title and markup.
func (p *FakePage) SetDocument(url, title, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url, p.title, p.content = url, title, content
}

func (p *FakePage) SetTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
}

// AddElement makes selector resolvable. visible controls InViewport.
func (p *FakePage) AddElement(selector string, visible bool) *FakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	el := &FakeElement{Visible: visible}
	p.elements[selector] = el
	return el
}

// SetText adds selector if needed and sets its text content.
func (p *FakePage) SetText(selector, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	if !ok {
		el = &FakeElement{Visible: true}
		p.elements[selector] = el
	}
	el.Text = text
}

func (p *FakePage) RemoveElement(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

// FailOn makes the named method (e.g. "Title", "Navigate") return err.
func (p *FakePage) FailOn(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.errs, method)
		return
	}
	p.errs[method] = err
}

func (p *FakePage) fail(method string) error {
	return p.errs[method]
}

// -- Recorded activity --

func (p *FakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

func (p *FakePage) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

func (p *FakePage) Keys() []KeyEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]KeyEvent(nil), p.keys...)
}

func (p *FakePage) Clears() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clears...)
}

func (p *FakePage) Scrolls() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.scrolls...)
}

// Waits lists the selectors passed to WaitPresent, in order.
func (p *FakePage) Waits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.waits...)
}

func (p *FakePage) TitleReads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.titleReads
}

func (p *FakePage) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCount
}

// Value returns the current value of a form field.
func (p *FakePage) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.elements[selector]; ok {
		return el.Value
	}
	return ""
}

// -- browser.Page --

func (p *FakePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	err := p.fail("Navigate")
	hook := p.OnNavigate
	if err == nil && hook == nil {
		p.url = url
	}
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		return hook(p, url)
	}
	return nil
}

func (p *FakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	hook := p.OnRead
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.titleReads++
	if err := p.fail("Title"); err != nil {
		return "", err
	}
	return p.title, nil
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("URL"); err != nil {
		return "", err
	}
	return p.url, nil
}

func (p *FakePage) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("Content"); err != nil {
		return "", err
	}
	return p.content, nil
}

func (p *FakePage) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits = append(p.waits, selector)
	if _, ok := p.elements[selector]; ok {
		return nil
	}
	if p.Clock != nil {
		p.Clock.Advance(timeout)
	}
	return fmt.Errorf("%w: %s after %s", browser.ErrElementNotFound, selector, timeout)
}

func (p *FakePage) Exists(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("Exists"); err != nil {
		return false, err
	}
	_, ok := p.elements[selector]
	return ok, nil
}

func (p *FakePage) InViewport(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	return ok && el.Visible, nil
}

func (p *FakePage) TextContent(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.elements[selector]; ok {
		return el.Text, nil
	}
	return "", nil
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.clicks = append(p.clicks, selector)
	_, ok := p.elements[selector]
	hook := p.OnClick
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("failed to click %s: %w", selector, browser.ErrElementNotFound)
	}
	if hook != nil {
		return hook(p, selector)
	}
	return nil
}

func (p *FakePage) ClearValue(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears = append(p.clears, selector)
	el, ok := p.elements[selector]
	if !ok {
		return fmt.Errorf("failed to clear %s: %w", selector, browser.ErrElementNotFound)
	}
	el.Value = ""
	return nil
}

func (p *FakePage) TypeKey(ctx context.Context, selector string, key rune) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	if !ok {
		return fmt.Errorf("failed to type into %s: %w", selector, browser.ErrElementNotFound)
	}
	p.keys = append(p.keys, KeyEvent{Selector: selector, Key: key})
	el.Value += string(key)
	return nil
}

func (p *FakePage) ScrollTo(ctx context.Context, y int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("ScrollTo"); err != nil {
		return err
	}
	p.scrolls = append(p.scrolls, y)
	return nil
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("Screenshot"); err != nil {
		return nil, err
	}
	return append([]byte(nil), p.ScreenshotPNG...), nil
}

func (p *FakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCount++
	return nil
}
