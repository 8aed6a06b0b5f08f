// Package challenge recognises anti-bot interstitials and waits for them to clear.
package challenge

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
	"github.com/xkilldash9x/panelkeeper/internal/config"
)

// Signals is a snapshot of the page state the detector inspects.
type Signals struct {
	Title   string
	URL     string
	Content string
}

// Detector holds the marker strings that identify a challenge page.
type Detector struct {
	TitlePhrases   []string
	URLMarkers     []string
	ContentMarkers []string
}

// NewDetector builds a Detector from configuration, dropping blank markers.
func NewDetector(cfg config.ChallengeConfig) *Detector {
	phrases := make([]string, 0, len(cfg.TitlePhrases))
	for _, p := range cfg.TitlePhrases {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Detector{
		TitlePhrases:   phrases,
		URLMarkers:     nonEmpty(cfg.URLMarkers),
		ContentMarkers: nonEmpty(cfg.ContentMarkers),
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Match reports whether any recognised marker is present in s.
func (d *Detector) Match(s Signals) bool {
	return d.TitleActive(s.Title) ||
		containsAny(s.URL, d.URLMarkers) ||
		containsAny(s.Content, d.ContentMarkers)
}

// TitleActive reports whether title carries a challenge phrase. Case-insensitive.
func (d *Detector) TitleActive(title string) bool {
	lower := strings.ToLower(title)
	for _, p := range d.TitlePhrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Read captures the current title, URL and markup of page.
func Read(ctx context.Context, page browser.Page) (Signals, error) {
	var s Signals
	var err error
	if s.Title, err = page.Title(ctx); err != nil {
		return Signals{}, fmt.Errorf("failed to read page title: %w", err)
	}
	if s.URL, err = page.URL(ctx); err != nil {
		return Signals{}, fmt.Errorf("failed to read page URL: %w", err)
	}
	if s.Content, err = page.Content(ctx); err != nil {
		return Signals{}, fmt.Errorf("failed to read page content: %w", err)
	}
	return s, nil
}

// Active reads the page afresh and reports whether a challenge is showing.
func (d *Detector) Active(ctx context.Context, page browser.Page) (bool, error) {
	s, err := Read(ctx, page)
	if err != nil {
		return false, err
	}
	return d.Match(s), nil
}
