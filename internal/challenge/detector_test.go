package challenge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/panelkeeper/internal/config"
	"github.com/xkilldash9x/panelkeeper/internal/mocks"
)

func defaultDetector() *Detector {
	return NewDetector(config.NewDefaultConfig().Challenge)
}

func TestNewDetector_DropsBlankMarkers(t *testing.T) {
	d := NewDetector(config.ChallengeConfig{
		TitlePhrases:   []string{"  ", "Verifying"},
		URLMarkers:     []string{"", "/cdn-cgi/"},
		ContentMarkers: []string{""},
	})
	assert.Equal(t, []string{"Verifying"}, d.TitlePhrases)
	assert.Equal(t, []string{"/cdn-cgi/"}, d.URLMarkers)
	assert.Empty(t, d.ContentMarkers)

	// A blank marker must never match everything.
	assert.False(t, d.Match(Signals{Title: "Dashboard", URL: "https://p.example/", Content: "<html></html>"}))
}

func TestMatch(t *testing.T) {
	d := defaultDetector()

	tests := []struct {
		name     string
		signals  Signals
		expected bool
	}{
		{"CleanPage", Signals{"Dashboard", "https://panel.example/dashboard", "<div>Server Control</div>"}, false},
		{"EmptySignals", Signals{}, false},
		{"TitlePhrase", Signals{"Just a moment...", "https://panel.example/login", ""}, true},
		{"TitleIsCaseInsensitive", Signals{"VERIFYING YOU ARE HUMAN", "https://panel.example/", ""}, true},
		{"TitlePleaseWait", Signals{"please wait", "", ""}, true},
		{"URLMarker", Signals{"", "https://panel.example/cdn-cgi/challenge-platform/h/b", ""}, true},
		{"URLChallengesSegment", Signals{"", "https://challenges.cloudflare.com/turnstile", ""}, true},
		{"ContentMarker", Signals{"Login", "https://panel.example/login", `<form id="challenge-form">`}, true},
		{"ContentChlProg", Signals{"", "", `<script>window._cf_chl_opt={};cf_chl_prog=1</script>`}, true},
		{"ContentIsCaseSensitive", Signals{"", "", `<div class="CF-BROWSER-VERIFICATION">`}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, d.Match(tt.signals))
		})
	}
}

func TestTitleActive(t *testing.T) {
	d := defaultDetector()
	assert.True(t, d.TitleActive("Checking your browser"))
	assert.False(t, d.TitleActive("Betadash | Servers"))

	// Phrases supplied directly, with mixed case, still match case-insensitively.
	custom := &Detector{TitlePhrases: []string{"Attention Required"}}
	assert.True(t, custom.TitleActive("attention required! | cloudflare"))
}

func TestActive(t *testing.T) {
	d := defaultDetector()
	page := mocks.NewFakePage()
	page.SetDocument("https://panel.example/login", "Just a moment...", "")

	active, err := d.Active(context.Background(), page)
	require.NoError(t, err)
	assert.True(t, active)

	t.Run("IdempotentOnUnchangedPage", func(t *testing.T) {
		first, err := d.Active(context.Background(), page)
		require.NoError(t, err)
		second, err := d.Active(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("ReadsFreshStateEveryCall", func(t *testing.T) {
		page.SetDocument("https://panel.example/login", "Login", "<form></form>")
		active, err := d.Active(context.Background(), page)
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("ReadFailureIsReturned", func(t *testing.T) {
		page.FailOn("Content", errors.New("execution context was destroyed"))
		defer page.FailOn("Content", nil)

		_, err := d.Active(context.Background(), page)
		assert.Error(t, err)
	})
}

func TestRead(t *testing.T) {
	page := mocks.NewFakePage()
	page.SetDocument("https://p.example/x", "T", "<p>c</p>")

	s, err := Read(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, Signals{Title: "T", URL: "https://p.example/x", Content: "<p>c</p>"}, s)

	page.FailOn("URL", errors.New("boom"))
	_, err = Read(context.Background(), page)
	assert.ErrorContains(t, err, "page URL")
}
