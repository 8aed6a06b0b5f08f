// internal/browser/persona.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/panelkeeper/internal/config"
)

// Persona is the desktop browser profile presented to the panel.
type Persona struct {
	UserAgent string
	Languages []string
	Width     int64
	Height    int64
}

// PersonaFromConfig builds a Persona from the browser configuration.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	return Persona{
		UserAgent: cfg.UserAgent,
		Languages: cfg.Languages,
		Width:     int64(cfg.ViewportWidth),
		Height:    int64(cfg.ViewportHeight),
	}
}

// AcceptLanguage renders Languages as an Accept-Language header with descending q-values.
func (p Persona) AcceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

const navigatorShim = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
%s})();`

// InitScript returns the script evaluated before any page script in every new document.
// It hides navigator.webdriver, reports a non-empty plugin list and, when Languages is
// set, pins navigator.languages to it.
func (p Persona) InitScript() string {
	languages := ""
	if len(p.Languages) > 0 {
		encoded, err := json.Marshal(p.Languages)
		if err == nil {
			languages = fmt.Sprintf("\tObject.defineProperty(navigator, 'languages', { get: () => %s });\n", encoded)
		}
	}
	return fmt.Sprintf(navigatorShim, languages)
}

// Apply returns the CDP actions that make the tab present this persona.
func (p Persona) Apply(logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser persona",
		zap.String("userAgent", p.UserAgent),
		zap.Strings("languages", p.Languages),
	)

	script := p.InitScript()
	tasks := chromedp.Tasks{
		// AddScriptToEvaluateOnNewDocument returns an identifier as well, so it needs a wrapper.
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to install navigator shim: %w", err)
			}
			return nil
		}),
	}
	if p.UserAgent != "" {
		ua := emulation.SetUserAgentOverride(p.UserAgent)
		if len(p.Languages) > 0 {
			ua = ua.WithAcceptLanguage(p.AcceptLanguage())
		}
		tasks = append(tasks, ua)
	}
	if len(p.Languages) > 0 {
		tasks = append(tasks, network.Enable(), network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": p.AcceptLanguage(),
		}))
	}
	if p.Width > 0 && p.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(p.Width, p.Height, 1.0, false))
	}
	return tasks
}
