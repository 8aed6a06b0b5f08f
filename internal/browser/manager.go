// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/panelkeeper/internal/config"
)

const defaultLaunchTimeout = 30 * time.Second

// Launch starts a browser process, opens one tab and applies the persona. The
// returned Session owns both; Close releases them. Cancelling ctx aborts the launch;
// once Launch returns, the browser lives until Close.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	id := uuid.New().String()
	log := logger.Named("browser").With(zap.String("session_id", id[:8]))
	log.Info("Launching browser...", zap.Bool("headless", cfg.Headless))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), AllocatorOptions(cfg)...)
	// Until the tab is ready, cancelling ctx kills the browser.
	stopLaunchCancel := context.AfterFunc(ctx, allocCancel)
	defer stopLaunchCancel()

	sugar := log.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		// chromedp reports unknown CDP events as errors; they are noise here.
		chromedp.WithErrorf(sugar.Debugf),
	)

	s := &Session{
		id:          id,
		logger:      log,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}

	// The first Run allocates the browser. It must not carry a timeout, otherwise the
	// browser would be torn down when that timeout's context is released.
	if err := chromedp.Run(tabCtx); err != nil {
		s.release()
		return nil, fmt.Errorf("browser failed to start: %w", err)
	}

	timeout := cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}
	setupCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()

	tasks := chromedp.Tasks{page.SetLifecycleEventsEnabled(true)}
	tasks = append(tasks, PersonaFromConfig(cfg).Apply(log)...)
	if err := chromedp.Run(setupCtx, tasks); err != nil {
		s.release()
		return nil, fmt.Errorf("failed to prepare browser tab: %w", err)
	}

	if !stopLaunchCancel() {
		s.release()
		return nil, fmt.Errorf("browser launch aborted: %w", ctx.Err())
	}

	log.Info("Browser launched and tab prepared.")
	return s, nil
}

// AllocatorOptions assembles the Chrome flags for an unattended, desktop-looking browser.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	for name, value := range AllocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// AllocatorFlags returns the command-line flags layered over chromedp's defaults,
// including any extra "--name[=value]" arguments from the configuration.
func AllocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless": cfg.Headless,
		// A false flag is omitted by chromedp, which removes this default.
		"enable-automation":        false,
		"disable-blink-features":   "AutomationControlled",
		"disable-gpu":              true,
		"disable-dev-shm-usage":    true,
		"disable-extensions":       true,
		"no-first-run":             true,
		"no-default-browser-check": true,
	}

	// Containers on Linux usually lack the user namespaces the sandbox needs.
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-setuid-sandbox"] = true
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}
	return flags
}
