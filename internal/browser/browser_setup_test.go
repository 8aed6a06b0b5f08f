// internal/browser/browser_setup_test.go
package browser_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
	"github.com/xkilldash9x/panelkeeper/internal/config"
)

// findChrome returns a browser binary or skips the test.
func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser integration tests skipped in short mode")
	}
	if path := os.Getenv("PANELKEEPER_TEST_CHROME"); path != "" {
		return path
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome/Chromium binary found")
	return ""
}

// launchSession starts a headless session and registers its shutdown.
func launchSession(t *testing.T) *browser.Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return launchSessionWithContext(t, ctx)
}

// launchSessionWithContext launches with a caller-owned context.
func launchSessionWithContext(t *testing.T, ctx context.Context) *browser.Session {
	t.Helper()
	execPath := findChrome(t)
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))

	cfg := config.NewDefaultConfig().Browser
	cfg.Headless = true
	cfg.ExecPath = execPath

	session, err := browser.Launch(ctx, cfg, logger)
	require.NoError(t, err, "failed to launch browser")

	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		_ = session.Close(closeCtx)
	})
	return session
}

// createTestServer starts a mock HTTP server.
func createTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}
