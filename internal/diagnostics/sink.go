// Package diagnostics writes the failure artifacts of a login attempt: a full-page
// screenshot and the document markup, both stamped with the capture time.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
	"github.com/xkilldash9x/panelkeeper/internal/timing"
)

const (
	screenshotPrefix = "login-failure-"
	htmlPrefix       = "login-debug-"
)

var timestampReplacer = strings.NewReplacer(":", "-", ".", "-")

// Bundle holds the paths of the artifacts written for one failure. An empty path
// means that artifact could not be captured.
type Bundle struct {
	Screenshot string
	HTML       string
}

// Sink writes bundles into a directory on an afero filesystem.
type Sink struct {
	fs     afero.Fs
	dir    string
	clock  timing.Clock
	logger *zap.Logger
}

// NewSink creates a Sink rooted at dir.
func NewSink(fs afero.Fs, dir string, clock timing.Clock, logger *zap.Logger) *Sink {
	if dir == "" {
		dir = "."
	}
	if clock == nil {
		clock = timing.Real()
	}
	return &Sink{fs: fs, dir: dir, clock: clock, logger: logger.Named("diagnostics")}
}

// Timestamp renders t in UTC ISO-8601 with millisecond precision, with ':' and '.'
// replaced so the result is safe in a filename.
func Timestamp(t time.Time) string {
	return timestampReplacer.Replace(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

// Capture saves a screenshot and an HTML snapshot of page. Both are attempted
// even when one fails; the returned error joins every failure.
func (s *Sink) Capture(ctx context.Context, page browser.Page) (Bundle, error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return Bundle{}, fmt.Errorf("failed to create diagnostics directory %s: %w", s.dir, err)
	}

	ts := Timestamp(s.clock.Now())
	var bundle Bundle
	var errs []error

	if png, err := page.Screenshot(ctx); err != nil {
		errs = append(errs, fmt.Errorf("screenshot: %w", err))
	} else if path, err := s.write(screenshotPrefix+ts+".png", png); err != nil {
		errs = append(errs, err)
	} else {
		bundle.Screenshot = path
	}

	if html, err := page.Content(ctx); err != nil {
		errs = append(errs, fmt.Errorf("html snapshot: %w", err))
	} else if path, err := s.write(htmlPrefix+ts+".html", []byte(html)); err != nil {
		errs = append(errs, err)
	} else {
		bundle.HTML = path
	}

	s.logger.Info("Diagnostics captured.",
		zap.String("screenshot", bundle.Screenshot),
		zap.String("html", bundle.HTML),
		zap.Int("errors", len(errs)),
	)
	return bundle, errors.Join(errs...)
}

// write creates name exclusively; an existing file is never overwritten.
func (s *Sink) write(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name)
	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}
