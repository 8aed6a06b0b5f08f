package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
	"github.com/xkilldash9x/panelkeeper/internal/timing"
)

// ErrTimeout is returned when a challenge is still showing at the deadline.
var ErrTimeout = errors.New("challenge did not clear")

const defaultPollInterval = 3 * time.Second

// Waiter polls a Detector until the challenge clears or a deadline passes.
type Waiter struct {
	detector     *Detector
	clock        timing.Clock
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewWaiter creates a Waiter. A non-positive pollInterval falls back to three seconds.
func NewWaiter(detector *Detector, clock timing.Clock, pollInterval time.Duration, logger *zap.Logger) *Waiter {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if clock == nil {
		clock = timing.Real()
	}
	return &Waiter{
		detector:     detector,
		clock:        clock,
		pollInterval: pollInterval,
		logger:       logger.Named("challenge"),
	}
}

// Wait returns nil as soon as the page shows no challenge. A read failure counts
// as still active for that poll.
func (w *Waiter) Wait(ctx context.Context, page browser.Page, timeout time.Duration) error {
	start := w.clock.Now()
	polls := 0

	for w.clock.Since(start) < timeout {
		polls++
		active, err := w.detector.Active(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Debug("Challenge check failed, treating as active.", zap.Int("poll", polls), zap.Error(err))
			active = true
		}
		if !active {
			if polls > 1 {
				w.logger.Info("Challenge cleared.", zap.Int("polls", polls), zap.Duration("elapsed", w.clock.Since(start)))
			}
			return nil
		}

		w.logger.Debug("Challenge still active, waiting.", zap.Int("poll", polls), zap.Duration("interval", w.pollInterval))
		if err := w.clock.Sleep(ctx, w.pollInterval); err != nil {
			return err
		}
	}

	w.logger.Warn("Challenge did not clear before the deadline.", zap.Duration("timeout", timeout), zap.Int("polls", polls))
	return fmt.Errorf("%w within %s", ErrTimeout, timeout)
}
