// -- internal/humanoid/humanoid.go --
// Package humanoid paces browser input like a person would: irregular scrolls,
// idle pauses and one keystroke at a time with a jittered cadence.
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/panelkeeper/internal/config"
	"github.com/xkilldash9x/panelkeeper/internal/timing"
)

// Humanoid draws randomized delays and offsets from its configured ranges.
type Humanoid struct {
	cfg    config.HumanoidConfig
	clock  timing.Clock
	logger *zap.Logger

	// rng is not safe for concurrent use.
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Humanoid. A nil cfg.Rng is replaced by a time-seeded source and a
// nil clock by the wall clock.
func New(cfg config.HumanoidConfig, clock timing.Clock, logger *zap.Logger) *Humanoid {
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if clock == nil {
		clock = timing.Real()
	}
	return &Humanoid{
		cfg:    cfg,
		clock:  clock,
		logger: logger.Named("humanoid"),
		rng:    rng,
	}
}

// Between returns a uniformly distributed duration in the closed range [min, max].
// If max <= min it returns min.
func (h *Humanoid) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	h.mu.Lock()
	n := h.rng.Int63n(int64(max-min) + 1)
	h.mu.Unlock()
	return min + time.Duration(n)
}

// intn returns a value in [0, n].
func (h *Humanoid) intn(n int) int {
	if n <= 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Intn(n + 1)
}

// pause sleeps for a random duration in [min, max].
func (h *Humanoid) pause(ctx context.Context, min, max time.Duration) error {
	return h.clock.Sleep(ctx, h.Between(min, max))
}
