// -- internal/humanoid/presence.go --
package humanoid

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
)

// SimulatePresence scrolls to a random offset and then idles for a random pause.
// It is best effort: failures are logged and never returned.
func (h *Humanoid) SimulatePresence(ctx context.Context, page browser.Page) {
	offset := h.intn(h.cfg.ScrollMaxPx)
	h.logger.Debug("Simulating presence.", zap.Int("scroll_y", offset))

	if err := page.ScrollTo(ctx, offset); err != nil {
		h.logger.Debug("Presence scroll failed.", zap.Error(err))
	}
	if err := h.pause(ctx, h.cfg.PauseMin, h.cfg.PauseMax); err != nil {
		h.logger.Debug("Presence pause interrupted.", zap.Error(err))
	}
}
