// -- internal/humanoid/keyboard.go --
package humanoid

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
)

// EnterCredential focuses selector, clears it and types value one rune at a time.
// Errors and logs name the selector only; value never leaves this function.
func (h *Humanoid) EnterCredential(ctx context.Context, page browser.Page, selector, value string) error {
	if err := page.Click(ctx, selector); err != nil {
		return fmt.Errorf("humanoid: failed to focus '%s': %w", selector, err)
	}
	if err := h.clock.Sleep(ctx, h.cfg.FocusPause); err != nil {
		return err
	}
	if err := page.ClearValue(ctx, selector); err != nil {
		return fmt.Errorf("humanoid: failed to clear '%s': %w", selector, err)
	}

	for _, r := range value {
		if err := h.pause(ctx, h.cfg.KeyDelayMin, h.cfg.KeyDelayMax); err != nil {
			return err
		}
		if err := page.TypeKey(ctx, selector, r); err != nil {
			return fmt.Errorf("humanoid: failed to type into '%s': %w", selector, err)
		}
	}

	h.logger.Debug("Field filled.", zap.String("selector", selector))
	return h.pause(ctx, h.cfg.PostEntryMin, h.cfg.PostEntryMax)
}
