// File: internal/config/humanoid_config.go
// This file defines the HumanoidConfig struct, the tunable ranges that drive the
// simulated user pacing: scroll offsets, idle pauses and typing cadence.
//
// Every value is drawn from a closed [min, max] range so the rhythm never settles
// into a fixed interval.
package config

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/viper"
)

// HumanoidConfig holds the pacing ranges used by the humanoid package.
type HumanoidConfig struct {
	// ScrollMaxPx bounds the random vertical scroll offset.
	ScrollMaxPx int `mapstructure:"scroll_max_px" yaml:"scroll_max_px"`

	PauseMin time.Duration `mapstructure:"pause_min" yaml:"pause_min"`
	PauseMax time.Duration `mapstructure:"pause_max" yaml:"pause_max"`

	// FocusPause is the fixed beat between clicking a field and clearing it.
	FocusPause time.Duration `mapstructure:"focus_pause" yaml:"focus_pause"`

	KeyDelayMin time.Duration `mapstructure:"key_delay_min" yaml:"key_delay_min"`
	KeyDelayMax time.Duration `mapstructure:"key_delay_max" yaml:"key_delay_max"`

	PostEntryMin time.Duration `mapstructure:"post_entry_min" yaml:"post_entry_min"`
	PostEntryMax time.Duration `mapstructure:"post_entry_max" yaml:"post_entry_max"`

	// Rng allows tests to pin the random stream. Not loaded from config files.
	Rng *rand.Rand `mapstructure:"-" yaml:"-"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("browser.humanoid.scroll_max_px", 300)
	v.SetDefault("browser.humanoid.pause_min", "500ms")
	v.SetDefault("browser.humanoid.pause_max", "1500ms")
	v.SetDefault("browser.humanoid.focus_pause", "500ms")
	v.SetDefault("browser.humanoid.key_delay_min", "50ms")
	v.SetDefault("browser.humanoid.key_delay_max", "150ms")
	v.SetDefault("browser.humanoid.post_entry_min", "1s")
	v.SetDefault("browser.humanoid.post_entry_max", "2s")
}

// Validate rejects unbounded or zero-variance ranges.
func (h *HumanoidConfig) Validate() error {
	if h.ScrollMaxPx <= 0 {
		return fmt.Errorf("scroll_max_px must be positive")
	}
	if h.FocusPause < 0 {
		return fmt.Errorf("focus_pause must not be negative")
	}
	ranges := []struct {
		name     string
		min, max time.Duration
	}{
		{"pause", h.PauseMin, h.PauseMax},
		{"key_delay", h.KeyDelayMin, h.KeyDelayMax},
		{"post_entry", h.PostEntryMin, h.PostEntryMax},
	}
	for _, r := range ranges {
		if r.min < 0 {
			return fmt.Errorf("%s_min must not be negative", r.name)
		}
		if r.max <= r.min {
			return fmt.Errorf("%s_max must be greater than %s_min", r.name, r.name)
		}
	}
	return nil
}
