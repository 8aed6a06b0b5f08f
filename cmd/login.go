// File: cmd/login.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/panelkeeper/internal/browser"
	"github.com/xkilldash9x/panelkeeper/internal/config"
	"github.com/xkilldash9x/panelkeeper/internal/diagnostics"
	"github.com/xkilldash9x/panelkeeper/internal/login"
	"github.com/xkilldash9x/panelkeeper/internal/notify"
	"github.com/xkilldash9x/panelkeeper/internal/observability"
	"github.com/xkilldash9x/panelkeeper/internal/timing"
)

// Function variables replaced in tests.
var (
	launchBrowser = func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Page, error) {
		s, err := browser.Launch(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	newNotifier = func(cfg config.TelegramConfig, logger *zap.Logger) (login.Notifier, error) {
		return notify.NewTelegram(cfg, logger)
	}
	diagnosticsFs = afero.NewOsFs
)

func newLoginCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Run one login attempt and notify the operator of the result",
		Long: `Loads the panel's login page, waits out any anti-bot challenge, submits the
configured credentials and reports success or failure over Telegram. Failure
artifacts (screenshot and page markup) are written to diagnostics.dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, v)
		},
	}
}

func runLogin(cmd *cobra.Command, v *viper.Viper) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	notifier, err := newNotifier(cfg.Telegram, logger)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}
	sink := diagnostics.NewSink(diagnosticsFs(), cfg.Diagnostics.Dir, timing.Real(), logger)
	open := func(ctx context.Context) (browser.Page, error) {
		return launchBrowser(ctx, cfg.Browser, logger)
	}

	logger.Info("Starting login attempt", zap.String("target", cfg.Target.URL))
	outcome, err := login.New(cfg, open, notifier, sink, logger).Run(ctx)
	if err != nil {
		return fmt.Errorf("login attempt failed: %w", err)
	}

	logger.Info("Login attempt succeeded",
		zap.String("url", outcome.URL),
		zap.String("title", outcome.Title),
		zap.Bool("recovered", outcome.Recovered),
	)
	return nil
}
