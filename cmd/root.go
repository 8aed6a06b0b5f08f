// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/panelkeeper/internal/config"
	"github.com/xkilldash9x/panelkeeper/internal/observability"
)

const (
	envPrefix         = "PANELKEEPER"
	defaultConfigName = "panelkeeper"
)

// NewRootCommand builds the command tree. Running it without a subcommand performs
// one login attempt.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "panelkeeper",
		Short: "Panelkeeper logs into a web control panel behind an anti-bot challenge and reports the result.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any command, setting up config sources and logging.
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}

			var logCfg config.LoggerConfig
			if err := v.UnmarshalKey("logger", &logCfg); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: defaultConfigName})
				return fmt.Errorf("failed to read logger configuration: %w", err)
			}
			observability.InitializeLogger(logCfg)

			observability.GetLogger().Info("Starting panelkeeper", zap.String("version", Version))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./panelkeeper.yaml)")
	flags.Bool("headless", true, "run the browser without a visible window")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	// Flags only override the config file and env when explicitly set.
	_ = v.BindPFlag("browser.headless", flags.Lookup("headless"))
	_ = v.BindPFlag("logger.level", flags.Lookup("log-level"))

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(newLoginCmd(v))
	rootCmd.AddCommand(newConfigCmd(v))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the root command with ctx. The returned error has already been logged.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	// Use the logger if available, otherwise fall back to stderr.
	if logger := observability.GetLogger(); logger != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Command aborted", zap.Error(err))
		} else {
			logger.Error("Command execution failed", zap.Error(err))
		}
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	observability.Sync()
	return err
}

// initializeConfig layers defaults, an optional config file and PANELKEEPER_* env vars onto v.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars only.
	}
	return nil
}
