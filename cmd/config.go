// File: cmd/config.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/panelkeeper/internal/config"
)

func newConfigCmd(v *viper.Viper) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as YAML, without credentials or tokens",
		Long: `Print the merged configuration as YAML, without credentials or tokens.

login.recovery_path defaults to /dashboard. Panels that land on an account-specific
page after login (for example /servers/<id>) should set it in the config file or
through PANELKEEPER_LOGIN_RECOVERY_PATH.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Decode(v)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			return enc.Close()
		},
	})
	return configCmd
}
