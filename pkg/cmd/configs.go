package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/yeisme/tmvault/pkg/configs"
)

// secretKeys 打印配置时需要遮盖的键.
var secretKeys = []string{"password", "dsn", "jwt", "nkey"}

const masked = "******"

var (
	reveal bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "inspect the effective configuration",
	}

	pathCmd = &cobra.Command{
		Use:   "path",
		Short: "print the config file in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitConfig(configPath); err != nil {
				return err
			}

			file := configs.GetViper().ConfigFileUsed()
			if file == "" {
				file = "(defaults and environment only)"
			}

			fmt.Fprintln(cmd.OutOrStdout(), file)

			return nil
		},
	}

	showCmd = &cobra.Command{
		Use:     "show",
		Short:   "print the effective config as JSON, secrets masked",
		Aliases: []string{"debug"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitConfig(configPath); err != nil {
				return err
			}

			v := configs.GetViper()
			if debug {
				v.Debug()
			}

			settings := v.AllSettings()
			if !reveal {
				maskSecrets(settings)
			}

			return printJSON(cmd, settings)
		},
	}
)

// maskSecrets 递归遮盖非空的敏感字段.
func maskSecrets(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			maskSecrets(val)
		case string:
			if val != "" && slices.Contains(secretKeys, k) {
				m[k] = masked
			}
		}
	}
}

func registerConfigsCommands() {
	showCmd.Flags().BoolVar(&reveal, "reveal", false, "print secrets in clear text")

	configCmd.AddCommand(pathCmd, showCmd)
	rootCmd.AddCommand(configCmd)
}
