package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/tmvault/pkg/internal/storage/db"
)

var (
	dbCmd = &cobra.Command{
		Use:   "db",
		Short: "Database related commands",
	}

	dbListCmd = &cobra.Command{
		Use:   "ls",
		Short: "list all registered database types",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered database types:")
			for _, dbType := range db.GetRegisteredDBTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), " - "+string(dbType))
			}
		},
	}

	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "migrate the central and local stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "local store: migrated")

			if mgr.Central == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "central store: unreachable, skipped")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "central store: migrated")

			return nil
		},
	}
)

// registerDBCommands 注册数据库相关命令.
func registerDBCommands() {
	rootCmd.AddCommand(dbCmd)

	dbCmd.AddCommand(dbListCmd)
	dbCmd.AddCommand(dbMigrateCmd)
}
