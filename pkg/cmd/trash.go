package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/yeisme/tmvault/pkg/internal/service"
)

var (
	trashCmd = &cobra.Command{
		Use:   "trash",
		Short: "Trash related commands",
	}

	trashPurgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "purge expired trash items from both stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			return printJSON(cmd, service.PurgeExpired(cmd.Context(), mgr, time.Now().UTC()))
		},
	}
)

// registerTrashCommands 注册回收站命令.
func registerTrashCommands() {
	rootCmd.AddCommand(trashCmd)
	trashCmd.AddCommand(trashPurgeCmd)
}
