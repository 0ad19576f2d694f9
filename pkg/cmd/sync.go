package cmd

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yeisme/tmvault/pkg/internal/service"
	"github.com/yeisme/tmvault/pkg/internal/session"
	"github.com/yeisme/tmvault/pkg/internal/syncer"
)

var (
	syncUser string

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Synchronize files, folders and translation memories between stores",
	}
)

type syncOp func(s *service.SyncService, ctx context.Context, id int64) (*syncer.Report, error)

// newSyncCmd 构造一个按 id 执行同步操作的子命令.
func newSyncCmd(use, short string, op syncOp, aliases ...string) *cobra.Command {
	return &cobra.Command{
		Use:     use + " <id>",
		Short:   short,
		Aliases: aliases,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			mgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx := cliContext(cmd.Context(), mgr, currentUser(), session.ModeConnected)

			report, err := op(service.NewSyncService(ctx), ctx, id)
			if report != nil {
				if perr := printJSON(cmd, report); perr != nil {
					return perr
				}
			}

			return err
		},
	}
}

// currentUser --user 未指定时使用操作系统用户.
func currentUser() string {
	if syncUser != "" {
		return syncUser
	}

	if u, err := user.Current(); err == nil {
		return u.Username
	}

	return os.Getenv("USER")
}

// registerSyncCommands 注册同步命令.
func registerSyncCommands() {
	syncCmd.PersistentFlags().StringVarP(&syncUser, "user", "u", "", "user recorded on locks and sync events")

	syncCmd.AddCommand(
		newSyncCmd("download-file", "pull a central file into the local store", (*service.SyncService).DownloadFile, "download"),
		newSyncCmd("upload-file", "push a local file to the central store", (*service.SyncService).UploadFile, "upload"),
		newSyncCmd("merge-file", "synchronize a local file in both directions", (*service.SyncService).MergeFile, "merge"),
		newSyncCmd("download-folder", "pull a central folder subtree", (*service.SyncService).DownloadFolder),
		newSyncCmd("upload-folder", "push a local folder subtree", (*service.SyncService).UploadFolder),
		newSyncCmd("download-tm", "pull a central translation memory", (*service.SyncService).DownloadTM),
		newSyncCmd("upload-tm", "push a local translation memory", (*service.SyncService).UploadTM),
	)

	rootCmd.AddCommand(syncCmd)
}
