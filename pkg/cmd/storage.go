package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yeisme/tmvault/pkg/configs"
	ctxPkg "github.com/yeisme/tmvault/pkg/context"
	"github.com/yeisme/tmvault/pkg/internal/session"
	"github.com/yeisme/tmvault/pkg/internal/storage"
	"github.com/yeisme/tmvault/pkg/log"
)

// openManager 加载配置并打开存储，两个库的迁移在打开时执行.
func openManager(ctx context.Context) (*storage.Manager, error) {
	if err := configs.InitConfig(configPath); err != nil {
		return nil, err
	}

	log.Init()

	return storage.New(ctx, configs.GetConfig())
}

// cliContext 返回带有存储管理器和命令行会话的 context.
func cliContext(ctx context.Context, mgr *storage.Manager, user string, mode session.Mode) context.Context {
	ctx = ctxPkg.WithStorageManager(ctx, mgr)

	return session.With(ctx, session.New("cli-"+uuid.NewString(), user, mode))
}

// printJSON 以缩进 JSON 输出结果.
func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(b))

	return nil
}
