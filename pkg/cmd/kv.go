package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/tmvault/pkg/configs"
	kv "github.com/yeisme/tmvault/pkg/internal/storage/kv"
	"github.com/yeisme/tmvault/pkg/log"
)

var (
	kvCmd = &cobra.Command{
		Use:     "kv",
		Short:   "Inspect the key-value store backing locks and presence",
		Aliases: []string{"keyvalue"},
	}

	kvListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list all registered kv types",
		Aliases: []string{"ls", "l"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered kv types:")
			for _, t := range kv.GetRegisteredKVTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), "   - "+string(t))
			}
		},
	}

	kvKeysCmd = &cobra.Command{
		Use:   "keys [pattern]",
		Short: "list keys matching a glob pattern, e.g. 'tv.lock.*'",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}

			return withKV(cmd.Context(), func(ctx context.Context, c *kv.Client) error {
				keys, err := c.Keys(ctx, pattern)
				if err != nil {
					return err
				}

				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}

				return nil
			})
		},
	}

	kvGetCmd = &cobra.Command{
		Use:   "get <key>",
		Short: "print the raw value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(cmd.Context(), func(ctx context.Context, c *kv.Client) error {
				v, err := c.Get(ctx, args[0])
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), string(v))

				return nil
			})
		},
	}

	kvLocksCmd = &cobra.Command{
		Use:   "locks",
		Short: "list record locks currently held",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			locks, err := mgr.Locks.List(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(cmd, locks)
		},
	}
)

// withKV 只打开 KV 存储，不连接数据库.
func withKV(ctx context.Context, fn func(context.Context, *kv.Client) error) error {
	if err := configs.InitConfig(configPath); err != nil {
		return err
	}

	log.Init()

	c, err := kv.NewKVClient(ctx, &configs.GetConfig().KV)
	if err != nil {
		return fmt.Errorf("open kv: %w", err)
	}
	defer c.Close()

	return fn(ctx, c)
}

// registerKVCommands 注册 KV 相关命令.
func registerKVCommands() {
	rootCmd.AddCommand(kvCmd)
	kvCmd.AddCommand(kvListCmd, kvKeysCmd, kvGetCmd, kvLocksCmd)
}
