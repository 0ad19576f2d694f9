package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yeisme/tmvault/pkg/configs"
	mq "github.com/yeisme/tmvault/pkg/internal/storage/mq"
	"github.com/yeisme/tmvault/pkg/log"
	"github.com/yeisme/tmvault/pkg/queue"
)

var (
	mqCmd = &cobra.Command{
		Use:     "mq",
		Short:   "Message queue carrying presence and sync events",
		Aliases: []string{"messagequeue"},
	}

	mqListCmd = &cobra.Command{
		Use:     "list",
		Short:   "list all registered mq types",
		Aliases: []string{"ls", "l"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Registered mq types:")
			for _, t := range mq.RegisteredTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), "   - "+string(t))
			}
		},
	}

	mqTailCmd = &cobra.Command{
		Use:   "tail [topic...]",
		Short: "print events as they arrive; defaults to sync and trash topics",
		Example: "  tmvault mq tail tv.presence.file.42\n" +
			"  tmvault mq tail tv.sync.conflict",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configs.InitConfig(configPath); err != nil {
				return err
			}

			log.Init()

			topics := args
			if len(topics) == 0 {
				topics = append([]string{queue.TopicTrashPurged}, queue.SyncTopics...)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := mq.New(ctx, &configs.GetConfig().MQ)
			if err != nil {
				return fmt.Errorf("open mq: %w", err)
			}
			defer client.Close()

			out := make(chan string)

			for _, topic := range topics {
				ch, err := client.Subscribe(ctx, topic)
				if err != nil {
					return fmt.Errorf("subscribe %s: %w", topic, err)
				}

				go func() {
					for m := range ch {
						line := topic + " " + string(m.Payload)
						m.Ack()

						select {
						case out <- line:
						case <-ctx.Done():
							return
						}
					}
				}()
			}

			for {
				select {
				case line := <-out:
					fmt.Fprintln(cmd.OutOrStdout(), line)
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
)

// registerMQCommands 注册 MQ 相关命令.
func registerMQCommands() {
	rootCmd.AddCommand(mqCmd)
	mqCmd.AddCommand(mqListCmd, mqTailCmd)
}
