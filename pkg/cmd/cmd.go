// Package cmd contains the command line applications for the project.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "tmvault",
		Short: "Translation memory vault with central and local stores",
		Long: "tmvault serves translation files, rows and translation memories from a shared central store " +
			"and a per-user local store, and synchronizes between the two.",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "config file or directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "print verbose output")

	registerServeCommands()
	registerConfigsCommands()
	registerDBCommands()
	registerKVCommands()
	registerMQCommands()
	registerTrashCommands()
	registerSyncCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
