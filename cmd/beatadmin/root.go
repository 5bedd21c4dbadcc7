package main

import (
	"github.com/spf13/cobra"

	"github.com/iliyamo/beat-license-registry/internal/config"
)

func newRootCommand() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "beatadmin",
		Short:         "Beat license registry admin tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return config.LoadDotEnv()
			}
			return config.LoadDotEnv(envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Environment file to load (default .env)")

	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newConsumeCommand())
	rootCmd.AddCommand(newHashKeyCommand())
	rootCmd.AddCommand(newTokenCommand())

	return rootCmd
}
