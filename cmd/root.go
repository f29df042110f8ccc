package cmd

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "sass-sync",
	Short:         "Marketplace seller data synchronization daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}
