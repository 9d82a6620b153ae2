package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set during build.
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "ideaengine",
	Short:   "Hierarchical topic-and-stance ingestion/retrieval engine",
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (not read: config is loaded from ./config.yaml, ~/.ideaengine/config.yaml or /etc/ideaengine)")
	rootCmd.PersistentFlags().String("log_level", "info", "log level (debug, info, warn, error; not read: the level comes from logging.level or LOG_LEVEL)")
}
