package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ideaengine/ideaengine/internal/database"
	"github.com/ideaengine/ideaengine/internal/logging"
	"github.com/ideaengine/ideaengine/internal/rebalance"
	"github.com/ideaengine/ideaengine/pkg/config"
)

var reclusterCmd = &cobra.Command{
	Use:   "recluster",
	Short: "Run one rebalance pass over every level-1 topic",
	Run: func(cmd *cobra.Command, args []string) {
		runRecluster()
	},
}

func init() {
	rootCmd.AddCommand(reclusterCmd)
}

func runRecluster() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.InitSchema(); err != nil {
		fmt.Fprintf(os.Stderr, "error initializing schema: %v\n", err)
		os.Exit(1)
	}

	job := rebalance.New(db, &cfg.Topic)
	result, err := job.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "recluster error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("topics_refreshed: %d\n", result.TopicsRefreshed)
}
