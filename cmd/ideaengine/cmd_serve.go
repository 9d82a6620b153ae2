package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ideaengine/ideaengine/internal/api"
	"github.com/ideaengine/ideaengine/internal/database"
	"github.com/ideaengine/ideaengine/internal/logging"
	"github.com/ideaengine/ideaengine/internal/oracle"
	"github.com/ideaengine/ideaengine/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if err := cfg.EnsureConfigDir(); err != nil {
		fmt.Fprintf(os.Stderr, "error preparing config directory: %v\n", err)
		os.Exit(1)
	}

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

	o := oracle.NewHTTPOracle(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.ChatModel, cfg.Oracle.EmbedModel, cfg.Topic.EmbeddingDim)
	server := api.NewServer(db, o, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := server.StartWithContext(ctx, 10*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
