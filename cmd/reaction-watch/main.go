// Copyright 2024-2026 Aiku AI

// Command reaction-watch is a Mattermost bot that relays reactions on
// watched posts. Reacting to a post with the thread-watch emoji makes the
// bot announce every future reaction in the post's thread; the dm-watch
// emoji delivers the announcements via direct message instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.mau.fi/util/dbutil"
	_ "go.mau.fi/util/dbutil/litestream"

	"github.com/aiku/reaction-watch/pkg/relay"
)

var (
	configPath   = flag.String("config", "config.yaml", "path to the config file")
	printExample = flag.Bool("example-config", false, "print the example config and exit")
)

func main() {
	flag.Parse()

	if *printExample {
		fmt.Print(relay.ExampleConfig)
		return
	}

	// A .env next to the binary may supply BOT_TOKEN.
	_ = godotenv.Load()

	cfg, err := relay.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := cfg.Logging.Compile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	db, err := dbutil.NewFromConfig("reaction-watch", cfg.Database,
		dbutil.ZeroLogger(log.With().Str("component", "database").Logger()))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open watch database")
	}
	defer func() {
		_ = db.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := relay.NewWatchStore(db)
	if err := store.Upgrade(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to upgrade watch database schema")
	}

	api := relay.NewClient(cfg.ServerURL, cfg.BotToken, *log)
	proc := relay.NewProcessor(api, store, cfg, *log)
	supervisor := relay.NewSupervisor(cfg, proc, *log)

	log.Info().Str("server_url", cfg.ServerURL).Msg("Starting reaction-watch")
	if err := supervisor.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Event loop failed")
	}
	log.Info().Msg("Shutdown complete")
}
