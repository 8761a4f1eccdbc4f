// Copyright 2026 The Pairchat Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/pairchat/pairchat/account"
	"github.com/pairchat/pairchat/identity"
	"github.com/pairchat/pairchat/lib/clock"
	"github.com/pairchat/pairchat/lib/config"
	"github.com/pairchat/pairchat/lib/sqlitepool"
	"github.com/pairchat/pairchat/pairing"
	"github.com/pairchat/pairchat/server"
	"github.com/pairchat/pairchat/transcript"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath       string
		listenAddress    string
		databasePath     string
		hubURL           string
		createKey        string
		observerInterval time.Duration
	)

	flag.StringVar(&configPath, "config", os.Getenv("PAIRCHAT_CONFIG"), "path to the YAML configuration file")
	flag.StringVar(&listenAddress, "listen", "", "TCP listen address (overrides config)")
	flag.StringVar(&databasePath, "db", "", "SQLite database path (overrides config)")
	flag.StringVar(&hubURL, "hub-url", "", "JupyterHub API base URL (overrides config)")
	flag.StringVar(&createKey, "create-key", "", "shared secret for account creation (overrides config)")
	flag.DurationVar(&observerInterval, "observer-interval", 0, "observer snapshot interval (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if listenAddress != "" {
		cfg.Listen = listenAddress
	}
	if databasePath != "" {
		cfg.Database.Path = databasePath
	}
	if hubURL != "" {
		cfg.Hub.URL = hubURL
	}
	if createKey != "" {
		cfg.Accounts.CreateKey = createKey
	}
	if observerInterval > 0 {
		cfg.Observer.Interval = observerInterval
	}

	if cfg.Hub.URL == "" {
		return fmt.Errorf("hub URL is required (--hub-url or hub.url in the config file)")
	}
	if cfg.Accounts.CreateKey == "" {
		return fmt.Errorf("create key is required (--create-key or accounts.create_key in the config file)")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			if err := sqlitex.ExecuteScript(conn, transcript.Schema, nil); err != nil {
				return err
			}
			return sqlitex.ExecuteScript(conn, account.Schema, nil)
		},
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	transcripts := transcript.NewSQLiteStore(pool, logger)
	accounts := account.NewStore(pool, logger)

	verifier, err := identity.NewHubVerifier(identity.HubVerifierConfig{
		URL:          cfg.Hub.URL,
		AllowedGroup: string(account.GroupExperimental),
		Directory:    accounts,
		Timeout:      cfg.Hub.Timeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	registry := pairing.NewRegistry()
	engine := pairing.NewEngine(pairing.EngineConfig{
		Registry: registry,
		Store:    transcripts,
		Logger:   logger,
	})
	broadcaster := pairing.NewBroadcaster(pairing.BroadcasterConfig{
		Registry: registry,
		Engine:   engine,
		Store:    transcripts,
		Logger:   logger,
	})
	feed := pairing.NewObserverFeed(engine, clock.Real(), cfg.Observer.Interval, logger)

	mux := http.NewServeMux()
	server.NewSocketHandler(server.SocketHandlerConfig{
		Verifier:    verifier,
		Engine:      engine,
		Broadcaster: broadcaster,
		Feed:        feed,
		Clock:       clock.Real(),
		Logger:      logger,
	}).Register(mux)
	account.NewHandler(account.HandlerConfig{
		Store:     accounts,
		Resolver:  verifier,
		CreateKey: cfg.Accounts.CreateKey,
		Clock:     clock.Real(),
		Logger:    logger,
	}).Register(mux)

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Address: cfg.Listen,
		Handler: mux,
		Logger:  logger,
	})

	logger.Info("pairchat server starting",
		"listen", cfg.Listen,
		"database", cfg.Database.Path,
		"hub_url", cfg.Hub.URL,
	)

	err = httpServer.Serve(ctx)

	// Let in-flight transcript appends land before the pool closes.
	broadcaster.Flush()
	return err
}
