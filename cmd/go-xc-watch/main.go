// go-xc-watch is a local daemon for watching Xtream-Codes IPTV content:
// it serves a REST API over the provider's catalog and drives the web
// player's video element through a websocket bridge.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/opd-ai/go-xc-watch/internal/catalog"
	"github.com/opd-ai/go-xc-watch/internal/credstore"
	"github.com/opd-ai/go-xc-watch/internal/server"
	"github.com/opd-ai/go-xc-watch/internal/xtream"
	"github.com/opd-ai/go-xc-watch/pkg/config"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var (
		configPath  string
		showVersion bool
		probe       bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.BoolVar(&probe, "probe", false, "authenticate and walk the catalog, then exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("go-xc-watch %s\n", Version)
		return
	}

	if err := run(configPath, probe); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, probe bool) error {
	cfg, err := loadOrInitConfig(configPath)
	if err != nil {
		return err
	}
	if cfg == nil {
		// First run: a default config was written for the user to edit.
		return nil
	}

	logger := setupLogger(&cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting go-xc-watch", "version", Version)

	store, err := credstore.New(&cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer store.Close()

	newBackend := func(creds xtream.Credentials) server.Backend {
		return xtream.New(creds, &cfg.Xtream, logger)
	}

	if probe {
		return runProbe(cfg, store, newBackend, logger)
	}

	srv := server.New(&cfg.Server, &cfg.Playback, store, newBackend, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}

// loadOrInitConfig loads the config file, writing a commented default and
// returning nil on first run.
func loadOrInitConfig(configPath string) (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.WriteDefault(configPath); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		fmt.Printf("Wrote default configuration to %s - edit it and run again.\n", configPath)
		return nil, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func setupLogger(cfg *config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.GetLogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// runProbe is a connectivity check: authenticate, then walk every category
// of all three content kinds and report stream counts.
func runProbe(cfg *config.Config, store *credstore.Store, newBackend server.BackendFactory, logger *slog.Logger) error {
	creds := xtream.Credentials{
		ServerURL:   cfg.Xtream.ServerURL,
		Username:    cfg.Xtream.Username,
		Password:    cfg.Xtream.Password,
		DisplayName: cfg.Xtream.DisplayName,
	}
	if creds.ServerURL == "" || creds.Username == "" {
		saved, err := store.Get()
		if err != nil {
			return fmt.Errorf("failed to read saved login: %w", err)
		}
		if saved == nil {
			return fmt.Errorf("no credentials available: set xtream.* in the config or log in through the API first")
		}
		creds = saved.Credentials
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Printf("Probing %s as %s\n", creds.ServerURL, creds.Username)

	backend := newBackend(creds)
	account, err := backend.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if !account.Authenticated {
		return fmt.Errorf("credentials rejected by provider (status %q)", account.Status)
	}
	fmt.Printf("Authenticated: status=%s max_connections=%d trial=%v\n",
		account.Status, account.MaxConnections, account.Trial)

	svc := catalog.New(backend, logger)

	for _, kind := range []xtream.Kind{xtream.KindLive, xtream.KindVod, xtream.KindSeries} {
		categories, err := svc.Categories(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to list %s categories: %w", kind, err)
		}

		bar := progressbar.Default(int64(len(categories)-1), fmt.Sprintf("Walking %s categories", kind))
		total := 0
		for _, category := range categories {
			if category.ID == "" {
				// Synthetic All entry, already covered by the real ones.
				continue
			}
			items, err := svc.Streams(ctx, kind, category.ID)
			if err != nil {
				return fmt.Errorf("failed to list %s streams in %q: %w", kind, category.Name, err)
			}
			total += len(items)
			bar.Add(1)
		}
		bar.Finish()

		fmt.Printf("%s: %d categories, %d streams\n", kind, len(categories)-1, total)
	}

	return nil
}
