package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmcdole/hddsync/internal/adapter"
	"github.com/mmcdole/hddsync/internal/adapter/mount"
	"github.com/mmcdole/hddsync/internal/adapter/notify"
	"github.com/mmcdole/hddsync/internal/adapter/source"
	"github.com/mmcdole/hddsync/internal/adapter/udev"
	"github.com/mmcdole/hddsync/internal/report"
	"github.com/mmcdole/hddsync/internal/service"
	"github.com/mmcdole/hddsync/internal/store"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var (
		showVersion bool
		configPath  string
		historyN    int
	)
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&configPath, "config", "", "path to config.yml")
	flag.IntVar(&historyN, "history", 0, "print the last N sync cycles and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("hddsync %s\n", Version)
		return
	}

	var err error
	if historyN > 0 {
		err = printHistory(configPath, historyN)
	} else {
		err = run(configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := adapter.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, closer, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("starting hddsync", "version", Version, "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Remote playlist
	playlist, err := source.NewPlaylistSource(&cfg.Emby, logger)
	if err != nil {
		return fmt.Errorf("failed to create playlist source: %w", err)
	}

	// Mount lifecycle
	platform, err := mount.NewPlatform(&cfg.Drive, logger)
	if err != nil {
		return fmt.Errorf("failed to create mount platform: %w", err)
	}
	mounter := mount.NewManager(platform, logger, mount.WithRetryInterval(cfg.Drive.UnmountRetry))

	notifier, err := notify.NewNotifier(&cfg.Mail, logger)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}

	history, err := store.OpenHistory(cfg.History.Path)
	if err != nil {
		// History is for operators only; keep syncing without it
		logger.Warn("cycle history unavailable", "path", cfg.History.Path, "error", err)
		history, _ = store.OpenHistory("")
	}
	defer history.Close()

	engine := service.NewEngine(
		playlist,
		store.NewStateStore(nil, logger),
		service.NewTransfer(nil, logger),
		service.SyncOptions{
			SourcePath: cfg.Drive.SourcePath,
			Policy:     service.Policy(cfg.Transfer.PartialFailure),
			DryRun:     cfg.Transfer.DryRun,
		},
		logger,
	)

	monitor := udev.NewMonitor(cfg.Drive.TargetUUID, logger)
	daemon := service.NewDaemon(monitor, mounter, engine, notifier, history, logger)

	if err := daemon.Run(ctx); err != nil {
		logger.Error("daemon stopped", "error", err)
		return err
	}

	logger.Info("shutting down")
	return nil
}

// printHistory renders the most recent cycles from the history database
func printHistory(configPath string, limit int) error {
	cfg, err := adapter.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.History.Path == "" {
		return fmt.Errorf("history is disabled (history.path is empty)")
	}

	history, err := store.OpenHistory(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer history.Close()

	results, err := history.Recent(limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	fmt.Print(report.RenderHistory(results))
	return nil
}
