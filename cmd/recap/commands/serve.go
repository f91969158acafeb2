package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/recap/pkg/recap/channels"
	"github.com/jholhewres/recap/pkg/recap/scheduler"
	"github.com/jholhewres/recap/pkg/recap/store"
	"github.com/jholhewres/recap/pkg/recap/summary"
)

// newServeCmd creates the `recap serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the recording and summarization daemon",
		Long: `Start Recap as a daemon service, ingesting chat events from the
registered channels and answering summarize commands.

Examples:
  recap serve
  recap serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// ── Configure logger ──
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)

	// ── Open record store ──
	records, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening record store: %w", err)
	}
	defer records.Close()

	// ── Create assistant ──
	assistant, err := summary.New(cfg, records, logger)
	if err != nil {
		return fmt.Errorf("creating assistant: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Scheduler ──
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(
			func(ctx context.Context, job *scheduler.Job) (string, error) {
				return assistant.Orchestrator().SummarizeWindow(ctx, job.Session, job.Window)
			},
			func(ctx context.Context, job *scheduler.Job, text string) error {
				out := &channels.OutgoingMessage{Kind: channels.ReplyText, Content: text}
				return assistant.ChannelManager().Send(ctx, job.Channel, job.ChatID, out)
			},
			logger,
		)

		for _, jc := range cfg.Scheduler.Jobs {
			if _, err := sched.Add(scheduler.Job{
				Schedule: jc.Schedule,
				Session:  jc.Session,
				Window:   jc.Window,
				Channel:  jc.Channel,
				ChatID:   jc.ChatID,
			}); err != nil {
				logger.Error("failed to register recap job", "error", err)
			}
		}

		if err := sched.AddMaintenance("@every 1m", assistant.Orchestrator().Pending().Prune); err != nil {
			logger.Error("failed to register maintenance job", "error", err)
		}
	}

	// ── Start ──
	if err := assistant.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	if sched != nil {
		sched.Start(ctx)
	}

	logger.Info("Recap running. Press Ctrl+C to stop.",
		"trigger_prefix", cfg.TriggerPrefix,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	// Graceful shutdown with timeout.
	done := make(chan struct{})
	go func() {
		if sched != nil {
			sched.Stop()
		}
		assistant.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}

// resolveConfig loads config from an explicit path or standard locations.
func resolveConfig(cmd *cobra.Command) (*summary.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := summary.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := summary.FindConfigFile(); found != "" {
		cfg, err := summary.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	slog.Warn("no configuration file found, using defaults")
	return summary.DefaultConfig(), nil
}
