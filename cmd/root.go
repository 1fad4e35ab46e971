package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticket-bot/bot"
	"ticket-bot/config"
	"ticket-bot/events"
	"ticket-bot/handlers"
	"ticket-bot/lang"
	"ticket-bot/logging"
	"ticket-bot/scheduler"
	"ticket-bot/storage"
	"ticket-bot/transcript"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

const startupTimeout = 30 * time.Second

var errMissingToken = errors.New("no bot token configured")

var (
	configFile string
	envFile    string
	logLevel   string
	cleanup    bool
)

var rootCmd = &cobra.Command{
	Use:           "ticket-bot [flags]",
	Short:         "Discord support ticket bot",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a JSON or YAML config file")
	rootCmd.Flags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env when present)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level override (DEBUG, INFO, WARN, ERROR)")
	rootCmd.Flags().BoolVar(&cleanup, "cleanup", false, "remove slash commands on shutdown")
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errMissingToken) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

// loadEnv applies a .env file. An explicit path must exist; the default
// ./.env is optional.
func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func resolveLevel(flagLevel, cfgLevel string) (slog.Level, error) {
	if flagLevel != "" {
		return logging.ParseLevel(flagLevel)
	}
	return logging.ParseLevel(cfgLevel)
}

func openPublisher(cfg config.EventsConfig, logger *slog.Logger) (events.Publisher, error) {
	if cfg.AMQP.URL == "" {
		return events.Nop{}, nil
	}
	return events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, logger.With(logging.NameKey, "events"))
}

func shutdownMode(cfg config.ShutdownConfig) scheduler.ShutdownMode {
	if cfg.FlushDeletions {
		return scheduler.ShutdownFlush
	}
	return scheduler.ShutdownAbandon
}

func run(ctx context.Context, stderr io.Writer) error {
	if err := loadEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	level, err := resolveLevel(logLevel, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(stderr, level)
	slog.SetDefault(logger)

	if cfg.Discord.Token == "" {
		logger.Error("no bot token configured",
			"hint", "set BOT_TOKEN (or TICKETBOT_DISCORD_TOKEN) in the environment or a .env file")
		return errMissingToken
	}

	store, err := storage.Open(ctx, &cfg.Storage, logger.With(logging.NameKey, "storage"))
	if err != nil {
		return fmt.Errorf("open ticket store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close ticket store", tint.Err(err))
		}
	}()
	logger.Info("ticket store ready", "driver", cfg.Storage.Driver)

	msgs, err := lang.Load(cfg.Lang.Path, cfg.Lang.Active)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	loc, err := cfg.Tickets.Location()
	if err != nil {
		return err
	}

	publisher, err := openPublisher(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close event publisher", tint.Err(err))
		}
	}()

	b, err := bot.New(cfg, logger, level)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	sched := scheduler.New(logger.With(logging.NameKey, "scheduler"))
	h := handlers.New(handlers.Deps{
		Session:     b.Session,
		Store:       store,
		Transcripts: transcript.NewWriter(cfg.Tickets.TranscriptDir, loc, cfg.Tickets.TimestampLayout),
		Scheduler:   sched,
		Events:      publisher,
		Messages:    msgs,
		Config:      cfg,
		Logger:      logger,
	})
	h.Register(ctx, b.Session)

	if err := b.Start(); err != nil {
		if !errors.Is(err, bot.ErrInvalidToken) {
			return err
		}
		logger.Error("discord authentication failed", tint.Err(err),
			"hint", "check that BOT_TOKEN is the bot token from the Developer Portal, not the client secret or an expired token")
		logger.Info("waiting for a signal to exit, no reconnect will be attempted")
		<-ctx.Done()
		return nil
	}

	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	if _, err := b.RegisterCommands(startCtx, handlers.Commands()); err != nil {
		logger.Error("failed to register slash commands", tint.Err(err))
	}
	cancelStart()

	logger.Info("bot is running, press Ctrl+C to exit")
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
	defer cancel()
	if err := sched.Shutdown(shutdownCtx, shutdownMode(cfg.Shutdown)); err != nil {
		logger.Warn("pending channel deletions did not finish", tint.Err(err))
	}
	if cleanup {
		if err := b.CleanupCommands(shutdownCtx); err != nil {
			logger.Warn("failed to clean up slash commands", tint.Err(err))
		}
	}
	b.Stop()
	return nil
}
