package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"togglbot/internal/bot"
	"togglbot/internal/config"
	"togglbot/internal/gemini"
	"togglbot/internal/server"
	"togglbot/internal/session"
	"togglbot/internal/telegram"
	"togglbot/internal/toggl"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "togglbot",
		Short: "Telegram time-tracking assistant for Toggl",
		Long:  "Togglbot receives Telegram webhook updates and turns text and voice messages into Toggl time entries, using Gemini for transcription and intent extraction.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.togglbot/config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(setWebhookCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config, TOGGLBOT_CONFIG,
// or the default location.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("TOGGLBOT_CONFIG"); p != "" {
		return p
	}
	return config.DefaultConfigPath()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long:  "Loads configuration, registers the Telegram webhook (unless APP_ENV=development), and serves updates until SIGINT/SIGTERM.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	logger = newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, err := session.NewStore(cfg.Session.DBPath, logger)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer sessions.Close()

	tg, err := telegram.New(telegram.Config{
		Token:     cfg.Telegram.Token,
		ParseMode: cfg.Telegram.ParseMode,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	// Keep serving even if registration fails: the webhook may already be
	// registered out-of-band.
	if cfg.Env == "development" {
		logger.Info("development mode, skipping webhook registration")
	} else if err := tg.RegisterWebhook(cfg.Telegram.WebhookURL); err != nil {
		logger.Error("webhook registration failed", "url", cfg.Telegram.WebhookURL, "err", err)
	} else {
		logger.Info("webhook registered", "url", cfg.Telegram.WebhookURL)
	}

	ai := gemini.New(gemini.Config{
		APIBase: cfg.Gemini.APIBase,
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		Logger:  logger,
	})

	dispatcher := bot.New(bot.Options{
		Tracker: toggl.New(toggl.Config{
			APIBase: cfg.Toggl.APIBase,
			APIKey:  cfg.Toggl.APIKey,
			Logger:  logger,
		}),
		Speech:   ai,
		Intents:  ai,
		Sessions: sessions,
		Msgr:     tg,
		Logger:   logger,
	})

	srv := server.New(server.Config{
		Port:       cfg.Server.Port,
		Path:       cfg.Server.WebhookPath,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	logger.Info("togglbot started", "version", version, "bot", tg.Username())
	return srv.Start(ctx)
}

func setWebhookCmd() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "set-webhook",
		Short: "Register (or remove) the Telegram webhook manually",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			tg, err := telegram.New(telegram.Config{
				Token:     cfg.Telegram.Token,
				ParseMode: cfg.Telegram.ParseMode,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			if remove {
				if err := tg.DeleteWebhook(); err != nil {
					return fmt.Errorf("delete webhook: %w", err)
				}
				logger.Info("webhook removed")
				return nil
			}
			if err := tg.RegisterWebhook(cfg.Telegram.WebhookURL); err != nil {
				return fmt.Errorf("set webhook: %w", err)
			}
			logger.Info("webhook registered", "url", cfg.Telegram.WebhookURL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the webhook registration instead")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(config.Sanitize(cfg))
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
