package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"vocabot/internal/analysis"
	"vocabot/internal/bus"
	"vocabot/internal/channel"
	"vocabot/internal/config"
	"vocabot/internal/dispatch"
	"vocabot/internal/domain"
	"vocabot/internal/handler"
	"vocabot/internal/history"
	"vocabot/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	_ = godotenv.Load()
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "vocabot",
		Short: "Vocabot: WhatsApp voice note analysis bot",
		Long:  "Vocabot listens on WhatsApp, transcribes and summarizes voice notes with Gemini, and answers a small set of commands.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.vocabot/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot on a linked personal account (QR pairing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(func(cfg *config.Config) domain.Channel {
				return channel.NewWhatsmeow(channel.WhatsmeowChannelConfig{
					Config: cfg.Channels.Whatsmeow,
					Logger: logger,
				})
			})
		},
	}
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the bot against the Business Cloud API webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(func(cfg *config.Config) domain.Channel {
				return channel.NewCloudAPI(channel.CloudAPIChannelConfig{
					Config: cfg.Channels.CloudAPI,
					Logger: logger,
				})
			})
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func runBot(newChannel func(cfg *config.Config) domain.Channel) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.General.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	apiKey := cfg.Analysis.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	analyzer := analysis.NewGemini(analysis.GeminiConfig{
		APIKey: apiKey,
		Model:  cfg.Analysis.Model,
		Logger: logger,
	})
	if !analyzer.Available() {
		logger.Warn("no Gemini API key configured, media analysis is disabled")
	}

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.New(cfg.History.DBPath, logger)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer hist.Close()
	}

	states := store.NewStateStore()
	voices := store.NewVoiceCache()

	reg := dispatch.NewRegistry()
	handler.NewVoice(handler.VoiceConfig{
		Analyzer: analyzer,
		States:   states,
		Voices:   voices,
		History:  hist,
		Logger:   logger,
	}).Register(reg)
	handler.NewImage(handler.ImageConfig{
		Analyzer: analyzer,
		States:   states,
		History:  hist,
		Logger:   logger,
	}).Register(reg)
	handler.NewCommands(handler.CommandsConfig{
		Analyzer: analyzer,
		Voices:   voices,
		History:  hist,
		Prefix:   cfg.General.CommandPrefix,
		Logger:   logger,
	}).Register(reg)

	dispatcher := dispatch.New(dispatch.DispatcherConfig{
		Bus:         messageBus,
		Registry:    reg,
		Whitelist:   dispatch.NewWhitelist(cfg.Whitelist.Numbers, cfg.Whitelist.AllowAll),
		States:      states,
		Prefix:      cfg.General.CommandPrefix,
		Logger:      logger,
		Concurrency: cfg.General.MaxConcurrentMessages,
	})
	go dispatcher.Run(ctx)

	ch := newChannel(cfg)
	if err := ch.Start(ctx, messageBus); err != nil {
		return fmt.Errorf("start %s channel: %w", ch.Name(), err)
	}
	defer ch.Stop()

	logger.Info("vocabot running", "version", version, "channel", ch.Name())
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
