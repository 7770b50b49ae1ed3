package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dimeagent/internal/chat"
	"dimeagent/internal/config"
	"dimeagent/internal/domain"
	"dimeagent/internal/extractor"
	"dimeagent/internal/imessage"
	"dimeagent/internal/ledger"
	"dimeagent/internal/metrics"
	"dimeagent/internal/notify"
	"dimeagent/internal/pipeline"
	"dimeagent/internal/server"
	"dimeagent/internal/source"
	"dimeagent/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "dimeagent",
		Short: "Dime agent: receipt ingestion over iMessage",
		Long:  "Dime agent watches a message thread for receipt photos, extracts purchase data, and records transactions for the Dime finance backend.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.dimeagent/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Println("Edit the config, export GEMINI_API_KEY, then run 'dimeagent run'.")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the agent (poll loop + control API)",
		Long:  "Polls the configured message source for receipt images and chat questions. Press Ctrl+C to stop.",
		RunE:  runAgent,
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err = buildLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.Store.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	provider, notifier, cleanup, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	src := source.New(source.Config{
		Provider:       provider,
		MonitoredPhone: cfg.Source.MonitoredPhone,
		MessageLimit:   cfg.Source.MessageLimit,
		Logger:         logger,
	})
	seedIDs, err := st.GetProcessedMessageIDs(ctx)
	if err != nil {
		return fmt.Errorf("seed seen cache: %w", err)
	}
	src.Seed(seedIDs)

	gemini := extractor.NewGemini(extractor.GeminiConfig{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.Model,
		Policy: extractor.RetryPolicy{
			MaxRetries: cfg.Gemini.MaxRetries,
			Delay:      time.Duration(cfg.Gemini.RetryDelaySeconds) * time.Second,
		},
		Logger: logger,
	})

	categories := ledger.DefaultCategoryMap()
	if cfg.Ledger.CategoryMapPath != "" {
		categories, err = ledger.LoadCategoryMap(cfg.Ledger.CategoryMapPath)
		if err != nil {
			return fmt.Errorf("load category map: %w", err)
		}
	}
	ledgerClient := ledger.NewClient(cfg.Ledger.URL, ledger.NewBuilder(categories), logger)

	chatClient := chat.NewClient(cfg.Chat.BackendURL, cfg.Chat.UserID, logger)

	collector := metrics.NewCollector()

	api := server.New(server.Config{
		Host:      cfg.API.Host,
		Port:      cfg.API.Port,
		Notifier:  notifier,
		Collector: collector,
		Logger:    logger,
	})
	go func() {
		if err := api.Start(ctx); err != nil {
			logger.Error("control API error", "err", err)
		}
	}()

	printStartupReport(ctx, st, cfg)

	p := pipeline.New(pipeline.Config{
		Source:    src,
		Store:     st,
		Extractor: gemini,
		Ledger:    ledgerClient,
		Chat:      chatClient,
		Notifier:  notifier,
		Interval:  time.Duration(cfg.General.PollIntervalSeconds) * time.Second,
		Collector: collector,
		Logger:    logger,
	})
	p.Run(ctx)

	logger.Info("shutdown complete")
	return nil
}

// buildProvider wires the configured message provider and its matching
// notifier. The returned cleanup closes provider resources.
func buildProvider(cfg *config.Config) (source.Provider, domain.Notifier, func(), error) {
	switch cfg.Source.Provider {
	case "imessage":
		client, err := imessage.Open(cfg.Source.ChatDBPath, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open chat.db: %w", err)
		}
		return source.NewIMessageProvider(client), notify.NewIMessage(client, logger), func() { client.Close() }, nil
	case "telegram":
		bot, err := tgbotapi.NewBotAPI(cfg.Source.Telegram.Token)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("telegram auth: %w", err)
		}
		return source.NewTelegramProvider(bot, logger), notify.NewTelegram(bot, logger), func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown provider %q", cfg.Source.Provider)
	}
}

// buildLogger applies the configured level and optional log file.
func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// printStartupReport logs what the store already knows so a restart is
// visibly not a cold start.
func printStartupReport(ctx context.Context, st *store.Store, cfg *config.Config) {
	total, err := st.GetTotalSpending(ctx)
	if err != nil {
		logger.Warn("startup report unavailable", "err", err)
		return
	}
	recent, _ := st.GetRecentTransactions(ctx, 5)
	failures, _ := st.FailureCount(ctx)

	logger.Info("agent starting",
		"version", version,
		"provider", cfg.Source.Provider,
		"monitored", cfg.Source.MonitoredPhone,
		"total_spending", fmt.Sprintf("%.2f", total),
		"recent_transactions", len(recent),
		"dead_letters", failures)
	for _, tx := range recent {
		logger.Info("recent transaction",
			"merchant", tx.Merchant.Name,
			"total", tx.Details.Total,
			"processed_at", tx.ProcessedAt.Format(time.RFC3339))
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored totals and recent transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			st, err := store.New(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			ctx := context.Background()
			total, err := st.GetTotalSpending(ctx)
			if err != nil {
				return err
			}
			recent, err := st.GetRecentTransactions(ctx, 10)
			if err != nil {
				return err
			}
			failures, err := st.FailureCount(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Database:        %s\n", cfg.Store.DBPath)
			fmt.Printf("Total spending:  $%.2f\n", total)
			fmt.Printf("Dead letters:    %d\n", failures)
			fmt.Printf("Recent transactions:\n")
			if len(recent) == 0 {
				fmt.Println("  (none)")
			}
			for _, tx := range recent {
				fmt.Printf("  %s  %-24s $%8.2f  %s\n",
					tx.ProcessedAt.Format("2006-01-02 15:04"),
					tx.Merchant.Name,
					tx.Details.Total,
					tx.Merchant.Category)
			}
			return nil
		},
	}
}
