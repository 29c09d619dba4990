package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/chatterbet/chatterbet/internal/campaign"
	"github.com/chatterbet/chatterbet/internal/cluster"
	"github.com/chatterbet/chatterbet/internal/config"
	"github.com/chatterbet/chatterbet/internal/decision"
	"github.com/chatterbet/chatterbet/internal/edge"
	"github.com/chatterbet/chatterbet/internal/enrich"
	"github.com/chatterbet/chatterbet/internal/execution"
	"github.com/chatterbet/chatterbet/internal/llm"
	"github.com/chatterbet/chatterbet/internal/logger"
	"github.com/chatterbet/chatterbet/internal/markets"
	"github.com/chatterbet/chatterbet/internal/risk"
	"github.com/chatterbet/chatterbet/internal/social"
	"github.com/chatterbet/chatterbet/internal/storage"
	"github.com/chatterbet/chatterbet/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Secrets (API keys, tokens) come from the environment; a local .env is
	// a convenience, not a requirement.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to open storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	llmClient := llm.NewClient(llm.Options{
		BaseURL:           cfg.LLM.APIBaseURL,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		Timeout:           cfg.LLM.Timeout,
		MaxRetries:        cfg.LLM.MaxRetries,
		RetryDelayBase:    cfg.LLM.RetryDelayBase,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})

	socialClient := social.NewClient(cfg.Social.APIBaseURL, cfg.Social.BearerToken, cfg.Social.BotHandle, cfg.Social.Timeout)
	marketsClient := markets.NewClient(cfg.Markets.APIBaseURL, cfg.Markets.Timeout, cfg.Markets.CacheTTL)

	enricher := enrich.New(llmClient, cfg.Social.MinFollowers, cfg.Social.MinAccountAgeDays)
	clusterer := cluster.New(llmClient)
	scorer := edge.New(marketsClient, llmClient, cfg.Markets.TopN, cfg.Trading.SignalStrengthNorm)

	riskParams := risk.Params{
		Bankroll:            cfg.Trading.Bankroll,
		BasePositionPct:     cfg.Trading.BasePositionPct,
		MaxPositionPct:      cfg.Trading.MaxPositionPct,
		CashReservePct:      cfg.Trading.CashReservePct,
		MinPositionUSD:      cfg.Trading.MinPositionUSD,
		MaxOpenPositions:    cfg.Trading.MaxOpenPositions,
		DrawdownBreakerPct:  cfg.Trading.DrawdownBreakerPct,
		MaxThemeExposurePct: cfg.Trading.MaxThemeExposurePct,
		StopLossPercent:     cfg.Trading.StopLossPercent,
		TakeProfitMultiple:  cfg.Trading.TakeProfitMultiple,
	}
	decider := decision.New(llmClient, riskParams, cfg.Trading.MinEdgeScore, cfg.Trading.MinSignalsToAct)

	var executor campaign.Executor
	if cfg.Trading.Enabled {
		executor = execution.NewClient(cfg.Trading.ExecutionBaseURL, cfg.Trading.ExecutionAPIKey, cfg.Trading.Timeout)
		logger.Info("Trading enabled, orders will be submitted to %s", cfg.Trading.ExecutionBaseURL)
	} else {
		logger.Info("Trading disabled, running in paper mode")
	}

	var notifier campaign.Notifier
	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = telegramClient
		logger.Info("Telegram notifications enabled")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	camp, err := campaign.New(store, socialClient, enricher, clusterer, scorer, decider, executor, notifier, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize campaign: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	camp.Run(ctx)
}
