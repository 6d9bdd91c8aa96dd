package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/mentionoracle/internal/config"
	"github.com/rewired-gh/mentionoracle/internal/kalshi"
	"github.com/rewired-gh/mentionoracle/internal/logger"
	"github.com/rewired-gh/mentionoracle/internal/metrics"
	"github.com/rewired-gh/mentionoracle/internal/research"
	"github.com/rewired-gh/mentionoracle/internal/stats"
	"github.com/rewired-gh/mentionoracle/internal/storage"
	"github.com/rewired-gh/mentionoracle/internal/telegram"
	"github.com/rewired-gh/mentionoracle/internal/transcripts"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

const usage = `Usage: mentionoracle [-config path] <command> [arguments]

Commands:
  run                                  periodic research loop (default)
  markets                              list open mention markets grouped by event
  analyze -ticker T [-quarters N] TERM...  mention statistics for terms in T's earnings calls
  edge HIT_RATE YES_PRICE NO_PRICE     expected value and edge of both sides
  kelly BANKROLL WIN_PCT [PRICE_CENTS] Kelly-criterion stake
  quarters [-years N]                  most recent completed fiscal quarters
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cmd, args := "run", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		runService()
		return
	case "markets":
		err = runMarkets(args)
	case "analyze":
		err = runAnalyze(args)
	case "edge":
		err = runEdge(args)
	case "kelly":
		err = runKelly(args)
	case "quarters":
		err = runQuarters(args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)
	return cfg
}

func openStorage(cfg *config.Config) *storage.Storage {
	store, err := storage.New(cfg.Storage.MaxMarkets, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	return store
}

func closeStorage(store *storage.Storage) {
	if err := store.Close(); err != nil {
		logger.Error("Failed to close storage: %v", err)
	}
}

func newKalshiClient(cfg *config.Config) *kalshi.Client {
	return kalshi.NewClient(
		cfg.Kalshi.APIURL,
		cfg.Kalshi.APIKey,
		cfg.Kalshi.Timeout,
		kalshi.ClientConfig{
			RateLimit:  cfg.Kalshi.RateLimit,
			Burst:      cfg.Kalshi.Burst,
			MaxRetries: cfg.Kalshi.MaxRetries,
			PageLimit:  cfg.Kalshi.PageLimit,
			MaxMarkets: cfg.Kalshi.MaxMarkets,
		},
	)
}

// newAnalyzer wires the transcript client behind the SQLite cache and the fan-out corpus.
func newAnalyzer(cfg *config.Config, store *storage.Storage, m *metrics.Metrics, quarters int) *stats.Analyzer {
	client := transcripts.NewClient(
		cfg.Transcripts.APIURL,
		cfg.Transcripts.APIKey,
		cfg.Transcripts.Timeout,
		transcripts.ClientConfig{
			RateLimit:  cfg.Transcripts.RateLimit,
			Burst:      cfg.Transcripts.Burst,
			MaxRetries: cfg.Transcripts.MaxRetries,
		},
	)
	cached := transcripts.NewCachedFetcher(client, store, cfg.Transcripts.CacheTTL)
	corpus := transcripts.NewCorpus(cached, cfg.Transcripts.MaxConcurrency, transcripts.WithMetrics(m))
	analyzer := stats.NewAnalyzer(corpus, quarters, cfg.Transcripts.MaxConcurrency)
	analyzer.SetContextWindow(cfg.Research.ContextWindow)
	return analyzer
}

func runService() {
	cfg := loadConfig()
	store := openStorage(cfg)
	defer closeStorage(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go func() {
			logger.Info("Serving metrics on %s/metrics", cfg.Metrics.ListenAddr)
			if err := m.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				logger.Error("Metrics server stopped: %v", err)
			}
		}()
	}

	opts := []research.Option{research.WithStore(store), research.WithMetrics(m)}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		var err error
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase, cfg.Research.TopK)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		telegramClient.SetOpportunitySource(store)
		telegramClient.ListenForCommands(ctx)
		opts = append(opts, research.WithNotifier(telegramClient))
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	researcher := research.New(
		newKalshiClient(cfg),
		newAnalyzer(cfg, store, m, cfg.Transcripts.QuartersBack),
		research.Config{
			MinEdge:        cfg.Research.MinEdge,
			MinQuarters:    cfg.Research.MinQuarters,
			TopK:           cfg.Research.TopK,
			Bankroll:       cfg.Research.Bankroll,
			NotifyCooldown: cfg.Research.NotifyCooldown,
		},
		opts...,
	)

	logger.Info("Starting research service (interval: %v, quarters: %d, min_edge: %.2f, min_quarters: %d)",
		cfg.Kalshi.PollInterval,
		cfg.Transcripts.QuartersBack,
		cfg.Research.MinEdge,
		cfg.Research.MinQuarters,
	)

	ticker := time.NewTicker(cfg.Kalshi.PollInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Research cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	runCycle := func() {
		_, err := researcher.RunCycle(ctx)
		handleCycleResult(err)
		housekeeping(store, cfg)
	}

	logger.Debug("Running initial research cycle")
	runCycle()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled research cycle")
			runCycle()
		}
	}
}

func housekeeping(store *storage.Storage, cfg *config.Config) {
	if err := store.RotateMarkets(); err != nil {
		logger.Warn("Failed to rotate markets: %v", err)
	}
	if err := store.PruneRuns(cfg.Research.KeepRuns); err != nil {
		logger.Warn("Failed to prune runs: %v", err)
	}
	if n, err := store.PurgeExpiredTranscripts(cfg.Transcripts.CacheTTL); err != nil {
		logger.Warn("Failed to purge transcript cache: %v", err)
	} else if n > 0 {
		logger.Debug("Purged %d expired transcripts", n)
	}
}
