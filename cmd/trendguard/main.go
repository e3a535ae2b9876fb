package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"trendguard/config"
	"trendguard/internal/api"
	inputredis "trendguard/internal/input/redis"
	"trendguard/internal/ledger"
	"trendguard/internal/logger"
	"trendguard/internal/pipeline"
	"trendguard/internal/queue"
	"trendguard/internal/respond"
	"trendguard/internal/rules"
	"trendguard/internal/scheduler"
	"trendguard/internal/store"
	"trendguard/internal/trends"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("trendguard.yml"); err == nil {
		return "trendguard.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "trendguard.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "trendguard.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.TrendGuard.Redis.Addr == "" {
		cfg.TrendGuard.Redis.Addr = "127.0.0.1:6379"
	}

	if cfg.TrendGuard.Input.Key == "" {
		cfg.TrendGuard.Input.Key = "classified_content"
	}
	if cfg.TrendGuard.Input.BlockTimeout == 0 {
		cfg.TrendGuard.Input.BlockTimeout = 5 * time.Second
	}
	if cfg.TrendGuard.Input.Workers <= 0 {
		cfg.TrendGuard.Input.Workers = 4
	}

	if cfg.TrendGuard.Store.Driver == "" {
		cfg.TrendGuard.Store.Driver = "postgres"
	}

	if cfg.TrendGuard.Trends.Period <= 0 {
		cfg.TrendGuard.Trends.Period = 5 * time.Minute
	}

	if cfg.TrendGuard.Ledger.KeyPrefix == "" {
		cfg.TrendGuard.Ledger.KeyPrefix = "trendguard:ledger"
	}

	if cfg.TrendGuard.Queue.KeyPrefix == "" {
		cfg.TrendGuard.Queue.KeyPrefix = "trendguard:queue"
	}
	if cfg.TrendGuard.Queue.ResponseWorkers <= 0 {
		cfg.TrendGuard.Queue.ResponseWorkers = 5
	}
	if cfg.TrendGuard.Queue.EscalationWorkers <= 0 {
		cfg.TrendGuard.Queue.EscalationWorkers = 3
	}
	if cfg.TrendGuard.Queue.ResponseAttempts <= 0 {
		cfg.TrendGuard.Queue.ResponseAttempts = 3
	}
	if cfg.TrendGuard.Queue.EscalationAttempts <= 0 {
		cfg.TrendGuard.Queue.EscalationAttempts = 2
	}
	if cfg.TrendGuard.Queue.StateWorkers <= 0 {
		cfg.TrendGuard.Queue.StateWorkers = 2
	}
	if cfg.TrendGuard.Queue.ContentStateAttempts <= 0 {
		cfg.TrendGuard.Queue.ContentStateAttempts = 5
	}
	if cfg.TrendGuard.Queue.BackoffBase <= 0 {
		cfg.TrendGuard.Queue.BackoffBase = time.Second
	}

	if cfg.TrendGuard.Respond.NotifyPerMinute <= 0 {
		cfg.TrendGuard.Respond.NotifyPerMinute = 60
	}

	if cfg.TrendGuard.API.Addr == "" {
		cfg.TrendGuard.API.Addr = ":8080"
	}

	if cfg.TrendGuard.Logging.Level == "" {
		cfg.TrendGuard.Logging.Level = "info"
	}
}

func loadConfigOrDie(configArg string) *config.Config {
	configPath := findConfigFile(configArg)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.TrendGuard.Logging.Enabled, cfg.TrendGuard.Logging.Level, cfg.TrendGuard.Logging.File, cfg.TrendGuard.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Infof("Config loaded from: %s", configPath)
	return cfg
}

func openStore(cfg *config.Config) (store.ContentStore, error) {
	switch cfg.TrendGuard.Store.Driver {
	case "postgres":
		return store.NewPostgresStore(cfg.TrendGuard.Store.DSN)
	case "memory":
		logger.Warnf("Using in-memory content store; data is lost on restart")
		return store.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.TrendGuard.Store.Driver)
	}
}

func loadEngine(cfg *config.Config) *rules.Engine {
	path := strings.TrimSpace(cfg.TrendGuard.Rules.Path)
	if path == "" {
		logger.Warnf("No escalation rules path configured; automated responses are disabled")
		return rules.NewEngine(nil)
	}
	loaded, stats, err := rules.LoadRuleSet(path)
	if err != nil {
		logger.Errorf("Failed to load escalation rules from %s: %v", path, err)
		log.Fatalf("Failed to load escalation rules: %v", err)
	}
	logger.Infof("Escalation rules loaded: active=%d skipped_invalid=%d disabled=%d files=%d",
		stats.Loaded, stats.SkippedInvalid, stats.SkippedDisabled, stats.TotalFiles)
	if stats.Loaded == 0 {
		logger.Warnf("No valid escalation rules loaded; automated responses are effectively disabled")
	}
	return rules.NewEngine(loaded)
}

func runServe(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}
	cfg := loadConfigOrDie(configArg)
	defer logger.Sync()

	logger.Infof("TrendGuard starting")

	contentStore, err := openStore(cfg)
	if err != nil {
		logger.Errorf("Failed to open content store: %v", err)
		log.Fatalf("Failed to open content store: %v", err)
	}

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         cfg.TrendGuard.Redis.Addr,
		Password:     cfg.TrendGuard.Redis.Password,
		DB:           cfg.TrendGuard.Redis.DB,
		Key:          cfg.TrendGuard.Input.Key,
		BlockTimeout: cfg.TrendGuard.Input.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create ingest consumer: %v", err)
		log.Fatalf("Failed to create ingest consumer: %v", err)
	}

	jobQueue, err := queue.NewRedisQueue(queue.RedisConfig{
		Addr:         cfg.TrendGuard.Redis.Addr,
		Password:     cfg.TrendGuard.Redis.Password,
		DB:           cfg.TrendGuard.Redis.DB,
		KeyPrefix:    cfg.TrendGuard.Queue.KeyPrefix,
		PollInterval: cfg.TrendGuard.Queue.PollInterval,
	})
	if err != nil {
		logger.Errorf("Failed to create job queue: %v", err)
		log.Fatalf("Failed to create job queue: %v", err)
	}

	trendLedger, err := ledger.NewRedisLedger(ledger.RedisConfig{
		Addr:       cfg.TrendGuard.Redis.Addr,
		Password:   cfg.TrendGuard.Redis.Password,
		DB:         cfg.TrendGuard.Redis.DB,
		KeyPrefix:  cfg.TrendGuard.Ledger.KeyPrefix,
		TrendTTL:   cfg.TrendGuard.Ledger.TrendTTL,
		WarningTTL: cfg.TrendGuard.Ledger.WarningTTL,
	})
	if err != nil {
		logger.Errorf("Failed to create trend ledger: %v", err)
		log.Fatalf("Failed to create trend ledger: %v", err)
	}

	reviewLanes, err := respond.NewRedisReviewLanes(respond.ReviewRedisConfig{
		Addr:     cfg.TrendGuard.Redis.Addr,
		Password: cfg.TrendGuard.Redis.Password,
		DB:       cfg.TrendGuard.Redis.DB,
	})
	if err != nil {
		logger.Errorf("Failed to create review lanes: %v", err)
		log.Fatalf("Failed to create review lanes: %v", err)
	}

	engine := loadEngine(cfg)

	var notifier respond.Notifier
	if cfg.TrendGuard.Respond.Webhook.URL != "" {
		notifier, err = respond.NewWebhookNotifier(respond.WebhookConfig{
			URL:       cfg.TrendGuard.Respond.Webhook.URL,
			Timeout:   cfg.TrendGuard.Respond.Webhook.Timeout,
			Headers:   cfg.TrendGuard.Respond.Webhook.Headers,
			PerMinute: cfg.TrendGuard.Respond.NotifyPerMinute,
		})
		if err != nil {
			logger.Errorf("Failed to create webhook notifier: %v", err)
			log.Fatalf("Failed to create webhook notifier: %v", err)
		}
		logger.Infof("Notify mode: webhook (%s)", cfg.TrendGuard.Respond.Webhook.URL)
	} else {
		notifier = respond.NewLogNotifier(cfg.TrendGuard.Respond.NotifyPerMinute)
		logger.Infof("Notify mode: log")
	}
	executor := respond.NewExecutor(contentStore, engine, jobQueue, reviewLanes, notifier, respond.Config{
		AutoActionThreshold: cfg.TrendGuard.Respond.AutoActionThreshold,
	})

	jobQueue.RegisterLane(queue.LaneConfig{
		Name:        respond.ResponseLane,
		Workers:     cfg.TrendGuard.Queue.ResponseWorkers,
		MaxAttempts: cfg.TrendGuard.Queue.ResponseAttempts,
		BackoffBase: cfg.TrendGuard.Queue.BackoffBase,
	}, executor.HandleResponse)
	jobQueue.RegisterLane(queue.LaneConfig{
		Name:        respond.EscalationLane,
		Workers:     cfg.TrendGuard.Queue.EscalationWorkers,
		MaxAttempts: cfg.TrendGuard.Queue.EscalationAttempts,
		BackoffBase: cfg.TrendGuard.Queue.BackoffBase,
	}, executor.HandleEscalation)
	jobQueue.RegisterLane(queue.LaneConfig{
		Name:        respond.ContentStateLane,
		Workers:     cfg.TrendGuard.Queue.StateWorkers,
		MaxAttempts: cfg.TrendGuard.Queue.ContentStateAttempts,
		BackoffBase: cfg.TrendGuard.Queue.BackoffBase,
	}, executor.HandleContentState)

	ingest := pipeline.New(consumer, contentStore, executor, cfg.TrendGuard.Input.Workers)

	aggregator := trends.NewAggregator(contentStore, trends.Config{
		Threshold:          cfg.TrendGuard.Trends.Threshold,
		Lookback:           cfg.TrendGuard.Trends.Lookback,
		ViralityEngagement: cfg.TrendGuard.Trends.ViralityEngagement,
		MinHashtagCount:    cfg.TrendGuard.Trends.MinHashtagCount,
		MinKeywordCount:    cfg.TrendGuard.Trends.MinKeywordCount,
		MinCrossPlatform:   cfg.TrendGuard.Trends.MinCrossPlatform,
	})
	sched := scheduler.New(aggregator, trendLedger, cfg.TrendGuard.Trends.Period, cfg.TrendGuard.Ledger.WarningTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	jobQueue.Start(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ingest.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Ingest pipeline error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	if cfg.TrendGuard.API.Enabled {
		apiServer := api.NewServer(api.Config{
			Addr:  cfg.TrendGuard.API.Addr,
			Debug: cfg.TrendGuard.API.Debug,
		}, trendLedger, engine, cfg.TrendGuard.Rules.Path, jobQueue, reviewLanes, contentStore)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Run(ctx); err != nil {
				logger.Errorf("Operator API error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	wg.Wait()

	if err := jobQueue.Close(); err != nil {
		logger.Errorf("Error closing job queue: %v", err)
	}
	if err := ingest.Close(); err != nil {
		logger.Errorf("Error closing ingest pipeline: %v", err)
	}
	if err := trendLedger.Close(); err != nil {
		logger.Errorf("Error closing trend ledger: %v", err)
	}
	if err := reviewLanes.Close(); err != nil {
		logger.Errorf("Error closing review lanes: %v", err)
	}
	if err := contentStore.Close(); err != nil {
		logger.Errorf("Error closing content store: %v", err)
	}

	logger.Infof("TrendGuard stopped")
}

// runScan runs one detection cycle against the configured store and writes
// the ranked trends as JSONL, without touching the ledger or the queue.
func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	output := fs.String("output", "output/trends.jsonl", "Trend JSONL output path")
	lookback := fs.Duration("lookback", 0, "Override the scan window (for example 6h)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := loadConfigOrDie(*configArg)
	defer logger.Sync()

	contentStore, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open content store: %v\n", err)
		return 1
	}
	defer contentStore.Close()

	trendsCfg := trends.Config{
		Threshold:          cfg.TrendGuard.Trends.Threshold,
		Lookback:           cfg.TrendGuard.Trends.Lookback,
		ViralityEngagement: cfg.TrendGuard.Trends.ViralityEngagement,
		MinHashtagCount:    cfg.TrendGuard.Trends.MinHashtagCount,
		MinKeywordCount:    cfg.TrendGuard.Trends.MinKeywordCount,
		MinCrossPlatform:   cfg.TrendGuard.Trends.MinCrossPlatform,
	}
	if *lookback > 0 {
		trendsCfg.Lookback = *lookback
	}

	detected, err := trends.NewAggregator(contentStore, trendsCfg).Detect(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "trend detection failed: %v\n", err)
		return 1
	}

	if err := writeJSONLines(*output, detected); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write trends: %v\n", err)
		return 1
	}

	fmt.Printf("scanned trends=%d output=%s\n", len(detected), *output)
	return 0
}

func writeJSONLines[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range rows {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "scan":
			os.Exit(runScan(os.Args[2:]))
		default:
			// Backward-compatible mode: first arg is config path.
			runServe(os.Args[1:])
			return
		}
	}

	runServe(nil)
}
