package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rewired-gh/oidelta/internal/config"
	"github.com/rewired-gh/oidelta/internal/cycle"
	"github.com/rewired-gh/oidelta/internal/logger"
	"github.com/rewired-gh/oidelta/internal/market"
	"github.com/rewired-gh/oidelta/internal/metrics"
	"github.com/rewired-gh/oidelta/internal/nse"
	"github.com/rewired-gh/oidelta/internal/report"
	"github.com/rewired-gh/oidelta/internal/storage"
	"github.com/rewired-gh/oidelta/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file (optional)")
	envPath    = flag.String("env", ".env", "Path to dotenv file (optional)")
	mode       = flag.String("mode", "", "Override run.mode: once or loop")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load %s: %v", *envPath, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *mode != "" {
		cfg.Run.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAgeDays); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("Configuration loaded (mode: %s, storage: %s)", cfg.Run.Mode, cfg.Storage.Backend)

	if err := run(cfg); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	store, err := storage.Open(ctx, storage.Options{
		Backend:  cfg.Storage.Backend,
		FilePath: cfg.Storage.FilePath,
		DBPath:   cfg.Storage.DBPath,
		Name:     cfg.Storage.Name,
		S3: storage.S3Options{
			Bucket:    cfg.Storage.S3.Bucket,
			Key:       cfg.Storage.S3.Key,
			Region:    cfg.Storage.S3.Region,
			Endpoint:  cfg.Storage.S3.Endpoint,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			PathStyle: cfg.Storage.S3.PathStyle,
		},
		Redis: storage.RedisOptions{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Key:      cfg.Storage.Redis.Key,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	source, err := nse.NewClient(nse.Options{
		BaseURL:           cfg.NSE.BaseURL,
		Symbol:            cfg.NSE.Symbol,
		Timeout:           cfg.NSE.Timeout,
		MaxRetries:        cfg.NSE.MaxRetries,
		RetryDelay:        cfg.NSE.RetryDelay,
		WarmUpDelay:       cfg.NSE.WarmUpDelay,
		RequestsPerSecond: cfg.NSE.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize NSE client: %w", err)
	}

	var telegramClient *telegram.Client
	var sink cycle.Sink = stdoutSink{}
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, telegram.Options{
			MaxRetries:     cfg.Telegram.MaxRetries,
			RetryDelayBase: cfg.Telegram.RetryDelay,
			ChunkSize:      cfg.Telegram.ChunkSize,
			ChunkDelay:     cfg.Telegram.ChunkDelay,
			APIEndpoint:    cfg.Telegram.APIEndpoint,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		defer telegramClient.Close()
		sink = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled, printing reports to stdout")
	}

	marketLoc, err := time.LoadLocation(cfg.Market.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load market timezone: %w", err)
	}
	hours, err := market.New(marketLoc, cfg.Market.Open, cfg.Market.Close, cfg.Market.Holidays)
	if err != nil {
		return fmt.Errorf("invalid market hours: %w", err)
	}

	selection, err := report.ParseSelection(cfg.Report.Selection)
	if err != nil {
		return err
	}
	reportLoc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load report timezone: %w", err)
	}
	assembler := report.NewAssembler(report.Options{
		Symbol:    cfg.NSE.Symbol,
		Source:    cfg.Report.Source,
		ATMRange:  cfg.Report.ATMRange,
		ATMMarker: cfg.Report.ATMMarker,
		Selection: selection,
		Location:  reportLoc,
	})

	rec := metrics.New()
	if cfg.Metrics.ListenAddr != "" && cfg.Run.Mode == "loop" {
		go func() {
			if err := rec.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				logger.Error("%v", err)
			}
		}()
	}

	runner := cycle.NewRunner(source, store, sink, hours, assembler, rec, cycle.Config{
		Force:        cfg.Market.Force,
		TopN:         cfg.Report.TopN,
		MessageDelay: cfg.Run.MessageDelay,
	})

	runCycle := func() error {
		cycleCtx, cycleCancel := context.WithTimeout(ctx, cfg.Run.Timeout)
		defer cycleCancel()
		_, err := runner.Run(cycleCtx)
		if pushErr := rec.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); pushErr != nil {
			logger.Warn("%v", pushErr)
		}
		return err
	}

	if cfg.Run.Mode == "once" {
		if err := runCycle(); err != nil {
			return fmt.Errorf("cycle failed: %w", err)
		}
		return nil
	}

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, runner.Status)
	}

	logger.Info("Starting OI tracker (interval: %v, top_n: %d, atm_range: %.0f, selection: %s)",
		cfg.Run.Interval, cfg.Report.TopN, cfg.Report.ATMRange, selection)

	ticker := time.NewTicker(cfg.Run.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		if err != nil {
			consecutiveFailures++
			logger.Error("Cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(ctx, err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return
		}
		if consecutiveFailures > 0 && telegramClient != nil {
			if sendErr := telegramClient.SendRecovery(ctx, consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
	}

	logger.Debug("Running initial cycle")
	handleCycleResult(runCycle())

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return nil

		case <-ticker.C:
			logger.Debug("Starting scheduled cycle")
			handleCycleResult(runCycle())
		}
	}
}

// stdoutSink prints reports when Telegram is disabled.
type stdoutSink struct{}

func (stdoutSink) Send(_ context.Context, text string) error {
	_, err := fmt.Fprintln(os.Stdout, text)
	return err
}
