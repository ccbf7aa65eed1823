package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appconfig "fundingflow/config"
	"fundingflow/internal/merge"
	"fundingflow/internal/notify"
	"fundingflow/internal/pipeline"
	"fundingflow/internal/reader/bybit"
	"fundingflow/internal/reader/okx"
	"fundingflow/internal/writer"
	"fundingflow/logger"
)

func main() {
	// Missing .env is fine; production injects real environment variables.
	_ = godotenv.Load()

	configPath := flag.String("config", "config/config.yml", "path to configuration file")
	flag.Parse()

	log := logger.GetLogger()

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Fatal("failed to configure logger")
	}

	env := appconfig.AppEnvironment()
	log.WithComponent("main").WithFields(logger.Fields{
		"name":        cfg.Fundingflow.Name,
		"version":     cfg.Fundingflow.Version,
		"environment": env,
	}).Info("starting fundingflow")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Logging.DashboardName != "" {
		region := cfg.Storage.S3.Region
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region != "" {
			if err := logger.InitCloudWatch(ctx, region); err != nil {
				log.WithComponent("main").WithError(err).Warn("cloudwatch metrics unavailable")
			}
		}
	}

	stopReporter := logger.StartReporter(15 * time.Minute)
	defer stopReporter()

	okxClient := okx.NewClient(cfg)
	bybitClient := bybit.NewClient(cfg)

	var uploader *writer.S3Uploader
	if cfg.Storage.S3.Enabled {
		uploader, err = writer.NewS3Uploader(ctx, cfg)
		if err != nil {
			log.WithComponent("main").WithError(err).Fatal("failed to initialise s3 uploader")
		}
	}

	deps := pipeline.RunnerDeps{
		OkxSnapshots:   okx.NewSnapshotReaderWithClient(okxClient),
		BybitSnapshots: bybit.NewSnapshotReaderWithClient(bybitClient),
		OkxHistory:     okx.NewHistoryReader(cfg, okxClient),
		BybitHistory:   bybit.NewHistoryReader(cfg, bybitClient),
		Merge:          merge.Rows,
		Workbook:       writer.NewWorkbookWriter(cfg),
		Series:         writer.NewSeriesWriter(cfg, uploader),
		Alert:          notify.NewChannel(cfg),
	}
	if cfg.Accounting.Enabled {
		deps.OkxFees = okx.NewBillsReader(cfg, okxClient)
		deps.BybitFees = bybit.NewExecutionReader(cfg, bybitClient)
	}

	runner := pipeline.NewRunner(cfg, deps)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithComponent("main").WithError(err).Error("pipeline stopped with error")
	}

	log.WithComponent("main").Info("fundingflow stopped")
}
