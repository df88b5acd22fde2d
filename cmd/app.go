package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"settleflow/config"
	"settleflow/internal/aggregator"
	"settleflow/internal/cmegroup"
	"settleflow/internal/fetcher"
	"settleflow/internal/metrics"
	"settleflow/internal/settlement"
	"settleflow/internal/tradedate"
	"settleflow/internal/workbook"
	"settleflow/logger"
	"settleflow/writer"
)

// app is the wired set of components a command works with.
type app struct {
	cfg        *config.Config
	aggregator *aggregator.Aggregator
	recorder   *metrics.Recorder
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.GetLogger().WithComponent("main")

	fallback, err := settlement.ParseFallback(cfg.Ordering.Undated)
	if err != nil {
		return nil, err
	}
	calendar, err := tradedate.NewCalendar(cfg.Calendar.ExceptionDays)
	if err != nil {
		return nil, err
	}

	client := cmegroup.NewClient(cmegroup.Options{
		BaseURL:           cfg.Fetch.BaseURL,
		UserAgent:         cfg.Fetch.UserAgent,
		Headers:           cfg.Fetch.Headers,
		Timeout:           cfg.Fetch.Timeout,
		PageSize:          cfg.Fetch.PageSize,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Burst:             cfg.Fetch.BurstSize,
	})
	f := fetcher.New(client, fetcher.Options{
		MaxLookbackDays: cfg.Fetch.MaxLookbackDays,
		Fallback:        fallback,
		SnapshotDir:     cfg.Paths.TmpDir,
	})

	var cw *metrics.CloudWatch
	if cfg.Metrics.CloudWatch.Enabled {
		cw, err = metrics.NewCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
		if err != nil {
			log.WithError(err).Warn("CloudWatch metrics disabled")
			cw = nil
		}
	}
	recorder := metrics.NewRecorder(cw)

	opts := aggregator.Options{
		Sources:  cfg.Sources,
		Calendar: calendar,
		Report: aggregator.Report{
			DataTemplate:    cfg.Report.DataTemplate,
			SummaryTemplate: cfg.Report.SummaryTemplate,
			DataOutput:      filepath.Join(cfg.Paths.OutputDir, cfg.Report.DataOutput),
			SummaryOutput:   filepath.Join(cfg.Paths.OutputDir, cfg.Report.SummaryOutput),
			Timestamped:     cfg.Report.TimestampedOutputs,
		},
		Observer: recorder,
	}

	if cfg.Archive.Enabled {
		archiver, err := writer.NewArchiver(cfg.Paths.ArchiveDir, cfg.Archive.Compression)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		opts.Archiver = archiver
	}

	if cfg.Storage.S3.Enabled {
		publisher, err := writer.NewS3Publisher(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, fmt.Errorf("s3 publisher: %w", err)
		}
		opts.Publisher = publisher
	} else {
		log.Info("S3 storage disabled; artifacts stay local")
	}

	engine := workbook.NewEngine(workbook.Options{BackupTemplates: cfg.Report.BackupTemplates})

	return &app{
		cfg:        cfg,
		aggregator: aggregator.New(f, engine, opts),
		recorder:   recorder,
	}, nil
}
