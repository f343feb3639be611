// Package main запускает пакетную проверку пополнений по лимитам.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/load-velocity/internal/config"
	"github.com/mmeshcher/load-velocity/internal/metrics"
	"github.com/mmeshcher/load-velocity/internal/repository"
	"github.com/mmeshcher/load-velocity/internal/service"
	"github.com/mmeshcher/load-velocity/internal/stream"
	"github.com/mmeshcher/load-velocity/internal/velocity"
)

const (
	metricsJob            = "load_velocity"
	journalConnectTimeout = 15 * time.Second
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		stop()
		logger.Sync()
		sugar.Fatalw("run failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	sugar := logger.Sugar()

	limiter, err := velocity.NewLimiter(cfg.Limits())
	if err != nil {
		return fmt.Errorf("create limiter: %w", err)
	}

	var journal service.Journal
	if cfg.DatabaseURI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, journalConnectTimeout)
		repo, err := repository.NewPostgresRepository(connectCtx, cfg.DatabaseURI)
		cancel()
		if err != nil {
			return fmt.Errorf("database initialization error: %w", err)
		}
		journal = repo
	}

	recorder := metrics.NewRecorder()

	svc := service.NewService(limiter, journal, recorder, logger, service.Options{
		IgnoreDuplicates: cfg.IgnoreDuplicates,
	})
	defer svc.Close()

	src, err := stream.Open(cfg.InputFile)
	if err != nil {
		return err
	}
	defer src.Close()

	sink, err := stream.Create(cfg.OutputFile)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sink.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	sugar.Infow("processing loads", "input", cfg.InputFile, "output", cfg.OutputFile)

	summary, err := svc.Run(ctx, src, sink)
	if err != nil {
		return err
	}

	if cfg.MetricsPushURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := recorder.Push(pushCtx, cfg.MetricsPushURL, metricsJob); err != nil {
			sugar.Warnw("metrics push failed", "error", err)
		}
	}

	sugar.Infow("all done",
		"runID", summary.RunID.String(),
		"read", summary.Read,
		"malformed", summary.Malformed,
		"accepted", summary.Accepted,
		"declined", summary.Declined,
		"duplicates", summary.Duplicates,
		"written", summary.Written,
	)

	return nil
}
