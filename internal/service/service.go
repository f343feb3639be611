// Package service реализует обработку входного потока пополнений.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/load-velocity/internal/instruction"
	"github.com/mmeshcher/load-velocity/internal/model"
	"github.com/mmeshcher/load-velocity/internal/stream"
)

const recordBuffer = 64

// Evaluator принимает решение по одному пополнению.
type Evaluator interface {
	Evaluate(load model.Load) model.Decision
}

// Source отдаёт входные записи по одной, io.EOF по окончании.
type Source interface {
	Next() (stream.Record, error)
}

// Sink принимает решения в порядке их получения.
type Sink interface {
	Write(d model.Decision) error
}

// Journal описывает контракт журнала решений.
type Journal interface {
	RecordDecision(ctx context.Context, entry model.JournalEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// Recorder описывает контракт сбора метрик запуска.
type Recorder interface {
	ObserveDecision(load model.Load, d model.Decision)
	ObserveMalformed()
	ObserveRun(d time.Duration)
}

// Options задаёт политику обработки.
type Options struct {
	// IgnoreDuplicates отключает запись решений по повторным пополнениям.
	IgnoreDuplicates bool
}

// Summary содержит итоги запуска.
type Summary struct {
	RunID      uuid.UUID
	Read       int
	Malformed  int
	Accepted   int
	Declined   int
	Duplicates int
	Written    int
	Skipped    int
}

// Service связывает чтение, разбор, проверку лимитов и запись решений.
type Service struct {
	limiter  Evaluator
	journal  Journal
	recorder Recorder
	logger   *zap.Logger
	opts     Options
}

// NewService создаёт сервис. journal и recorder могут быть nil.
func NewService(limiter Evaluator, journal Journal, recorder Recorder, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		limiter:  limiter,
		journal:  journal,
		recorder: recorder,
		logger:   logger,
		opts:     opts,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}

// Run обрабатывает все записи источника и пишет решения в sink в порядке чтения.
// Некорректные записи пропускаются; ошибки чтения, записи и журнала прерывают запуск.
func (s *Service) Run(ctx context.Context, src Source, sink Sink) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: uuid.New()}

	g, gctx := errgroup.WithContext(ctx)
	records := make(chan stream.Record, recordBuffer)

	g.Go(func() error {
		defer close(records)
		for {
			rec, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read instruction: %w", err)
			}

			select {
			case records <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		for rec := range records {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.process(gctx, rec, sink, &summary); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return summary, err
	}

	if s.journal != nil {
		if err := s.journal.Flush(ctx); err != nil {
			return summary, fmt.Errorf("flush journal: %w", err)
		}
	}

	if s.recorder != nil {
		s.recorder.ObserveRun(time.Since(start))
	}

	return summary, nil
}

func (s *Service) process(ctx context.Context, rec stream.Record, sink Sink, summary *Summary) error {
	summary.Read++

	load, err := parseRecord(rec)
	if err != nil {
		summary.Malformed++
		s.logger.Warn("skipping malformed instruction", zap.Int("line", rec.Line), zap.Error(err))
		if s.recorder != nil {
			s.recorder.ObserveMalformed()
		}
		return nil
	}

	d := s.limiter.Evaluate(load)

	switch {
	case d.Accepted:
		summary.Accepted++
	case d.Reason == model.ReasonDuplicate:
		summary.Duplicates++
	default:
		summary.Declined++
	}

	if s.recorder != nil {
		s.recorder.ObserveDecision(load, d)
	}

	if s.journal != nil {
		entry := model.JournalEntry{
			RunID:    summary.RunID,
			Seq:      int64(summary.Read),
			Load:     load,
			Decision: d,
		}
		if err := s.journal.RecordDecision(ctx, entry); err != nil {
			return fmt.Errorf("journal decision: %w", err)
		}
	}

	s.logger.Debug("load evaluated",
		zap.Int("line", rec.Line),
		zap.String("id", d.ID),
		zap.String("customerID", d.CustomerID),
		zap.Bool("accepted", d.Accepted),
		zap.String("reason", string(d.Reason)),
	)

	if d.Reason == model.ReasonDuplicate && s.opts.IgnoreDuplicates {
		summary.Skipped++
		return nil
	}

	if err := sink.Write(d); err != nil {
		return err
	}
	summary.Written++

	return nil
}

func parseRecord(rec stream.Record) (model.Load, error) {
	if rec.Err != nil {
		return model.Load{}, rec.Err
	}
	return instruction.Parse(rec.Data)
}
