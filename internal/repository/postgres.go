// Package repository содержит журнал решений в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/load-velocity/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultBatchSize = 500

const insertDecision = `INSERT INTO load_decisions
	(run_id, seq, load_id, customer_id, amount, load_time, accepted, reason)
	VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
	ON CONFLICT (run_id, seq) DO NOTHING`

// PostgresRepository пишет решения запуска в таблицу load_decisions.
// Записи буферизуются и отправляются пакетами.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	pending     []model.JournalEntry
	batchSize   int
	retryDelays []time.Duration
}

// NewPostgresRepository подключается к журналу решений и применяет миграции схемы.
// Время ожидания подключения ограничивает ctx вызывающей стороны.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse journal dsn: %w", err)
	}
	// Журнал пишет один потребитель, вторым соединением пользуются миграции.
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create journal pool: %w", err)
	}

	r := newRepository(pool)

	if err := r.withRetry(ctx, func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func newRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		pool:        pool,
		batchSize:   defaultBatchSize,
		retryDelays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load journal migrations: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		db.Close()
		return fmt.Errorf("create migration provider: %w", err)
	}
	defer provider.Close()

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate journal schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.retryDelays) {
			break
		}

		timer := time.NewTimer(r.retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

// isConnectionError распознаёт обрывы соединения, после которых пакет можно отправить заново.
func isConnectionError(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// Close закрывает журнал. Решения, не отправленные через Flush, теряются.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	if n := len(r.pending); n > 0 {
		return fmt.Errorf("close journal: %d decisions were not flushed", n)
	}
	return nil
}

// RecordDecision добавляет решение в буфер и отправляет буфер, когда он заполнен.
func (r *PostgresRepository) RecordDecision(ctx context.Context, entry model.JournalEntry) error {
	r.pending = append(r.pending, entry)
	if len(r.pending) < r.batchSize {
		return nil
	}
	return r.Flush(ctx)
}

// Flush отправляет накопленные решения одним пакетом.
func (r *PostgresRepository) Flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}

	err := r.withRetry(ctx, func() error {
		return r.pool.SendBatch(ctx, buildBatch(r.pending)).Close()
	})
	if err != nil {
		return fmt.Errorf("insert decisions: %w", err)
	}

	r.pending = r.pending[:0]
	return nil
}

func buildBatch(entries []model.JournalEntry) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertDecision,
			e.RunID,
			e.Seq,
			e.Load.ID,
			e.Load.CustomerID,
			e.Load.Amount.String(),
			e.Load.Time,
			e.Decision.Accepted,
			string(e.Decision.Reason),
		)
	}
	return batch
}
