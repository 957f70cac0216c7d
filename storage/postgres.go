package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devadigapratham/printfarm/api/models"
)

// PostgresStore keeps print jobs in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and migrates the schema
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS print_jobs (
		id BIGINT PRIMARY KEY,
		order_id TEXT NOT NULL,
		order_item_id INTEGER NOT NULL DEFAULT 0,
		printer_id INTEGER NOT NULL DEFAULT 0,
		model_reference TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		estimated_end TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		consumable_kind TEXT NOT NULL DEFAULT '',
		estimated_duration BIGINT NOT NULL DEFAULT 0,
		consumable_required DOUBLE PRECISION NOT NULL DEFAULT 0,
		printed_on INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("migrate print_jobs: %w", err)
	}
	return nil
}

// Close closes the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Insert stores a job. A job that already exists is overwritten.
func (s *PostgresStore) Insert(ctx context.Context, job models.PrintJob) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO print_jobs(`+jobColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			order_id=EXCLUDED.order_id, order_item_id=EXCLUDED.order_item_id, printer_id=EXCLUDED.printer_id,
			model_reference=EXCLUDED.model_reference, status=EXCLUDED.status, progress=EXCLUDED.progress,
			created_at=EXCLUDED.created_at, started_at=EXCLUDED.started_at, estimated_end=EXCLUDED.estimated_end,
			completed_at=EXCLUDED.completed_at, consumable_kind=EXCLUDED.consumable_kind,
			estimated_duration=EXCLUDED.estimated_duration, consumable_required=EXCLUDED.consumable_required,
			printed_on=EXCLUDED.printed_on`,
		job.ID, job.OrderID, job.OrderItemID, job.PrinterID, job.ModelRef, string(job.Status), job.Progress,
		job.CreatedAt, job.StartedAt, job.EstimatedEnd, job.CompletedAt,
		job.ConsumableKind, int64(job.EstimatedDuration), job.ConsumableRequired, job.PrintedOn)
	return err
}

// FindAll returns every stored job ordered by id
func (s *PostgresStore) FindAll(ctx context.Context) ([]models.PrintJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM print_jobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PrintJob
	for rows.Next() {
		var j models.PrintJob
		var status string
		var duration int64
		if err := rows.Scan(&j.ID, &j.OrderID, &j.OrderItemID, &j.PrinterID, &j.ModelRef, &status, &j.Progress,
			&j.CreatedAt, &j.StartedAt, &j.EstimatedEnd, &j.CompletedAt,
			&j.ConsumableKind, &duration, &j.ConsumableRequired, &j.PrintedOn); err != nil {
			return nil, err
		}
		j.Status = models.PrintJobStatus(status)
		j.EstimatedDuration = time.Duration(duration)
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateFields writes the mutable columns of a job
func (s *PostgresStore) UpdateFields(ctx context.Context, id int64, f models.JobFields) error {
	tag, err := s.pool.Exec(ctx, `UPDATE print_jobs SET status=$1, printer_id=$2, progress=$3, started_at=$4, estimated_end=$5, completed_at=$6, printed_on=$7 WHERE id=$8`,
		string(f.Status), f.PrinterID, f.Progress, f.StartedAt, f.EstimatedEnd, f.CompletedAt, f.PrintedOn, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a job
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM print_jobs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
