package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/devadigapratham/printfarm/api/models"
)

// ErrNotFound is returned when a write targets a job the store does not have
var ErrNotFound = errors.New("print job not found")

const jobColumns = `id,order_id,order_item_id,printer_id,model_reference,status,progress,created_at,started_at,estimated_end,completed_at,consumable_kind,estimated_duration,consumable_required,printed_on`

// SQLiteStore keeps print jobs in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "printfarm.db"
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One writer at a time; the journal serializes writes anyway.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	q := `
	CREATE TABLE IF NOT EXISTS print_jobs (
		id INTEGER PRIMARY KEY,
		order_id TEXT NOT NULL,
		order_item_id INTEGER,
		printer_id INTEGER,
		model_reference TEXT,
		status TEXT,
		progress REAL,
		created_at DATETIME,
		started_at DATETIME,
		estimated_end DATETIME,
		completed_at DATETIME,
		consumable_kind TEXT,
		estimated_duration INTEGER,
		consumable_required REAL,
		printed_on INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_print_jobs_status ON print_jobs(status);
	`
	_, err := s.db.Exec(q)
	return err
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Insert stores a job. A job that already exists is overwritten.
func (s *SQLiteStore) Insert(ctx context.Context, job models.PrintJob) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO print_jobs(`+jobColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		job.ID, job.OrderID, job.OrderItemID, job.PrinterID, job.ModelRef, string(job.Status), job.Progress,
		job.CreatedAt.UTC(), nullTime(job.StartedAt), nullTime(job.EstimatedEnd), nullTime(job.CompletedAt),
		job.ConsumableKind, int64(job.EstimatedDuration), job.ConsumableRequired, job.PrintedOn)
	if err != nil {
		return s.replace(ctx, job)
	}
	return nil
}

func (s *SQLiteStore) replace(ctx context.Context, job models.PrintJob) error {
	res, err := s.db.ExecContext(ctx, `UPDATE print_jobs SET order_id=?, order_item_id=?, printer_id=?, model_reference=?, status=?, progress=?, created_at=?, started_at=?, estimated_end=?, completed_at=?, consumable_kind=?, estimated_duration=?, consumable_required=?, printed_on=? WHERE id=?`,
		job.OrderID, job.OrderItemID, job.PrinterID, job.ModelRef, string(job.Status), job.Progress,
		job.CreatedAt.UTC(), nullTime(job.StartedAt), nullTime(job.EstimatedEnd), nullTime(job.CompletedAt),
		job.ConsumableKind, int64(job.EstimatedDuration), job.ConsumableRequired, job.PrintedOn, job.ID)
	return affected(res, err)
}

// FindAll returns every stored job ordered by id
func (s *SQLiteStore) FindAll(ctx context.Context) ([]models.PrintJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM print_jobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PrintJob
	for rows.Next() {
		var j models.PrintJob
		var status string
		var duration int64
		var createdAt, startedAt, estimatedEnd, completedAt sql.NullTime
		if err := rows.Scan(&j.ID, &j.OrderID, &j.OrderItemID, &j.PrinterID, &j.ModelRef, &status, &j.Progress,
			&createdAt, &startedAt, &estimatedEnd, &completedAt,
			&j.ConsumableKind, &duration, &j.ConsumableRequired, &j.PrintedOn); err != nil {
			return nil, err
		}
		j.Status = models.PrintJobStatus(status)
		j.EstimatedDuration = time.Duration(duration)
		if createdAt.Valid {
			j.CreatedAt = createdAt.Time
		}
		j.StartedAt = timePtr(startedAt)
		j.EstimatedEnd = timePtr(estimatedEnd)
		j.CompletedAt = timePtr(completedAt)
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateFields writes the mutable columns of a job
func (s *SQLiteStore) UpdateFields(ctx context.Context, id int64, f models.JobFields) error {
	res, err := s.db.ExecContext(ctx, `UPDATE print_jobs SET status=?, printer_id=?, progress=?, started_at=?, estimated_end=?, completed_at=?, printed_on=? WHERE id=?`,
		string(f.Status), f.PrinterID, f.Progress, nullTime(f.StartedAt), nullTime(f.EstimatedEnd), nullTime(f.CompletedAt), f.PrintedOn, id)
	return affected(res, err)
}

// Delete removes a job
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM print_jobs WHERE id=?`, id)
	return affected(res, err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
