package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erikmalm/streamworks/logger"
	"github.com/erikmalm/streamworks/offset"
	"github.com/hugolhafner/dskit/backoff"
	_ "github.com/lib/pq"
)

var _ offset.CheckpointManager = (*PostgresManager)(nil)

// PostgresManager is a durable offset.CheckpointManager backed by
// Postgres. Writes are transactional and guarded by a per-task advisory
// lock so that concurrent commits for the same task serialize even if a
// caller forgets to take Manager's own per-task lock.
type PostgresManager struct {
	db      *sql.DB
	logger  logger.Logger
	retry   backoff.Backoff
	retries int
}

type PostgresManagerOption func(*PostgresManager)

func WithRetryBackoff(b backoff.Backoff, retries int) PostgresManagerOption {
	return func(m *PostgresManager) {
		m.retry = b
		m.retries = retries
	}
}

func WithPostgresLogger(l logger.Logger) PostgresManagerOption {
	return func(m *PostgresManager) { m.logger = l }
}

func NewPostgresManager(connectionString string, opts ...PostgresManagerOption) (*PostgresManager, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("checkpoint: ping postgres: %w", err)
	}

	m := &PostgresManager{
		db:      db,
		logger:  logger.NewNoopLogger(),
		retry:   backoff.NewFixed(200 * time.Millisecond),
		retries: 3,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *PostgresManager) Start(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS offset_checkpoints (
			task_name  TEXT NOT NULL,
			system     TEXT NOT NULL,
			stream     TEXT NOT NULL,
			partition  INTEGER NOT NULL,
			key_bucket TEXT NOT NULL DEFAULT '',
			offset_val TEXT NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			PRIMARY KEY (task_name, system, stream, partition, key_bucket)
		);
	`)
	return err
}

func (m *PostgresManager) Stop(_ context.Context) error {
	return m.db.Close()
}

func (m *PostgresManager) Register(_ offset.TaskName) error {
	return nil
}

func (m *PostgresManager) ReadLastCheckpoint(ctx context.Context, taskName offset.TaskName) (offset.Checkpoint, bool, error) {
	rows, err := m.db.QueryContext(
		ctx,
		`SELECT system, stream, partition, key_bucket, offset_val FROM offset_checkpoints WHERE task_name = $1`,
		string(taskName),
	)
	if err != nil {
		return nil, false, fmt.Errorf("checkpoint: read last checkpoint: %w", err)
	}
	defer rows.Close()

	cp := offset.Checkpoint{}
	for rows.Next() {
		var system, stream, keyBucket, offsetVal string
		var partition int32
		if err := rows.Scan(&system, &stream, &partition, &keyBucket, &offsetVal); err != nil {
			return nil, false, fmt.Errorf("checkpoint: scan row: %w", err)
		}
		ssp := offset.SSP{
			Stream:    offset.Stream{System: system, Name: stream},
			Partition: partition,
			KeyBucket: keyBucket,
		}
		cp[ssp] = offsetVal
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(cp) == 0 {
		return nil, false, nil
	}
	return cp, true, nil
}

func (m *PostgresManager) ReadAllCheckpoints(ctx context.Context) (map[offset.TaskName]offset.Checkpoint, error) {
	rows, err := m.db.QueryContext(
		ctx,
		`SELECT task_name, system, stream, partition, key_bucket, offset_val FROM offset_checkpoints`,
	)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read all checkpoints: %w", err)
	}
	defer rows.Close()

	out := make(map[offset.TaskName]offset.Checkpoint)
	for rows.Next() {
		var taskName, system, stream, keyBucket, offsetVal string
		var partition int32
		if err := rows.Scan(&taskName, &system, &stream, &partition, &keyBucket, &offsetVal); err != nil {
			return nil, fmt.Errorf("checkpoint: scan row: %w", err)
		}
		tn := offset.TaskName(taskName)
		if _, ok := out[tn]; !ok {
			out[tn] = offset.Checkpoint{}
		}
		out[tn][offset.SSP{
			Stream:    offset.Stream{System: system, Name: stream},
			Partition: partition,
			KeyBucket: keyBucket,
		}] = offsetVal
	}
	return out, rows.Err()
}

// WriteCheckpoint replaces the task's stored rows transactionally under a
// per-task advisory lock, retrying any failed attempt up to the configured
// number of retries with the configured backoff between attempts.
func (m *PostgresManager) WriteCheckpoint(ctx context.Context, taskName offset.TaskName, cp offset.Checkpoint) error {
	var lastErr error
	for attempt := uint(0); attempt <= uint(m.retries); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.retry.Next(attempt)):
			}
			m.logger.Warn("retrying checkpoint write", "task", string(taskName), "attempt", attempt, "error", lastErr)
		}

		lastErr = m.writeCheckpointOnce(ctx, taskName, cp)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("checkpoint: write checkpoint for %s: %w", taskName, lastErr)
}

func (m *PostgresManager) writeCheckpointOnce(ctx context.Context, taskName offset.TaskName, cp offset.Checkpoint) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(taskName)); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM offset_checkpoints WHERE task_name = $1`, string(taskName)); err != nil {
		return fmt.Errorf("clear previous checkpoint: %w", err)
	}

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO offset_checkpoints (task_name, system, stream, partition, key_bucket, offset_val, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for ssp, offsetVal := range cp {
		if _, err := stmt.ExecContext(
			ctx, string(taskName), ssp.Stream.System, ssp.Stream.Name, ssp.Partition, ssp.KeyBucket, offsetVal,
		); err != nil {
			return fmt.Errorf("insert checkpoint row: %w", err)
		}
	}

	return tx.Commit()
}
