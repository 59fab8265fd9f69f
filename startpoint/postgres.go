package startpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erikmalm/streamworks/offset"
	_ "github.com/lib/pq"
)

var _ offset.StartpointManager = (*PostgresManager)(nil)

// PostgresManager is a durable offset.StartpointManager. Rows are keyed
// by (task_name, ssp); RemoveFanOutForTask deletes a task's rows once its
// overrides have been absorbed into a checkpoint.
type PostgresManager struct {
	db *sql.DB
}

func NewPostgresManager(connectionString string) (*PostgresManager, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("startpoint: open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("startpoint: ping postgres: %w", err)
	}
	return &PostgresManager{db: db}, nil
}

func (m *PostgresManager) Start(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS offset_startpoints (
			task_name  TEXT NOT NULL,
			system     TEXT NOT NULL,
			stream     TEXT NOT NULL,
			partition  INTEGER NOT NULL,
			key_bucket TEXT NOT NULL DEFAULT '',
			kind       TEXT NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			PRIMARY KEY (task_name, system, stream, partition, key_bucket)
		);
	`)
	return err
}

func (m *PostgresManager) Stop(_ context.Context) error {
	return m.db.Close()
}

func (m *PostgresManager) GetFanOutForTask(ctx context.Context, taskName offset.TaskName) (map[offset.SSP]offset.Startpoint, error) {
	rows, err := m.db.QueryContext(
		ctx,
		`SELECT system, stream, partition, key_bucket, kind, payload FROM offset_startpoints WHERE task_name = $1`,
		string(taskName),
	)
	if err != nil {
		return nil, fmt.Errorf("startpoint: get fan-out for task: %w", err)
	}
	defer rows.Close()

	out := make(map[offset.SSP]offset.Startpoint)
	for rows.Next() {
		var system, stream, keyBucket, kind string
		var partition int32
		var payload []byte
		if err := rows.Scan(&system, &stream, &partition, &keyBucket, &kind, &payload); err != nil {
			return nil, fmt.Errorf("startpoint: scan row: %w", err)
		}
		sp, err := decodeStartpoint(kind, payload)
		if err != nil {
			return nil, err
		}
		out[offset.SSP{
			Stream:    offset.Stream{System: system, Name: stream},
			Partition: partition,
			KeyBucket: keyBucket,
		}] = sp
	}
	return out, rows.Err()
}

func (m *PostgresManager) RemoveFanOutForTask(ctx context.Context, taskName offset.TaskName) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM offset_startpoints WHERE task_name = $1`, string(taskName))
	return err
}

// PutFanOutForTask is how the outer job-bootstrap materializes an
// operator-issued startpoint override; the core only ever reads and
// removes fan-out, per the spec's shared-ownership design note.
func (m *PostgresManager) PutFanOutForTask(ctx context.Context, taskName offset.TaskName, ssp offset.SSP, sp offset.Startpoint) error {
	kind, payload, err := encodeStartpoint(sp)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(
		ctx,
		`INSERT INTO offset_startpoints (task_name, system, stream, partition, key_bucket, kind, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (task_name, system, stream, partition, key_bucket)
		 DO UPDATE SET kind = EXCLUDED.kind, payload = EXCLUDED.payload, created_at = now()`,
		string(taskName), ssp.Stream.System, ssp.Stream.Name, ssp.Partition, ssp.KeyBucket, kind, payload,
	)
	return err
}

type timestampPayload struct {
	UnixMilli int64 `json:"unix_milli"`
}

type specificOffsetPayload struct {
	Offset string `json:"offset"`
}

func encodeStartpoint(sp offset.Startpoint) (string, []byte, error) {
	switch v := sp.(type) {
	case offset.SpecificOffsetStartpoint:
		payload, err := json.Marshal(specificOffsetPayload{Offset: v.Offset})
		return "specific_offset", payload, err
	case offset.TimestampStartpoint:
		payload, err := json.Marshal(timestampPayload{UnixMilli: v.Timestamp.UnixMilli()})
		return "timestamp", payload, err
	case offset.OldestStartpoint:
		return "oldest", []byte(`{}`), nil
	case offset.UpcomingStartpoint:
		return "upcoming", []byte(`{}`), nil
	case offset.CustomStartpoint:
		payload, err := json.Marshal(v.Payload)
		return "custom", payload, err
	default:
		return "", nil, fmt.Errorf("startpoint: unrecognized startpoint type %T", sp)
	}
}

func decodeStartpoint(kind string, payload []byte) (offset.Startpoint, error) {
	switch kind {
	case "specific_offset":
		var p specificOffsetPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return offset.SpecificOffsetStartpoint{Offset: p.Offset}, nil
	case "timestamp":
		var p timestampPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return offset.TimestampStartpoint{Timestamp: time.UnixMilli(p.UnixMilli)}, nil
	case "oldest":
		return offset.OldestStartpoint{}, nil
	case "upcoming":
		return offset.UpcomingStartpoint{}, nil
	case "custom":
		var p map[string]string
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return offset.CustomStartpoint{Payload: p}, nil
	default:
		return nil, fmt.Errorf("startpoint: unrecognized stored kind %q", kind)
	}
}
