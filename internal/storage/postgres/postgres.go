package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Instance  string                 `json:"instance"`
	RunID     *string                `json:"run_id,omitempty"`
}

// Client manages the Postgres connection for event and run storage.
type Client struct {
	db       *sql.DB
	instance string
}

// ConnString builds a lib/pq connection string from PG* variables read
// through getenv.
func ConnString(getenv func(string) string) string {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	parts := []string{
		"host=" + get("PGHOST", "127.0.0.1"),
		"port=" + get("PGPORT", "5432"),
		"user=" + get("PGUSER", "weavy"),
	}
	if password := getenv("PGPASSWORD"); password != "" {
		parts = append(parts, "password="+quote(password))
	}
	parts = append(parts,
		"dbname="+get("PGDATABASE", "weavy"),
		"sslmode="+get("PGSSLMODE", "disable"),
	)
	return strings.Join(parts, " ")
}

// quote escapes a value for a key=value connection string.
func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// New connects using PG* environment variables and creates the schema.
// instance tags every event written by this process.
func New(ctx context.Context, instance string) (*Client, error) {
	db, err := sql.Open("postgres", ConnString(os.Getenv))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:       db,
		instance: instance,
	}

	if err := client.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS events (
		event_id   BIGSERIAL PRIMARY KEY,
		ts         TIMESTAMPTZ NOT NULL,
		level      TEXT NOT NULL,
		event      TEXT NOT NULL,
		msg        TEXT,
		fields     JSONB,
		instance   TEXT NOT NULL,
		run_id     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);

	CREATE TABLE IF NOT EXISTS workflow_runs (
		run_id            TEXT PRIMARY KEY,
		status            TEXT NOT NULL,
		total_duration_ms BIGINT NOT NULL,
		started_at        TIMESTAMPTZ NOT NULL,
		completed_at      TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workflow_runs_started ON workflow_runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS node_results (
		run_id       TEXT NOT NULL REFERENCES workflow_runs(run_id) ON DELETE CASCADE,
		position     INT NOT NULL,
		node_id      TEXT NOT NULL,
		status       TEXT NOT NULL,
		input        JSONB,
		output       JSONB,
		error        TEXT,
		duration_ms  BIGINT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, position)
	);
`

func (c *Client) createTables(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Ping reports whether the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Append inserts an event into the database.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, runID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, instance, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, nullString(msg), fieldsJSON, c.instance, nullString(runID))
	return err
}

// Query returns the last N events in descending order by timestamp.
// A non-empty runID restricts the result to that run.
func (c *Client) Query(ctx context.Context, runID string, limit int) ([]EventRow, error) {
	limit = clampLimit(limit, 200, 10000)

	query := `
		SELECT event_id, ts, level, event, msg, fields, instance, run_id
		FROM events
		WHERE ($1 = '' OR run_id = $1)
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, run sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Instance, &run); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if run.Valid {
			e.RunID = &run.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
