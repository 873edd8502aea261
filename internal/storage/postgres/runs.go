package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/orchestrator"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is a workflow run without its node results.
type RunSummary struct {
	RunID           string                 `json:"runId"`
	Status          orchestrator.RunStatus `json:"status"`
	TotalDurationMs int64                  `json:"totalDurationMs"`
	StartedAt       time.Time              `json:"startedAt"`
	CompletedAt     time.Time              `json:"completedAt"`
}

// SaveRun stores a run and its node results in one transaction.
func (c *Client) SaveRun(ctx context.Context, run *orchestrator.WorkflowRunResult) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_runs (run_id, status, total_duration_ms, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			total_duration_ms = EXCLUDED.total_duration_ms,
			completed_at = EXCLUDED.completed_at
	`, run.RunID, string(run.Status), run.TotalDurationMs, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM node_results WHERE run_id = $1`, run.RunID); err != nil {
		return fmt.Errorf("clear node results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO node_results (run_id, position, node_id, status, input, output, error, duration_ms, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, res := range run.NodeResults {
		input, output, err := encodeResult(res)
		if err != nil {
			return fmt.Errorf("node %s: %w", res.NodeID, err)
		}
		if _, err := stmt.ExecContext(ctx, run.RunID, i, res.NodeID, string(res.Status), input, output,
			res.Error, res.DurationMs, res.StartedAt, res.CompletedAt); err != nil {
			return fmt.Errorf("insert node %s: %w", res.NodeID, err)
		}
	}

	return tx.Commit()
}

// encodeResult serializes the JSONB columns of a node result. A nil output
// is stored as SQL NULL.
func encodeResult(res orchestrator.ExecutionResult) (input, output []byte, err error) {
	if input, err = json.Marshal(res.Input); err != nil {
		return nil, nil, err
	}
	if res.Output != nil {
		if output, err = json.Marshal(res.Output); err != nil {
			return nil, nil, err
		}
	}
	return input, output, nil
}

func decodeResult(res *orchestrator.ExecutionResult, input, output []byte) error {
	res.Input = graph.Inputs{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &res.Input); err != nil {
			return err
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &res.Output); err != nil {
			return err
		}
	}
	return nil
}

// GetRun loads a run with its node results in execution order.
func (c *Client) GetRun(ctx context.Context, runID string) (*orchestrator.WorkflowRunResult, error) {
	run := &orchestrator.WorkflowRunResult{RunID: runID}
	var status string
	err := c.db.QueryRowContext(ctx, `
		SELECT status, total_duration_ms, started_at, completed_at
		FROM workflow_runs WHERE run_id = $1
	`, runID).Scan(&status, &run.TotalDurationMs, &run.StartedAt, &run.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Status = orchestrator.RunStatus(status)

	rows, err := c.db.QueryContext(ctx, `
		SELECT node_id, status, input, output, error, duration_ms, started_at, completed_at
		FROM node_results WHERE run_id = $1 ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	run.NodeResults = []orchestrator.ExecutionResult{}
	for rows.Next() {
		var res orchestrator.ExecutionResult
		var nodeStatus string
		var input, output []byte
		var msg sql.NullString
		if err := rows.Scan(&res.NodeID, &nodeStatus, &input, &output, &msg, &res.DurationMs, &res.StartedAt, &res.CompletedAt); err != nil {
			return nil, err
		}
		res.Status = orchestrator.NodeStatus(nodeStatus)
		if msg.Valid {
			res.Error = &msg.String
		}
		if err := decodeResult(&res, input, output); err != nil {
			return nil, fmt.Errorf("node %s: %w", res.NodeID, err)
		}
		run.NodeResults = append(run.NodeResults, res)
	}
	return run, rows.Err()
}

// ListRuns returns the most recent runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	limit = clampLimit(limit, 50, 1000)

	rows, err := c.db.QueryContext(ctx, `
		SELECT run_id, status, total_duration_ms, started_at, completed_at
		FROM workflow_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var s RunSummary
		var status string
		if err := rows.Scan(&s.RunID, &status, &s.TotalDurationMs, &s.StartedAt, &s.CompletedAt); err != nil {
			return nil, err
		}
		s.Status = orchestrator.RunStatus(status)
		runs = append(runs, s)
	}
	return runs, rows.Err()
}
