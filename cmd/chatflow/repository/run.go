package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/chatflow/cmd/chatflow/workflow"
	"github.com/lyzr/chatflow/common/db"
	"github.com/lyzr/chatflow/common/logger"
)

// RunRecord is one persisted workflow run
type RunRecord struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	Variables   map[string]any `json:"variables,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// RunRepository persists workflow run history to Postgres. It is optional;
// when the database is disabled the service runs without history.
type RunRepository struct {
	db  *db.DB
	log *logger.Logger
}

// NewRunRepository creates a run repository
func NewRunRepository(database *db.DB, log *logger.Logger) *RunRepository {
	return &RunRepository{db: database, log: log}
}

// EnsureSchema creates the run history table when missing
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			id           UUID PRIMARY KEY,
			workflow_id  TEXT NOT NULL,
			name         TEXT NOT NULL,
			status       TEXT NOT NULL,
			variables    JSONB,
			error        TEXT,
			started_at   TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS workflow_runs_workflow_id_idx
			ON workflow_runs (workflow_id, started_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to create workflow_runs schema: %w", err)
	}
	return nil
}

// Record inserts one finished run snapshot
func (r *RunRepository) Record(ctx context.Context, run *workflow.Workflow) error {
	variables, err := json.Marshal(run.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode run variables: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, name, status, variables, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(),
		run.ID,
		run.Name,
		string(run.Status),
		variables,
		run.Error,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run for workflow %s: %w", run.ID, err)
	}

	r.log.Debug("run recorded", "workflow_id", run.ID, "status", run.Status)
	return nil
}

// ListByWorkflow returns recent runs of a workflow, newest first
func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, workflow_id, name, status, variables, error, started_at, completed_at
		FROM workflow_runs
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2`,
		workflowID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for workflow %s: %w", workflowID, err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var variables []byte
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.Name, &rec.Status,
			&variables, &rec.Error, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if len(variables) > 0 {
			if err := json.Unmarshal(variables, &rec.Variables); err != nil {
				r.log.Warn("corrupt run variables", "run_id", rec.ID, "error", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
