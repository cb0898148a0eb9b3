package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/metrics"
	"github.com/shahryar908/agenticrag/internal/workflows"
)

const createWorkflowRunsTable = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	id             UUID PRIMARY KEY,
	query          TEXT NOT NULL,
	query_type     TEXT NOT NULL,
	path           TEXT[] NOT NULL DEFAULT '{}',
	status         TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
	retrieved_docs INTEGER NOT NULL DEFAULT 0,
	web_results    INTEGER NOT NULL DEFAULT 0,
	reasoning      TEXT[] NOT NULL DEFAULT '{}',
	answer         TEXT,
	error_message  TEXT,
	duration_ms    BIGINT NOT NULL DEFAULT 0,
	node_timings   JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const insertWorkflowRun = `
INSERT INTO workflow_runs (
	id, query, query_type, path, status, confidence, retrieved_docs, web_results,
	reasoning, answer, error_message, duration_ms, node_timings, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

const selectRecentRuns = `
SELECT id, query, query_type, path, status, confidence, retrieved_docs, web_results,
	reasoning, answer, error_message, duration_ms, node_timings, created_at
FROM workflow_runs
ORDER BY created_at DESC
LIMIT $1`

var _ workflows.Observer = (*Client)(nil)

// SaveWorkflowRun inserts one run synchronously.
func (c *Client) SaveWorkflowRun(ctx context.Context, run *WorkflowRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, insertWorkflowRun,
		run.ID, run.Query, run.QueryType, run.Path, run.Status, run.Confidence,
		run.RetrievedDocs, run.WebResults, run.Reasoning, run.Answer, run.ErrorMessage,
		run.DurationMs, run.NodeTimings, run.CreatedAt,
	)
	status := "ok"
	if err != nil {
		status = "error"
		err = fmt.Errorf("insert workflow run: %w", err)
	}
	metrics.RunLogWrites.WithLabelValues(status).Inc()
	return err
}

// RecentRuns returns the newest runs first.
func (c *Client) RecentRuns(ctx context.Context, limit int) ([]WorkflowRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []WorkflowRun
	if err := c.db.SelectContext(ctx, &runs, selectRecentRuns, limit); err != nil {
		return nil, fmt.Errorf("select workflow runs: %w", err)
	}
	return runs, nil
}

// ObserveRun records a finished workflow through the write queue.
func (c *Client) ObserveRun(_ context.Context, query string, res *workflows.Result, runErr error) {
	run := NewWorkflowRun(query, res, runErr)
	if err := c.QueueWrite(WriteTypeWorkflowRun, run, nil); err != nil {
		c.logger.Warn("Failed to queue workflow run", zap.Error(err))
	}
}

// NewWorkflowRun summarizes a workflow outcome as a row.
func NewWorkflowRun(query string, res *workflows.Result, runErr error) *WorkflowRun {
	run := &WorkflowRun{
		ID:        uuid.New(),
		Query:     query,
		QueryType: "unknown",
		Status:    "completed",
		Path:      pq.StringArray{},
		Reasoning: pq.StringArray{},
		CreatedAt: time.Now().UTC(),
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Status = "failed"
		run.ErrorMessage = &msg
	}
	if res == nil {
		return run
	}

	s := res.State
	run.QueryType = s.QueryType.String()
	run.Confidence = s.Confidence
	run.RetrievedDocs = len(s.RetrievedDocs)
	run.WebResults = len(s.WebResults)
	run.Reasoning = append(pq.StringArray{}, s.ReasoningTrace...)
	run.DurationMs = res.Duration.Milliseconds()
	if s.Answer != "" {
		answer := s.Answer
		run.Answer = &answer
	}
	run.NodeTimings = JSONB{}
	for _, n := range res.Path {
		run.Path = append(run.Path, n.String())
		run.NodeTimings[n.String()] = res.Timings[n].Milliseconds()
	}
	return run
}
