package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/circuitbreaker"
)

// Config holds database configuration
type Config struct {
	DSN             string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
	Workers         int
	QueueSize       int
}

// Client manages database connections and operations
type Client struct {
	db     *circuitbreaker.SQLWrapper
	logger *zap.Logger
	config Config

	// Write queue for async operations
	writeQueue chan WriteRequest
	workers    int
	stopCh     chan struct{}
	stopOnce   sync.Once
	workerWg   sync.WaitGroup
}

// WriteRequest represents an async write operation
type WriteRequest struct {
	Type     WriteType
	Data     interface{}
	Callback func(error)
}

type WriteType int

const (
	WriteTypeWorkflowRun WriteType = iota
)

// String returns the string representation of WriteType
func (wt WriteType) String() string {
	switch wt {
	case WriteTypeWorkflowRun:
		return "WorkflowRun"
	default:
		return "Unknown"
	}
}

// NewClient opens the database, verifies connectivity and starts the write workers.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN not provided (set DATABASE_URL or run_log.dsn)")
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.IdleConnections == 0 {
		config.IdleConnections = 2
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 5 * time.Minute
	}

	rawDB, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	rawDB.SetMaxOpenConns(config.MaxConnections)
	rawDB.SetMaxIdleConns(config.IdleConnections)
	rawDB.SetConnMaxLifetime(config.MaxLifetime)

	client := newClient(rawDB, config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.db.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := client.EnsureSchema(ctx); err != nil {
		rawDB.Close()
		return nil, err
	}

	client.startWorkers()
	logger.Info("Database client initialized",
		zap.Int("max_connections", config.MaxConnections),
		zap.Int("workers", client.workers),
	)
	return client, nil
}

func newClient(rawDB *sqlx.DB, config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	return &Client{
		db:         circuitbreaker.NewSQLWrapper(rawDB, circuitbreaker.DependencyPostgres, "run_log", logger),
		logger:     logger,
		config:     config,
		writeQueue: make(chan WriteRequest, config.QueueSize),
		workers:    config.Workers,
		stopCh:     make(chan struct{}),
	}
}

// EnsureSchema creates the run log table when missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, createWorkflowRunsTable); err != nil {
		return fmt.Errorf("create workflow_runs: %w", err)
	}
	return nil
}

// startWorkers initializes the worker pool for async writes
func (c *Client) startWorkers() {
	for i := 0; i < c.workers; i++ {
		c.workerWg.Add(1)
		go c.writeWorker(i)
	}
}

// writeWorker processes write requests from the queue
func (c *Client) writeWorker(id int) {
	defer c.workerWg.Done()
	c.logger.Debug("Write worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-c.stopCh:
			c.drainQueue()
			c.logger.Debug("Write worker stopped", zap.Int("worker_id", id))
			return
		case req := <-c.writeQueue:
			c.processWrite(req)
		}
	}
}

// processWrite handles a single write request
func (c *Client) processWrite(req WriteRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch req.Type {
	case WriteTypeWorkflowRun:
		if run, ok := req.Data.(*WorkflowRun); ok {
			err = c.SaveWorkflowRun(ctx, run)
		} else {
			err = fmt.Errorf("unexpected payload %T for %s", req.Data, req.Type)
		}
	default:
		err = fmt.Errorf("unknown write type %d", req.Type)
	}

	if req.Callback != nil {
		req.Callback(err)
	}
	if err != nil {
		c.logger.Error("Failed to process write request",
			zap.String("type", req.Type.String()),
			zap.Error(err),
		)
	}
}

// drainQueue processes remaining requests during shutdown
func (c *Client) drainQueue() {
	timeout := time.After(10 * time.Second)
	for {
		select {
		case req := <-c.writeQueue:
			c.processWrite(req)
		case <-timeout:
			c.logger.Warn("Timeout draining write queue")
			return
		default:
			return
		}
	}
}

// QueueWrite adds a write request to the async queue
func (c *Client) QueueWrite(writeType WriteType, data interface{}, callback func(error)) error {
	req := WriteRequest{Type: writeType, Data: data, Callback: callback}
	select {
	case c.writeQueue <- req:
		return nil
	default:
		// Queue is full - use synchronous fallback to avoid dropping writes
		c.logger.Warn("Write queue is full, falling back to synchronous write",
			zap.String("type", writeType.String()))
		c.processWrite(req)
		return nil
	}
}

// Close gracefully shuts down the database client
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.workerWg.Wait()
	c.drainQueue()

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	c.logger.Info("Database client closed")
	return nil
}

// Wrapper returns the underlying SQLWrapper for health checks and monitoring
func (c *Client) Wrapper() *circuitbreaker.SQLWrapper {
	return c.db
}
