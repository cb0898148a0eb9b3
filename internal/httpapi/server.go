// Package httpapi serves the public REST surface: asking questions and managing
// the knowledge base.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/ingestion"
	"github.com/shahryar908/agenticrag/internal/knowledge"
	"github.com/shahryar908/agenticrag/internal/workflows"
)

const defaultMaxUploadSize = 32 << 20

// Runner answers a query through the workflow.
type Runner interface {
	Run(ctx context.Context, query string, opts workflows.RunOptions) (*workflows.Result, error)
}

// KnowledgeBase is the ingestion side of the service.
type KnowledgeBase interface {
	Add(ctx context.Context, doc ingestion.Document, source string) (knowledge.AddResult, error)
	AddBatch(ctx context.Context, docs []ingestion.Document, source string) (knowledge.AddResult, error)
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (knowledge.Stats, error)
	Clear(ctx context.Context) error
}

// Options configure a Server.
type Options struct {
	Engine        Runner
	Knowledge     KnowledgeBase
	LLMModel      string
	Version       string
	MaxUploadSize int64
	// MCP, when set, is mounted at MCPPath.
	MCP     http.Handler
	MCPPath string
}

// Server owns the API router.
type Server struct {
	engine    Runner
	kb        KnowledgeBase
	llmModel  string
	version   string
	maxUpload int64
	router    *mux.Router
	logger    *zap.Logger
}

// NewServer builds the router and registers every route.
func NewServer(opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = defaultMaxUploadSize
	}
	if opts.MCPPath == "" {
		opts.MCPPath = "/mcp"
	}

	s := &Server{
		engine:    opts.Engine,
		kb:        opts.Knowledge,
		llmModel:  opts.LLMModel,
		version:   opts.Version,
		maxUpload: opts.MaxUploadSize,
		router:    mux.NewRouter(),
		logger:    logger,
	}

	r := s.router
	r.Use(requestIDMiddleware, corsMiddleware, s.accessLogMiddleware)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/add-document", s.handleAddDocument).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/add-documents", s.handleAddDocuments).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/upload-pdf", s.handleUploadPDF).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/clear", s.handleClear).Methods(http.MethodDelete, http.MethodOptions)
	if opts.MCP != nil {
		r.PathPrefix(opts.MCPPath).Handler(opts.MCP)
		logger.Info("MCP endpoint mounted", zap.String("path", opts.MCPPath))
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }
