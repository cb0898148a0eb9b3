// Package mcpserver exposes the question answering workflow and the knowledge
// base as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/ingestion"
	"github.com/shahryar908/agenticrag/internal/knowledge"
	"github.com/shahryar908/agenticrag/internal/resilience"
	"github.com/shahryar908/agenticrag/internal/workflows"
)

const serverName = "agentic-rag"

// Runner answers a query through the workflow.
type Runner interface {
	Run(ctx context.Context, query string, opts workflows.RunOptions) (*workflows.Result, error)
}

// KnowledgeBase is the subset of knowledge.Base the tools use.
type KnowledgeBase interface {
	Add(ctx context.Context, doc ingestion.Document, source string) (knowledge.AddResult, error)
	Stats(ctx context.Context) (knowledge.Stats, error)
}

// Server registers the tools on an MCP server.
type Server struct {
	mcp    *server.MCPServer
	engine Runner
	kb     KnowledgeBase
	logger *zap.Logger
}

type askResult struct {
	Answer     string   `json:"answer"`
	QueryType  string   `json:"query_type"`
	Confidence float64  `json:"confidence"`
	Reasoning  []string `json:"reasoning"`
	Path       []string `json:"path"`
	Sources    []string `json:"sources,omitempty"`
}

// New builds the MCP server with the ask, add_document and stats tools.
func New(engine Runner, kb KnowledgeBase, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mcp: server.NewMCPServer(serverName, version,
			server.WithToolCapabilities(false),
			server.WithInstructions("Agentic RAG: ask questions answered from a knowledge base, web search or the model itself, and add documents to the knowledge base."),
		),
		engine: engine,
		kb:     kb,
		logger: logger,
	}

	s.mcp.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a question. The query is classified and routed to knowledge base retrieval, web search or direct generation."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithNumber("n_results", mcp.Description("Number of knowledge base passages to retrieve (1-20, defaults to the configured top_k)")),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool("add_document",
		mcp.WithDescription("Add a text passage to the knowledge base"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Passage text")),
		mcp.WithString("source", mcp.Description("Optional source label stored in the document metadata")),
	), s.handleAddDocument)

	s.mcp.AddTool(mcp.NewTool("stats",
		mcp.WithDescription("Report knowledge base size and the models serving it"),
	), s.handleStats)

	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// HTTPHandler serves the tools over streamable HTTP at path.
func (s *Server) HTTPHandler(path string) http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(path))
}

// ServeStdio blocks serving the tools on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k := int(req.GetFloat("n_results", 0))
	if k < 0 || k > 20 {
		return mcp.NewToolResultError("n_results must be between 1 and 20"), nil
	}

	res, err := s.engine.Run(ctx, query, workflows.RunOptions{TopK: k})
	if err != nil {
		return toolError("ask", err, s.logger)
	}
	out := askResult{
		Answer:     res.State.Answer,
		QueryType:  res.State.QueryType.String(),
		Confidence: res.State.Confidence,
		Reasoning:  res.State.ReasoningTrace,
	}
	for _, n := range res.Path {
		out.Path = append(out.Path, n.String())
	}
	for _, d := range res.State.RetrievedDocs {
		out.Sources = append(out.Sources, d.ID)
	}
	return jsonResult(out)
}

func (s *Server) handleAddDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc := ingestion.Document{Text: text}
	if src := req.GetString("source", ""); src != "" {
		doc.Metadata = map[string]interface{}{"source": src}
	}
	res, err := s.kb.Add(ctx, doc, "mcp")
	if err != nil {
		return toolError("add_document", err, s.logger)
	}
	return jsonResult(res)
}

func (s *Server) handleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.kb.Stats(ctx)
	if err != nil {
		return toolError("stats", err, s.logger)
	}
	return jsonResult(st)
}

// toolError reports failures inside the tool result so clients can show them.
// Only unexpected errors are logged.
func toolError(tool string, err error, logger *zap.Logger) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, workflows.ErrEmptyQuery), errors.Is(err, ingestion.ErrEmptyDocument):
	case errors.Is(err, resilience.ErrServiceUnavailable):
		logger.Warn("MCP tool dependency unavailable", zap.String("tool", tool), zap.Error(err))
	default:
		logger.Error("MCP tool failed", zap.String("tool", tool), zap.Error(err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err)), nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
