package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/ingestion"
	"github.com/shahryar908/agenticrag/internal/knowledge"
	"github.com/shahryar908/agenticrag/internal/resilience"
	"github.com/shahryar908/agenticrag/internal/workflows"
)

const (
	minResults = 1
	maxResults = 20
)

type askRequest struct {
	Query       string `json:"query"`
	NResults    *int   `json:"n_results"`
	ShowSources *bool  `json:"show_sources"`
}

type source struct {
	Document   string                 `json:"document"`
	Similarity float64                `json:"similarity"`
	Metadata   map[string]interface{} `json:"metadata"`
	ID         string                 `json:"id"`
}

type askResponse struct {
	Query          string   `json:"query"`
	Answer         string   `json:"answer"`
	QueryType      string   `json:"query_type"`
	Confidence     float64  `json:"confidence"`
	Reasoning      []string `json:"reasoning"`
	Sources        []source `json:"sources,omitempty"`
	RetrievalTime  float64  `json:"retrieval_time"`
	GenerationTime float64  `json:"generation_time"`
	Path           []string `json:"path"`
}

type addDocumentsRequest struct {
	Documents []ingestion.Document `json:"documents"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "running",
		"message": "Agentic RAG API is running",
		"version": s.version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.kb.Count(r.Context())
	if err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"documents": n,
		"version":   s.version,
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeDetail(w, http.StatusBadRequest, workflows.ErrEmptyQuery.Error())
		return
	}
	var topK int
	if req.NResults != nil {
		topK = *req.NResults
		if topK < minResults || topK > maxResults {
			s.writeDetail(w, http.StatusBadRequest, fmt.Sprintf("n_results must be between %d and %d", minResults, maxResults))
			return
		}
	}
	showSources := req.ShowSources == nil || *req.ShowSources

	res, err := s.engine.Run(r.Context(), req.Query, workflows.RunOptions{TopK: topK})
	if err != nil {
		s.writeError(w, err)
		return
	}

	st := res.State
	resp := askResponse{
		Query:      st.Query,
		Answer:     st.Answer,
		QueryType:  st.QueryType.String(),
		Confidence: st.Confidence,
		Reasoning:  st.ReasoningTrace,
		Path:       make([]string, len(res.Path)),
	}
	for i, n := range res.Path {
		resp.Path[i] = n.String()
	}
	resp.RetrievalTime, resp.GenerationTime = splitTimings(res.Timings)
	if showSources {
		resp.Sources = make([]source, len(st.RetrievedDocs))
		for i, d := range st.RetrievedDocs {
			resp.Sources[i] = source{Document: d.Text, Similarity: d.Similarity, Metadata: d.Metadata, ID: d.ID}
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// splitTimings reports generation separately from everything that ran before it.
func splitTimings(t map[workflows.Node]time.Duration) (retrieval, generation float64) {
	for node, d := range t {
		if node == workflows.NodeGenerate {
			generation += d.Seconds()
			continue
		}
		retrieval += d.Seconds()
	}
	return retrieval, generation
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var doc ingestion.Document
	if !s.decode(w, r, &doc) {
		return
	}
	res, err := s.kb.Add(r.Context(), doc, "api")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"documents_added": res.DocumentsAdded,
		"total_documents": res.TotalDocuments,
	})
}

func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	var req addDocumentsRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.kb.AddBatch(r.Context(), req.Documents, "api")
	if err != nil {
		s.writeIngestError(w, res, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"documents_added": res.DocumentsAdded,
		"total_documents": res.TotalDocuments,
	})
}

func (s *Server) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeDetail(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if !ingestion.IsPDFName(header.Filename) {
		s.writeDetail(w, http.StatusBadRequest, ingestion.ErrUnsupportedFile.Error())
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeDetail(w, http.StatusBadRequest, fmt.Sprintf("read upload: %v", err))
		return
	}
	pages, total, err := ingestion.ExtractPDF(data)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.kb.AddBatch(r.Context(), ingestion.PDFDocuments(header.Filename, pages, total), "pdf_upload")
	if err != nil {
		s.writeIngestError(w, res, err)
		return
	}
	s.logger.Info("PDF ingested",
		zap.String("filename", header.Filename),
		zap.Int("pages", total),
		zap.Int("documents_added", res.DocumentsAdded),
	)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"filename":        header.Filename,
		"pages_processed": total,
		"documents_added": res.DocumentsAdded,
		"total_documents": res.TotalDocuments,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.kb.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_documents": st.TotalDocuments,
		"embedding_model": st.EmbeddingModel,
		"llm_model":       s.llmModel,
		"collection_name": st.Collection,
		"vector_store":    st.VectorStore,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.kb.Clear(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"message":         "All documents cleared",
		"total_documents": 0,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// errorStatus maps domain errors onto status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, resilience.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, workflows.ErrEmptyQuery),
		errors.Is(err, ingestion.ErrEmptyDocument),
		errors.Is(err, ingestion.ErrUnsupportedFile):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	s.writeDetail(w, status, err.Error())
}

// writeIngestError reports a failed ingestion. Batches stored before the
// failure stay in the knowledge base, so their IDs go back to the client.
func (s *Server) writeIngestError(w http.ResponseWriter, res knowledge.AddResult, err error) {
	if res.ChunksStored == 0 {
		s.writeError(w, err)
		return
	}
	status := errorStatus(err)
	s.logger.Error("Ingestion partially failed",
		zap.Int("status", status),
		zap.Int("documents_added", res.DocumentsAdded),
		zap.Int("chunks_stored", res.ChunksStored),
		zap.Error(err),
	)
	s.writeJSON(w, status, map[string]interface{}{
		"detail":          err.Error(),
		"documents_added": res.DocumentsAdded,
		"ids":             res.IDs,
	})
}

func (s *Server) writeDetail(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
