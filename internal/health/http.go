package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HTTPHandler serves the admin-port probes.
type HTTPHandler struct {
	manager *Manager
	logger  *zap.Logger
}

func NewHTTPHandler(manager *Manager, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{manager: manager, logger: logger}
}

// RegisterRoutes mounts /health/ready, /health/live and /health/detailed.
// Other methods get 405 from the router.
func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health/ready", h.ready).Methods(http.MethodGet)
	r.HandleFunc("/health/live", h.live).Methods(http.MethodGet)
	r.HandleFunc("/health/detailed", h.detailed).Methods(http.MethodGet)
}

// ready fails while any critical dependency (vector store, LLM, embeddings) is unhealthy.
func (h *HTTPHandler) ready(w http.ResponseWriter, r *http.Request) {
	ready := h.manager.IsReady(r.Context())
	code, status := http.StatusOK, "ready"
	if !ready {
		code, status = http.StatusServiceUnavailable, "not ready"
	}
	h.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"ready":     ready,
		"timestamp": time.Now().Unix(),
	})
}

// live reports only that the process is serving.
func (h *HTTPHandler) live(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"live":      true,
		"timestamp": time.Now().Unix(),
	})
}

// detailed runs every checker, or with ?cached=true reports the last background results.
func (h *HTTPHandler) detailed(w http.ResponseWriter, r *http.Request) {
	var report DetailedHealth
	if r.URL.Query().Get("cached") == "true" {
		components := h.manager.GetLastResults()
		summary := summarize(components)
		report = DetailedHealth{
			Overall:    calculateOverallStatus(components, summary),
			Components: components,
			Summary:    summary,
			Timestamp:  time.Now(),
		}
	} else {
		report = h.manager.GetDetailedHealth(r.Context())
	}

	code := http.StatusOK
	if report.Overall.Status == StatusUnhealthy || report.Overall.Status == StatusUnknown {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, report)
}

func summarize(components map[string]CheckResult) HealthSummary {
	s := HealthSummary{Total: len(components)}
	for _, c := range components {
		switch c.Status {
		case StatusHealthy:
			s.Healthy++
		case StatusDegraded:
			s.Degraded++
		case StatusUnhealthy:
			s.Unhealthy++
		}
		if c.Critical {
			s.Critical++
		} else {
			s.NonCritical++
		}
	}
	return s
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}
