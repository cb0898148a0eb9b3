package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/circuitbreaker"
	"github.com/shahryar908/agenticrag/internal/metrics"
	"github.com/shahryar908/agenticrag/internal/ratecontrol"
	"github.com/shahryar908/agenticrag/internal/resilience"
	"github.com/shahryar908/agenticrag/internal/tracing"
)

// Result is one web hit. Score is the provider relevance in [0,1]; 0 means unscored.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Provider performs a web search.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]Result, error)
}

// Stub returns fixed placeholder results so the web branch works without credentials.
type Stub struct{}

func (Stub) Name() string { return "stub" }

func (Stub) Search(_ context.Context, query string) ([]Result, error) {
	metrics.WebSearches.WithLabelValues("stub", "ok").Inc()
	return []Result{
		{Content: fmt.Sprintf("[Web Search Placeholder] Results for: %s", query)},
		{Content: "Integrate Tavily API for real web search"},
	}, nil
}

// TavilyConfig configures Tavily.
type TavilyConfig struct {
	BaseURL    string
	APIKey     string
	MaxResults int
	Timeout    time.Duration
}

// Tavily calls the Tavily search API.
type Tavily struct {
	cfg     TavilyConfig
	httpw   *circuitbreaker.HTTPWrapper
	limits  *ratecontrol.Controller
	retrier *resilience.Retrier
	logger  *zap.Logger
}

func NewTavily(cfg TavilyConfig, limits *ratecontrol.Controller, retrier *resilience.Retrier, logger *zap.Logger) (*Tavily, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("tavily: API key not provided (set TAVILY_API_KEY)")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if retrier == nil {
		retrier = resilience.NewRetrier(resilience.DefaultPolicy(), logger)
	}
	return &Tavily{
		cfg:     cfg,
		httpw:   circuitbreaker.NewHTTPWrapper(nil, circuitbreaker.DependencyWebSearch, "websearch", cfg.Timeout, logger),
		limits:  limits,
		retrier: retrier,
		logger:  logger,
	}, nil
}

func (t *Tavily) Name() string { return "tavily" }

// Breaker exposes the provider breaker for health checks.
func (t *Tavily) Breaker() *circuitbreaker.Breaker { return t.httpw.Breaker() }

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	if t.limits != nil {
		if err := t.limits.Wait(ctx, "tavily", 0); err != nil {
			return nil, err
		}
	}
	results, err := resilience.Call(ctx, t.retrier, "websearch.tavily", func(ctx context.Context) ([]Result, error) {
		return t.search(ctx, query)
	})
	if err != nil {
		metrics.WebSearches.WithLabelValues("tavily", "error").Inc()
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	metrics.WebSearches.WithLabelValues("tavily", "ok").Inc()
	t.logger.Debug("Web search complete", zap.String("provider", "tavily"), zap.Int("results", len(results)))
	return results, nil
}

func (t *Tavily) search(ctx context.Context, query string) ([]Result, error) {
	url := strings.TrimRight(t.cfg.BaseURL, "/") + "/search"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	buf, err := json.Marshal(tavilyRequest{Query: query, MaxResults: t.cfg.MaxResults, SearchDepth: "basic"})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	tracing.InjectTraceparent(ctx, req)

	resp, err := t.httpw.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &resilience.StatusError{Service: "tavily", Code: resp.StatusCode, Body: string(body)}
	}
	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}
	return tr.Results, nil
}

// Texts renders results as the plain strings fed to the synthesizer.
func Texts(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		switch {
		case r.Title != "" && r.URL != "":
			out = append(out, fmt.Sprintf("%s (%s): %s", r.Title, r.URL, r.Content))
		case r.Title != "":
			out = append(out, fmt.Sprintf("%s: %s", r.Title, r.Content))
		default:
			out = append(out, r.Content)
		}
	}
	return out
}

// Confidence is the mean of positive scores clamped to [0,1], or 0.5 when nothing is scored.
func Confidence(results []Result) float64 {
	var sum float64
	n := 0
	for _, r := range results {
		if r.Score > 0 {
			sum += r.Score
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	c := sum / float64(n)
	if c > 1 {
		return 1
	}
	return c
}
