package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/circuitbreaker"
	"github.com/shahryar908/agenticrag/internal/resilience"
	"github.com/shahryar908/agenticrag/internal/tracing"
)

// HTTPProvider calls an embedding sidecar exposing POST /embeddings/.
type HTTPProvider struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

func NewHTTPProvider(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    circuitbreaker.NewHTTPWrapper(nil, circuitbreaker.DependencyEmbeddings, "embedding-sidecar", timeout, logger),
	}
}

func (p *HTTPProvider) Name() string { return "http" }

// Breaker exposes the provider breaker for health checks.
func (p *HTTPProvider) Breaker() *circuitbreaker.Breaker { return p.http.Breaker() }

func (p *HTTPProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	url := p.baseURL + "/embeddings/"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	buf, err := json.Marshal(embedRequest{Texts: texts, Model: model})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &resilience.StatusError{Service: "embeddings", Code: resp.StatusCode, Body: string(body)}
	}
	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	out := make([][]float32, len(er.Embeddings))
	for i, e := range er.Embeddings {
		out[i] = toFloat32(e)
	}
	return out, nil
}

// OpenAIProvider uses any OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	client openai.Client
	cb     *circuitbreaker.HTTPWrapper
}

func NewOpenAIProvider(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *OpenAIProvider {
	cb := circuitbreaker.NewHTTPWrapper(nil, circuitbreaker.DependencyEmbeddings, "embedding-openai", timeout, logger)
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cb.Client()),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), cb: cb}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Breaker() *circuitbreaker.Breaker { return p.cb.Breaker() }

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &resilience.StatusError{Service: "embeddings", Code: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, err
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = toFloat32(d.Embedding)
	}
	return out, nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, f := range in {
		out[i] = float32(f)
	}
	return out
}
