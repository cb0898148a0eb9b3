package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/circuitbreaker"
	"github.com/shahryar908/agenticrag/internal/embeddings"
	"github.com/shahryar908/agenticrag/internal/metrics"
	"github.com/shahryar908/agenticrag/internal/pricing"
	"github.com/shahryar908/agenticrag/internal/ratecontrol"
	"github.com/shahryar908/agenticrag/internal/resilience"
	"github.com/shahryar908/agenticrag/internal/tracing"
)

// Request is one chat completion. System may be empty.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// Purpose labels metrics and logs (classify, generate).
	Purpose string
}

// Client completes prompts against a language model.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Model() string
}

// Config configures OpenAIClient.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// Provider keys the rate limit table.
	Provider string
}

// OpenAIClient talks to any OpenAI-compatible chat completions API (Groq by default).
type OpenAIClient struct {
	client  openai.Client
	cfg     Config
	httpw   *circuitbreaker.HTTPWrapper
	limits  *ratecontrol.Controller
	retrier *resilience.Retrier
	prices  *pricing.Table
	logger  *zap.Logger
}

// NewOpenAIClient builds the client. limits and retrier may be nil.
func NewOpenAIClient(cfg Config, limits *ratecontrol.Controller, retrier *resilience.Retrier, logger *zap.Logger) (*OpenAIClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key not provided (set GROQ_API_KEY or llm.api_key)")
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Provider == "" {
		cfg.Provider = "groq"
	}
	if retrier == nil {
		retrier = resilience.NewRetrier(resilience.DefaultPolicy(), logger)
	}

	httpw := circuitbreaker.NewHTTPWrapper(nil, circuitbreaker.DependencyLLM, "llm", cfg.Timeout, logger)
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpw.Client()),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		cfg:     cfg,
		httpw:   httpw,
		limits:  limits,
		retrier: retrier,
		logger:  logger,
	}, nil
}

func (c *OpenAIClient) Model() string { return c.cfg.Model }

// SetPricing enables cost estimation for completions.
func (c *OpenAIClient) SetPricing(t *pricing.Table) { c.prices = t }

// Breaker exposes the LLM breaker for health checks.
func (c *OpenAIClient) Breaker() *circuitbreaker.Breaker { return c.httpw.Breaker() }

// Complete sends req and returns the first choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	purpose := req.Purpose
	if purpose == "" {
		purpose = "complete"
	}
	ctx, span := tracing.StartSpan(ctx, "llm."+purpose)
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	if c.limits != nil {
		if err = c.limits.Wait(ctx, c.cfg.Provider, embeddings.EstimateTokens(req.System+" "+req.User)+req.MaxTokens); err != nil {
			return "", err
		}
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.cfg.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	start := time.Now()
	var resp *openai.ChatCompletion
	resp, err = resilience.Call(ctx, c.retrier, "llm."+purpose, func(ctx context.Context) (*openai.ChatCompletion, error) {
		r, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, mapError(err)
		}
		return r, nil
	})
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordLLMMetrics(c.cfg.Model, purpose, "error", elapsed.Seconds(), 0, 0)
		c.logger.Warn("LLM completion failed",
			zap.String("purpose", purpose),
			zap.String("model", c.cfg.Model),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		err = fmt.Errorf("llm %s: %w", purpose, err)
		return "", err
	}

	metrics.RecordLLMMetrics(c.cfg.Model, purpose, "ok", elapsed.Seconds(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	var cost float64
	if c.prices != nil {
		cost = c.prices.CostForSplit(c.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		metrics.RecordLLMCost(c.cfg.Model, cost)
	}
	c.logger.Debug("LLM completion",
		zap.String("purpose", purpose),
		zap.Duration("duration", elapsed),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.Float64("cost_usd", cost),
	)
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &resilience.StatusError{Service: "llm", Code: apiErr.StatusCode, Body: apiErr.Message}
	}
	return err
}
