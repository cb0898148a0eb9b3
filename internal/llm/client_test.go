package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shahryar908/agenticrag/internal/resilience"
)

const completionJSON = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "llama-3.3-70b-versatile",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "factual"}}],
  "usage": {"prompt_tokens": 120, "completion_tokens": 1, "total_tokens": 121}
}`

type capturedRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func testRetrier(t *testing.T) *resilience.Retrier {
	return resilience.NewRetrier(resilience.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, AttemptTimeout: time.Second}, zaptest.NewLogger(t))
}

func TestCompleteSendsParameters(t *testing.T) {
	var got capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Config{BaseURL: srv.URL, APIKey: "gsk-test"}, nil, testRetrier(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), Request{User: "classify this", Temperature: 0.1, MaxTokens: 50, Purpose: "classify"})
	require.NoError(t, err)
	assert.Equal(t, "factual", out)

	assert.Equal(t, "llama-3.3-70b-versatile", got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
	assert.Equal(t, 50, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "classify this", got.Messages[0].Content)
}

func TestCompleteWithSystemPrompt(t *testing.T) {
	var got capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"}, nil, testRetrier(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), Request{System: "be nice", User: "hi", Temperature: 0.7, MaxTokens: 500})
	require.NoError(t, err)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be nice", got.Messages[0].Content)
	assert.Equal(t, "m", got.Model)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Config{BaseURL: srv.URL, APIKey: "k"}, nil, testRetrier(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), Request{User: "q"})
	require.NoError(t, err)
	assert.Equal(t, "factual", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteExhaustedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Config{BaseURL: srv.URL, APIKey: "k"}, nil, testRetrier(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), Request{User: "q", Purpose: "generate"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrServiceUnavailable))
}

func TestCompleteAuthErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"auth"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Config{BaseURL: srv.URL, APIKey: "k"}, nil, testRetrier(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), Request{User: "q"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, resilience.ErrServiceUnavailable))
	var se *resilience.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(Config{}, nil, nil, nil)
	assert.Error(t, err)
}
