package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shahryar908/agenticrag/internal/resilience"
)

func TestStub(t *testing.T) {
	res, err := Stub{}.Search(context.Background(), "latest AI news")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"[Web Search Placeholder] Results for: latest AI news",
		"Integrate Tavily API for real web search",
	}, Texts(res))
	assert.Equal(t, 0.5, Confidence(res))
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.5, Confidence(nil))
	assert.InDelta(t, 0.7, Confidence([]Result{{Score: 0.6}, {Score: 0.8}, {Score: 0}}), 1e-9)
	assert.Equal(t, 1.0, Confidence([]Result{{Score: 3}}))
}

func TestTexts(t *testing.T) {
	got := Texts([]Result{
		{Title: "Go 1.24", URL: "https://go.dev", Content: "released"},
		{Title: "Only title", Content: "body"},
	})
	assert.Equal(t, []string{"Go 1.24 (https://go.dev): released", "Only title: body"}, got)
}

func fastRetrier(t *testing.T) *resilience.Retrier {
	return resilience.NewRetrier(resilience.Policy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, AttemptTimeout: time.Second}, zaptest.NewLogger(t))
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tvly-test", r.Header.Get("Authorization"))
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "weather today", req.Query)
		assert.Equal(t, 3, req.MaxResults)
		_, _ = w.Write([]byte(`{"query":"weather today","results":[
			{"title":"Forecast","url":"https://wx.example","content":"Sunny","score":0.9},
			{"title":"Radar","url":"https://radar.example","content":"Clear","score":0.5}]}`))
	}))
	defer srv.Close()

	tv, err := NewTavily(TavilyConfig{BaseURL: srv.URL, APIKey: "tvly-test", MaxResults: 3}, nil, fastRetrier(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := tv.Search(context.Background(), "weather today")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "Sunny", res[0].Content)
	assert.InDelta(t, 0.7, Confidence(res), 1e-9)
}

func TestTavilyOutage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tv, err := NewTavily(TavilyConfig{BaseURL: srv.URL, APIKey: "k"}, nil, fastRetrier(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = tv.Search(context.Background(), "q")
	assert.True(t, errors.Is(err, resilience.ErrServiceUnavailable))
}

func TestNewTavilyRequiresKey(t *testing.T) {
	_, err := NewTavily(TavilyConfig{}, nil, nil, nil)
	assert.Error(t, err)
}
