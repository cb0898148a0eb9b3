package pricing

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTable = `pricing:
  defaults:
    combined_per_1k: 0.004
  models:
    groq:
      llama-3.3-70b-versatile:
        input_per_1k: 0.00059
        output_per_1k: 0.00079
      llama-3.1-8b-instant:
        combined_per_1k: 0.0001
`

func writeTable(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestEmptyPathUsesDefaults(t *testing.T) {
	tbl, err := Load("")
	require.NoError(t, err)
	assert.InDelta(t, DefaultCombinedPer1K/1000, tbl.DefaultPerToken(), 1e-12)

	_, ok := tbl.PricePerToken("llama-3.3-70b-versatile")
	assert.False(t, ok)
	assert.InDelta(t, 2000*DefaultCombinedPer1K/1000, tbl.CostForSplit("llama-3.3-70b-versatile", 1000, 1000), 1e-12)
}

func TestPricePerToken(t *testing.T) {
	tbl, err := Load(writeTable(t, testTable))
	require.NoError(t, err)

	tests := []struct {
		model string
		want  float64
		found bool
	}{
		{"llama-3.3-70b-versatile", (0.00059 + 0.00079) / 2 / 1000, true},
		{"llama-3.1-8b-instant", 0.0001 / 1000, true},
		{"unknown-model", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, ok := tbl.PricePerToken(tt.model)
			assert.Equal(t, tt.found, ok)
			assert.InDelta(t, tt.want, got, 1e-15)
		})
	}
}

func TestCostForSplit(t *testing.T) {
	tbl, err := Load(writeTable(t, testTable))
	require.NoError(t, err)

	assert.InDelta(t, 0.00059+2*0.00079, tbl.CostForSplit("llama-3.3-70b-versatile", 1000, 2000), 1e-12)
	assert.InDelta(t, 0.0003, tbl.CostForSplit("llama-3.1-8b-instant", 1000, 2000), 1e-12)
	assert.InDelta(t, 0.004, tbl.CostForSplit("mystery", 500, 500), 1e-12)
	assert.Zero(t, tbl.CostForSplit("llama-3.3-70b-versatile", -5, -5))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeTable(t, "pricing: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeTable(t, `pricing:
  models:
    groq:
      bad: {input_per_1k: -1}
`))
	assert.ErrorContains(t, err, "negative price for groq:bad")
}

func TestReloadKeepsOldTableOnError(t *testing.T) {
	path := writeTable(t, testTable)
	tbl, err := Load(path)
	require.NoError(t, err)

	require.Error(t, tbl.Reload(writeTable(t, "pricing: [")))
	_, ok := tbl.PricePerToken("llama-3.1-8b-instant")
	assert.True(t, ok)
	assert.Equal(t, path, tbl.Path())
}

func TestConcurrentReload(t *testing.T) {
	path := writeTable(t, testTable)
	tbl, err := Load(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = tbl.CostForSplit("llama-3.3-70b-versatile", 100, 100)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, tbl.Reload(path))
		}()
	}
	wg.Wait()
}
