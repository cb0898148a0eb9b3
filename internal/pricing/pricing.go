// Package pricing estimates completion spend from a per-model price table.
package pricing

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/shahryar908/agenticrag/internal/metrics"
)

// DefaultCombinedPer1K is used when neither the table nor its defaults price a model.
const DefaultCombinedPer1K = 0.002

type modelPrice struct {
	InputPer1K    float64 `yaml:"input_per_1k"`
	OutputPer1K   float64 `yaml:"output_per_1k"`
	CombinedPer1K float64 `yaml:"combined_per_1k"`
}

type file struct {
	Pricing struct {
		Defaults struct {
			CombinedPer1K float64 `yaml:"combined_per_1k"`
		} `yaml:"defaults"`
		// provider -> model -> price
		Models map[string]map[string]modelPrice `yaml:"models"`
	} `yaml:"pricing"`
}

// Table is a reloadable price table. The zero value prices everything at the default.
type Table struct {
	mu     sync.RWMutex
	path   string
	prices file
}

// Load reads the table at path. An empty path yields a table of defaults.
func Load(path string) (*Table, error) {
	t := &Table{}
	if path == "" {
		return t, nil
	}
	if err := t.Reload(path); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload replaces the table with the contents of path.
func (t *Table) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("pricing: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("pricing: parse %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return fmt.Errorf("pricing: %s: %w", path, err)
	}

	t.mu.Lock()
	t.path = path
	t.prices = f
	t.mu.Unlock()
	return nil
}

// Path returns the file the table was loaded from.
func (t *Table) Path() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path
}

func (f *file) validate() error {
	if f.Pricing.Defaults.CombinedPer1K < 0 {
		return errors.New("defaults.combined_per_1k must be >= 0")
	}
	for provider, models := range f.Pricing.Models {
		for model, p := range models {
			if p.InputPer1K < 0 || p.OutputPer1K < 0 || p.CombinedPer1K < 0 {
				return fmt.Errorf("negative price for %s:%s", provider, model)
			}
		}
	}
	return nil
}

func (t *Table) lookup(model string) (modelPrice, bool) {
	for _, models := range t.prices.Pricing.Models {
		if p, ok := models[model]; ok {
			return p, true
		}
	}
	return modelPrice{}, false
}

// DefaultPerToken returns the fallback combined price per token.
func (t *Table) DefaultPerToken() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.defaultPerTokenLocked()
}

func (t *Table) defaultPerTokenLocked() float64 {
	if d := t.prices.Pricing.Defaults.CombinedPer1K; d > 0 {
		return d / 1000.0
	}
	return DefaultCombinedPer1K / 1000.0
}

// PricePerToken returns the combined price per token for model, if listed.
// Models priced only by input and output use their average.
func (t *Table) PricePerToken(model string) (float64, bool) {
	if model == "" {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.lookup(model)
	if !ok {
		return 0, false
	}
	if p.CombinedPer1K > 0 {
		return p.CombinedPer1K / 1000.0, true
	}
	if p.InputPer1K > 0 && p.OutputPer1K > 0 {
		return ((p.InputPer1K + p.OutputPer1K) / 2.0) / 1000.0, true
	}
	return 0, false
}

// CostForSplit prices a completion by its prompt and completion tokens.
func (t *Table) CostForSplit(model string, inputTokens, outputTokens int64) float64 {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.lookup(model); ok {
		if p.InputPer1K > 0 && p.OutputPer1K > 0 {
			return (float64(inputTokens)/1000.0)*p.InputPer1K + (float64(outputTokens)/1000.0)*p.OutputPer1K
		}
		if p.CombinedPer1K > 0 {
			return (float64(inputTokens+outputTokens) / 1000.0) * p.CombinedPer1K
		}
	}
	if model == "" {
		metrics.PricingFallbacks.WithLabelValues("missing_model").Inc()
	} else {
		metrics.PricingFallbacks.WithLabelValues("unknown_model").Inc()
	}
	return float64(inputTokens+outputTokens) * t.defaultPerTokenLocked()
}
