package ratecontrol

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	RateLimits struct {
		DefaultRPM        int `yaml:"default_rpm"`
		DefaultTPM        int `yaml:"default_tpm"`
		ProviderOverrides map[string]struct {
			RPM int `yaml:"rpm"`
			TPM int `yaml:"tpm"`
		} `yaml:"provider_overrides"`
	} `yaml:"rate_limits"`
}

// RateLimit is a requests-per-minute and tokens-per-minute budget. Zero means unlimited.
type RateLimit struct {
	RPM int
	TPM int
}

var builtInProviderLimits = map[string]RateLimit{
	"groq":    {RPM: 30, TPM: 6000},
	"openai":  {RPM: 30, TPM: 60000},
	"tavily":  {RPM: 60},
	"unknown": {RPM: 45, TPM: 90000},
}

var searchPaths = []string{
	"/app/config/rate_limits.yaml",
	"./config/rate_limits.yaml",
	"../../config/rate_limits.yaml",
}

// Controller hands out per-provider limiters built from a limits table.
type Controller struct {
	mu       sync.Mutex
	cfg      fileConfig
	limiters map[string]*providerLimiter
	logger   *zap.Logger
}

type providerLimiter struct {
	limit    RateLimit
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// New loads the limits table from path, or from the first well-known location when
// path is empty. Built-in provider limits apply when no file is found.
func New(path string, logger *zap.Logger) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{limiters: make(map[string]*providerLimiter), logger: logger}
	if err := c.load(path); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) load(path string) error {
	candidates := searchPaths
	if path != "" {
		candidates = []string{path}
	} else if env := os.Getenv("RATE_LIMITS_CONFIG_PATH"); env != "" {
		candidates = append([]string{env}, searchPaths...)
	}

	var cfg fileConfig
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if path != "" {
				return fmt.Errorf("read rate limits %s: %w", p, err)
			}
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse rate limits %s: %w", p, err)
		}
		abs, _ := filepath.Abs(p)
		c.logger.Info("Loaded rate limit configuration", zap.String("path", abs))
		break
	}

	c.mu.Lock()
	c.cfg = cfg
	c.limiters = make(map[string]*providerLimiter)
	c.mu.Unlock()
	return nil
}

// Reload re-reads the table; existing limiters are rebuilt on next use.
func (c *Controller) Reload(path string) error {
	return c.load(path)
}

// LimitForProvider resolves the budget for provider: file override, then built-in,
// then the file default.
func (c *Controller) LimitForProvider(provider string) RateLimit {
	key := normalize(provider)
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	fallback := RateLimit{RPM: cfg.RateLimits.DefaultRPM, TPM: cfg.RateLimits.DefaultTPM}
	if override, ok := cfg.RateLimits.ProviderOverrides[key]; ok {
		return CombineLimits(RateLimit{RPM: override.RPM, TPM: override.TPM}, RateLimit{})
	}
	if limit, ok := builtInProviderLimits[key]; ok {
		return limit
	}
	return fallback
}

// Limiter returns the request limiter for provider, or nil when unlimited.
func (c *Controller) Limiter(provider string) *rate.Limiter {
	return c.limiterFor(provider).requests
}

// Wait blocks until provider has budget for one request of estimatedTokens.
func (c *Controller) Wait(ctx context.Context, provider string, estimatedTokens int) error {
	pl := c.limiterFor(provider)
	if pl.requests != nil {
		if err := pl.requests.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit %s: %w", provider, err)
		}
	}
	if pl.tokens != nil && estimatedTokens > 0 {
		n := estimatedTokens
		if b := pl.tokens.Burst(); n > b {
			n = b
		}
		if err := pl.tokens.WaitN(ctx, n); err != nil {
			return fmt.Errorf("token limit %s: %w", provider, err)
		}
	}
	return nil
}

func (c *Controller) limiterFor(provider string) *providerLimiter {
	key := normalize(provider)
	c.mu.Lock()
	pl, ok := c.limiters[key]
	c.mu.Unlock()
	if ok {
		return pl
	}

	limit := c.LimitForProvider(key)
	pl = &providerLimiter{limit: limit}
	if limit.RPM > 0 {
		pl.requests = rate.NewLimiter(rate.Every(time.Minute/time.Duration(limit.RPM)), 1)
	}
	if limit.TPM > 0 {
		pl.tokens = rate.NewLimiter(rate.Limit(float64(limit.TPM)/60.0), limit.TPM)
	}

	c.mu.Lock()
	if existing, ok := c.limiters[key]; ok {
		pl = existing
	} else {
		c.limiters[key] = pl
	}
	c.mu.Unlock()
	return pl
}

// CombineLimits takes the stricter positive value of each dimension.
func CombineLimits(a, b RateLimit) RateLimit {
	limit := RateLimit{}
	limit.RPM = minPositive(a.RPM, b.RPM)
	limit.TPM = minPositive(a.TPM, b.TPM)
	return limit
}

func normalize(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		return "unknown"
	}
	return p
}

func minPositive(a, b int) int {
	switch {
	case a <= 0 && b <= 0:
		return 0
	case a <= 0:
		return b
	case b <= 0:
		return a
	default:
		if a < b {
			return a
		}
		return b
	}
}
