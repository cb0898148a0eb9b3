package ratecontrol

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeLimits(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "rate_limits.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCombineLimits(t *testing.T) {
	a := RateLimit{RPM: 30, TPM: 50000}
	b := RateLimit{RPM: 20, TPM: 100000}
	combined := CombineLimits(a, b)
	if combined.RPM != 20 {
		t.Fatalf("expected RPM 20, got %d", combined.RPM)
	}
	if combined.TPM != 50000 {
		t.Fatalf("expected TPM 50000, got %d", combined.TPM)
	}

	combined = CombineLimits(RateLimit{RPM: 10}, RateLimit{TPM: 500})
	if combined.RPM != 10 || combined.TPM != 500 {
		t.Fatalf("expected zero to mean unlimited, got %+v", combined)
	}
}

func TestLimitForProviderResolution(t *testing.T) {
	path := writeLimits(t, `
rate_limits:
  default_rpm: 12
  default_tpm: 1200
  provider_overrides:
    groq:
      rpm: 100
      tpm: 20000
`)
	c, err := New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := c.LimitForProvider("GROQ "); got.RPM != 100 || got.TPM != 20000 {
		t.Fatalf("override not applied: %+v", got)
	}
	if got := c.LimitForProvider("openai"); got.RPM != 30 {
		t.Fatalf("built-in not applied: %+v", got)
	}
	if got := c.LimitForProvider("acme"); got.RPM != 12 || got.TPM != 1200 {
		t.Fatalf("default not applied: %+v", got)
	}
}

func TestMissingExplicitFileFails(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for missing explicit path")
	}
}

func TestLimiterIsSharedPerProvider(t *testing.T) {
	c, err := New(writeLimits(t, "rate_limits: {}\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Limiter("groq") != c.Limiter("groq") {
		t.Fatal("expected the same limiter instance for a provider")
	}
	if c.Limiter("acme") != nil {
		t.Fatal("expected nil limiter for unlimited provider")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	path := writeLimits(t, `
rate_limits:
  provider_overrides:
    slow:
      rpm: 1
`)
	c, err := New(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Wait(context.Background(), "slow", 0); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx, "slow", 0); err == nil {
		t.Fatal("second request within the minute should be refused by the deadline")
	}
}
