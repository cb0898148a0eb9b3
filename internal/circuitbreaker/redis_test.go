package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapperOperations(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	wrapper := NewRedisWrapper(client, zaptest.NewLogger(t))
	defer wrapper.Close()
	ctx := context.Background()

	if err := wrapper.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if err := wrapper.Set(ctx, "emb:k", []byte{1, 2, 3, 4}, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := wrapper.GetBytes(ctx, "emb:k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got) != 4 || got[3] != 4 {
		t.Errorf("unexpected value %v", got)
	}

	for i := 0; i < 10; i++ {
		if _, err := wrapper.GetBytes(ctx, "missing"); err != redis.Nil {
			t.Fatalf("expected redis.Nil, got %v", err)
		}
	}
	if wrapper.IsOpen() {
		t.Error("redis.Nil must not open the breaker")
	}

	if err := wrapper.Del(ctx, "emb:k"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := wrapper.GetBytes(ctx, "emb:k"); err != redis.Nil {
		t.Errorf("expected key deleted, got %v", err)
	}
}

func TestRedisWrapperOpensWhenServerDown(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	addr := s.Addr()
	s.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	wrapper := NewRedisWrapper(client, zaptest.NewLogger(t))
	defer wrapper.Close()

	ctx := context.Background()
	threshold := int(SettingsFor(DependencyRedis).FailureThreshold)
	for i := 0; i < threshold; i++ {
		_ = wrapper.Ping(ctx)
	}
	if !wrapper.IsOpen() {
		t.Error("expected breaker to open after repeated connection failures")
	}
	if err := wrapper.Ping(ctx); err != ErrCircuitBreakerOpen {
		t.Errorf("expected ErrCircuitBreakerOpen, got %v", err)
	}
}
