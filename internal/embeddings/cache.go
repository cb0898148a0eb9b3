package embeddings

import (
	"container/list"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/circuitbreaker"
)

// EmbeddingCache defines cache operations
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, v []float32, ttl time.Duration)
}

// LocalLRU is a simple in-process LRU with TTL
type LocalLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List               // front = most recent
	m    map[string]*list.Element // key -> element
}

type lruEntry struct {
	key string
	vec []float32
	exp time.Time
}

func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LocalLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity)}
}

func (l *LocalLRU) Get(_ context.Context, key string) ([]float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		ent := el.Value.(lruEntry)
		if ent.exp.After(time.Now()) {
			l.list.MoveToFront(el)
			return ent.vec, true
		}
		l.list.Remove(el)
		delete(l.m, key)
	}
	return nil, false
}

func (l *LocalLRU) Set(_ context.Context, key string, v []float32, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp := time.Now().Add(ttl)
	if el, ok := l.m[key]; ok {
		el.Value = lruEntry{key: key, vec: v, exp: exp}
		l.list.MoveToFront(el)
		return
	}
	l.m[key] = l.list.PushFront(lruEntry{key: key, vec: v, exp: exp})
	if l.list.Len() > l.cap {
		if oldest := l.list.Back(); oldest != nil {
			delete(l.m, oldest.Value.(lruEntry).key)
			l.list.Remove(oldest)
		}
	}
}

// Len reports the number of live and expired entries held.
func (l *LocalLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}

// RedisCache uses circuit-breaker wrapped Redis
type RedisCache struct {
	cli *circuitbreaker.RedisWrapper
}

// NewRedisCache connects to url (redis://host:port/db) and pings once.
func NewRedisCache(ctx context.Context, url string, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	wrapper := circuitbreaker.NewRedisWrapper(redis.NewClient(opts), logger)

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := wrapper.Ping(pctx); err != nil {
		_ = wrapper.Close()
		return nil, err
	}
	return &RedisCache{cli: wrapper}, nil
}

// Wrapper exposes the breaker-wrapped client for health checks.
func (r *RedisCache) Wrapper() *circuitbreaker.RedisWrapper { return r.cli }

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	b, err := r.cli.GetBytes(ctx, key)
	if err != nil || b == nil {
		return nil, false
	}
	return decodeVector(b)
}

func (r *RedisCache) Set(ctx context.Context, key string, v []float32, ttl time.Duration) {
	_ = r.cli.Set(ctx, key, encodeVector(v), ttl)
}

func (r *RedisCache) Close() error { return r.cli.Close() }

func encodeVector(v []float32) []byte {
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, true
}

// MakeKey derives the cache key for a model/text pair.
func MakeKey(model, text string) string {
	h := md5.Sum([]byte(model + "|" + text))
	return "emb:" + hex.EncodeToString(h[:])
}
