package circuitbreaker

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings tunes a breaker.
type Settings struct {
	MaxRequests      uint32        // requests admitted while half-open
	Interval         time.Duration // closed-state counter reset period, 0 disables
	Timeout          time.Duration // open -> half-open delay
	FailureThreshold uint32        // consecutive failures that open the breaker
	SuccessThreshold uint32        // consecutive half-open successes that close it
}

// Dependencies the service talks to. Each gets its own env prefix CB_<NAME>_.
const (
	DependencyLLM        = "llm"
	DependencyEmbeddings = "embeddings"
	DependencyVectorDB   = "vectordb"
	DependencyWebSearch  = "websearch"
	DependencyRedis      = "redis"
	DependencyPostgres   = "postgres"
)

var builtIn = map[string]Settings{
	DependencyLLM:        {MaxRequests: 3, Interval: 60 * time.Second, Timeout: 30 * time.Second, FailureThreshold: 5, SuccessThreshold: 2},
	DependencyEmbeddings: {MaxRequests: 5, Interval: 30 * time.Second, Timeout: 15 * time.Second, FailureThreshold: 5, SuccessThreshold: 2},
	DependencyVectorDB:   {MaxRequests: 5, Interval: 30 * time.Second, Timeout: 15 * time.Second, FailureThreshold: 3, SuccessThreshold: 2},
	DependencyWebSearch:  {MaxRequests: 3, Interval: 60 * time.Second, Timeout: 30 * time.Second, FailureThreshold: 3, SuccessThreshold: 1},
	DependencyRedis:      {MaxRequests: 5, Interval: 30 * time.Second, Timeout: 15 * time.Second, FailureThreshold: 3, SuccessThreshold: 2},
	DependencyPostgres:   {MaxRequests: 3, Interval: 60 * time.Second, Timeout: 30 * time.Second, FailureThreshold: 5, SuccessThreshold: 2},
}

// DefaultSettings is used for dependencies without a built-in entry.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}
}

// SettingsFor returns the built-in settings for a dependency with env overrides applied,
// e.g. CB_LLM_FAILURE_THRESHOLD=10 or CB_VECTORDB_TIMEOUT=5s.
func SettingsFor(dependency string) Settings {
	s, ok := builtIn[dependency]
	if !ok {
		s = DefaultSettings()
	}
	prefix := "CB_" + strings.ToUpper(dependency) + "_"
	return Settings{
		MaxRequests:      getEnvUint32(prefix+"MAX_REQUESTS", s.MaxRequests),
		Interval:         getEnvDuration(prefix+"INTERVAL", s.Interval),
		Timeout:          getEnvDuration(prefix+"TIMEOUT", s.Timeout),
		FailureThreshold: getEnvUint32(prefix+"FAILURE_THRESHOLD", s.FailureThreshold),
		SuccessThreshold: getEnvUint32(prefix+"SUCCESS_THRESHOLD", s.SuccessThreshold),
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxRequests == 0 {
		s.MaxRequests = d.MaxRequests
	}
	if s.Timeout == 0 {
		s.Timeout = d.Timeout
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = d.FailureThreshold
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = d.SuccessThreshold
	}
	return s
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
