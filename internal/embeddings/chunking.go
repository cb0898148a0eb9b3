package embeddings

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// ChunkingConfig controls text chunking behavior
type ChunkingConfig struct {
	Enabled       bool
	MaxTokens     int
	OverlapTokens int
	TokenizerMode string // "simple" | "tiktoken"
	Encoding      string // tiktoken encoding, cl100k_base by default
}

// DefaultChunkingConfig sizes windows for a 512-token BGE encoder.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		Enabled:       true,
		MaxTokens:     400,
		OverlapTokens: 50,
		TokenizerMode: "simple",
		Encoding:      "cl100k_base",
	}
}

// Chunk represents a text chunk with metadata
type Chunk struct {
	ParentID   string // shared by every chunk of one source document
	Text       string
	Index      int // 0-based chunk position
	TotalCount int
}

// Chunker handles text chunking with overlap
type Chunker struct {
	maxTokens     int
	overlapTokens int
	tokenizerMode string
	encoding      string

	once sync.Once
	enc  *tiktoken.Tiktoken
	log  *zap.Logger
}

// NewChunker creates a new chunker with the given configuration
func NewChunker(config ChunkingConfig, logger *zap.Logger) *Chunker {
	d := DefaultChunkingConfig()
	if config.MaxTokens <= 0 {
		config.MaxTokens = d.MaxTokens
	}
	if config.OverlapTokens < 0 {
		config.OverlapTokens = 0
	}
	if config.TokenizerMode == "" {
		config.TokenizerMode = d.TokenizerMode
	}
	if config.Encoding == "" {
		config.Encoding = d.Encoding
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{
		maxTokens:     config.MaxTokens,
		overlapTokens: config.OverlapTokens,
		tokenizerMode: config.TokenizerMode,
		encoding:      config.Encoding,
		log:           logger,
	}
}

// ChunkText splits text into overlapping chunks if needed
// Returns nil if text fits within maxTokens (no chunking needed)
func (c *Chunker) ChunkText(text string) []Chunk {
	if enc := c.tiktoken(); enc != nil {
		ids := enc.Encode(text, nil, nil)
		return c.window(len(ids), func(i, j int) string { return enc.Decode(ids[i:j]) })
	}
	words := strings.Fields(text)
	return c.window(len(words), func(i, j int) string { return strings.Join(words[i:j], " ") })
}

func (c *Chunker) window(n int, slice func(i, j int) string) []Chunk {
	if n <= c.maxTokens {
		return nil
	}

	parentID := uuid.New().String()
	step := c.maxTokens - c.overlapTokens
	if step <= 0 {
		step = c.maxTokens / 2
	}
	if step <= 0 {
		step = 1
	}

	var chunks []Chunk
	for i := 0; i < n; i += step {
		end := i + c.maxTokens
		if end > n {
			end = n
		}
		chunks = append(chunks, Chunk{
			ParentID: parentID,
			Text:     slice(i, end),
			Index:    len(chunks),
		})
		if end == n {
			break
		}
	}
	for i := range chunks {
		chunks[i].TotalCount = len(chunks)
	}
	return chunks
}

// CountTokens estimates the token count for a given text
func (c *Chunker) CountTokens(text string) int {
	if enc := c.tiktoken(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}

// tiktoken returns the BPE encoder in tiktoken mode, or nil for word mode.
// A failed load (the BPE file is fetched on first use) degrades to word mode.
func (c *Chunker) tiktoken() *tiktoken.Tiktoken {
	if c.tokenizerMode != "tiktoken" {
		return nil
	}
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			c.log.Warn("tiktoken unavailable, falling back to word tokenizer",
				zap.String("encoding", c.encoding), zap.Error(err))
			return
		}
		c.enc = enc
	})
	return c.enc
}

// EstimateTokens is the word-count heuristic (~1.3 tokens per word) used for rate limiting.
func EstimateTokens(text string) int {
	return len(strings.Fields(text)) * 13 / 10
}
