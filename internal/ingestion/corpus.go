package ingestion

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Corpus is a YAML manifest of seed documents.
type Corpus struct {
	Name      string     `yaml:"name"`
	Documents []Document `yaml:"documents"`
}

// LoadCorpus reads a corpus manifest from path.
func LoadCorpus(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	return ParseCorpus(f)
}

// ParseCorpus decodes a manifest and validates every document.
func ParseCorpus(r io.Reader) (*Corpus, error) {
	var c Corpus
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	for i, d := range c.Documents {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
	}
	return &c, nil
}
