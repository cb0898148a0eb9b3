// Package ingestion turns uploaded files and corpus manifests into documents
// ready for the knowledge base.
package ingestion

import (
	"errors"
	"strings"
)

var (
	// ErrUnsupportedFile is returned for uploads that are not PDFs.
	ErrUnsupportedFile = errors.New("only PDF files are supported")
	// ErrEmptyDocument is returned when a document or file has no extractable text.
	ErrEmptyDocument = errors.New("document has no text")
)

// Document is one passage to be embedded and stored.
type Document struct {
	Text     string                 `json:"text" yaml:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Validate rejects blank documents.
func (d Document) Validate() error {
	if strings.TrimSpace(d.Text) == "" {
		return ErrEmptyDocument
	}
	return nil
}
