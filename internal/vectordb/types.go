package vectordb

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRecord is returned for records without an ID or vector.
var ErrInvalidRecord = errors.New("invalid vector record")

// Record is one stored passage.
type Record struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Vector   []float32              `json:"-"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks a record before it is written.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("%w: record %s has no vector", ErrInvalidRecord, r.ID)
	}
	return nil
}

// Match is a query hit. Distance is cosine distance, 0 for identical direction.
type Match struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Distance float64                `json:"distance"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Store is a similarity index over passages. Query returns at most k matches
// ordered by ascending distance.
type Store interface {
	Name() string
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// DimensionMismatchError is returned when embedding dimensions don't match collection dimensions
type DimensionMismatchError struct {
	Collection        string
	ExpectedDimension int
	ReceivedDimension int
	SuggestedAction   string
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch for collection %s: expected %d, got %d. %s",
		e.Collection, e.ExpectedDimension, e.ReceivedDimension, e.SuggestedAction)
}

// CosineDistance returns 1 - cos(a, b). Mismatched or zero vectors are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func cloneMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
