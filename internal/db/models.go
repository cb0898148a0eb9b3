package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// JSONB represents a PostgreSQL jsonb column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// WorkflowRun is one answered (or failed) query
type WorkflowRun struct {
	ID        uuid.UUID      `db:"id"`
	Query     string         `db:"query"`
	QueryType string         `db:"query_type"`
	Path      pq.StringArray `db:"path"`
	Status    string         `db:"status"`

	// Evidence
	Confidence    float64        `db:"confidence"`
	RetrievedDocs int            `db:"retrieved_docs"`
	WebResults    int            `db:"web_results"`
	Reasoning     pq.StringArray `db:"reasoning"`

	// Results
	Answer       *string `db:"answer"`
	ErrorMessage *string `db:"error_message"`

	// Performance
	DurationMs  int64 `db:"duration_ms"`
	NodeTimings JSONB `db:"node_timings"`

	CreatedAt time.Time `db:"created_at"`
}
