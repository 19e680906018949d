// Package core provides the business logic for vehicle CSV imports.
// This package has no UI or storage driver dependencies and can be used by any frontend.
package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// FieldType represents the semantic type of a column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldInteger
	FieldDecimal
	FieldDate
	FieldBool
)

// String returns the lowercase type name used in schema exports and errors.
func (t FieldType) String() string {
	switch t {
	case FieldInteger:
		return "integer"
	case FieldDecimal:
		return "decimal"
	case FieldDate:
		return "date"
	case FieldBool:
		return "boolean"
	default:
		return "text"
	}
}

// FieldSpec defines the classification of a single column.
type FieldSpec struct {
	Name     string    // Column name (header name and DB column are identical)
	Type     FieldType // Semantic type used by the normalizer
	Required bool      // Column must exist in the CSV header
	Size     int       // Max length for text columns (0 = unbounded)
}

// TableInfo contains display information about a table.
type TableInfo struct {
	Key   string // Unique identifier and SQL table name: "cars"
	Group string // Data source: "Dealer", "Classifieds"
	Label string // Display name

	// IdentityKeys lists the natural identifier columns in priority order.
	// The first key present in a record decides identity; later keys are
	// only consulted when earlier ones are absent.
	IdentityKeys []string
}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// TableDefinition contains everything needed to import into a table.
type TableDefinition struct {
	Info       TableInfo
	FieldSpecs []FieldSpec

	// Stamped tables receive username and token columns on every row.
	Stamped bool
}

// Schema builds the column classifier for the table.
func (t TableDefinition) Schema() *Schema {
	return NewSchema(t.FieldSpecs)
}

// RequiredColumns returns the columns that must appear in the header.
func (t TableDefinition) RequiredColumns() []string {
	var cols []string
	for _, spec := range t.FieldSpecs {
		if spec.Required {
			cols = append(cols, spec.Name)
		}
	}
	return cols
}

// Record is a normalized row: column name to typed value.
// Values are int64, float64, or string (ISO dates, '0'/'1' flags, text).
// Absent columns have no key.
type Record map[string]any

// Match is an equality predicate on a single column.
type Match struct {
	Column string
	Value  any
}

// Tx is the transactional storage collaborator used by an import batch.
// Implementations must give read-your-writes visibility inside the transaction.
type Tx interface {
	Insert(ctx context.Context, table string, rec Record) error
	Update(ctx context.Context, table string, rec Record, match Match) error
	Count(ctx context.Context, table string, match Match) (int, error)

	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens import transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// RunLog persists import run summaries.
type RunLog interface {
	RecordRun(ctx context.Context, run ImportRun) error
	ListRuns(ctx context.Context, limit int) ([]ImportRun, error)
	FindRunByChecksum(ctx context.Context, table, checksum string) (ImportRun, bool, error)
}

// Outcome is the result of applying one record.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Phase indicates the current stage of a batch.
type Phase string

const (
	PhaseOpening          Phase = "opening"
	PhaseHeaderValidation Phase = "header_validation"
	PhaseRowLoop          Phase = "row_loop"
	PhaseCommitting       Phase = "committing"
	PhaseDone             Phase = "done"
	PhaseRollingBack      Phase = "rolling_back"
	PhaseFailed           Phase = "failed"
)

// Progress represents the current state of an import batch.
type Progress struct {
	ImportID  string
	TableKey  string
	Phase     Phase
	Row       int
	Created   int
	Updated   int
	Failed    int
	BytesRead int64
	Percent   int // share of the file read; 0 when the size is unknown
}

// ProgressCallback is called on phase changes and periodically during the row loop.
type ProgressCallback func(Progress)

// RowError describes a row that failed to import.
type RowError struct {
	Line   int // 1-based; the header is row 1
	Reason string
	Data   []string
}

func (e RowError) String() string {
	return fmt.Sprintf("row %d: %s", e.Line, e.Reason)
}

// Result contains the summary of a committed batch.
type Result struct {
	ImportID  string        `json:"importId"`
	TableKey  string        `json:"table"`
	FileName  string        `json:"fileName"`
	Checksum  string        `json:"checksum"`
	TotalRows int           `json:"totalRows"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Header    []string      `json:"-"`
	RowErrors []RowError    `json:"-"`
	Duration  time.Duration `json:"duration"`
}

// Errors returns the row errors as ordered, human-readable messages.
func (r *Result) Errors() []string {
	msgs := make([]string, len(r.RowErrors))
	for i, e := range r.RowErrors {
		msgs[i] = e.String()
	}
	return msgs
}

// WriteFailedRows writes the failed rows as CSV: a _line and an _error column
// followed by the raw cells under the file's own header.
func (r *Result) WriteFailedRows(w io.Writer, comma rune) error {
	cw := csv.NewWriter(w)
	if comma != 0 {
		cw.Comma = comma
	}

	if err := cw.Write(append([]string{"_line", "_error"}, r.Header...)); err != nil {
		return fmt.Errorf("write failed rows header: %w", err)
	}
	for _, e := range r.RowErrors {
		record := append([]string{strconv.Itoa(e.Line), e.Reason}, e.Data...)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write failed row %d: %w", e.Line, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Run status values stored in the import log.
const (
	RunCommitted = "committed"
	RunFailed    = "failed"
)

// ImportRun is the persisted summary of one batch.
type ImportRun struct {
	ID         string    `json:"id" yaml:"id"`
	TableKey   string    `json:"table" yaml:"table"`
	FileName   string    `json:"fileName" yaml:"file_name"`
	Checksum   string    `json:"checksum" yaml:"checksum"`
	Created    int       `json:"created" yaml:"created"`
	Updated    int       `json:"updated" yaml:"updated"`
	Failed     int       `json:"failed" yaml:"failed"`
	Skipped    int       `json:"skipped" yaml:"skipped"`
	Status     string    `json:"status" yaml:"status"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt" yaml:"started_at"`
	FinishedAt time.Time `json:"finishedAt" yaml:"finished_at"`
}
