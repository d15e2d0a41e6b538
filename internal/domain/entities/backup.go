package entities

import (
	"context"
	"fmt"
	"time"
)

// OperationType identifies a backup subsystem operation in history
type OperationType string

const (
	OperationBackup  OperationType = "backup"
	OperationImport  OperationType = "import"
	OperationRestore OperationType = "restore"
)

// RestoreResult reports the outcome of a restore run
type RestoreResult struct {
	ID          string         `json:"id"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Success     bool           `json:"success"`
	Errors      []string       `json:"errors"`
	Restored    map[string]int `json:"restored"`
	Failed      map[string]int `json:"failed"`
	Skipped     int            `json:"skipped,omitempty"`
}

// RestoreFailure describes one record that could not be restored
type RestoreFailure struct {
	Kind  Kind
	Index int
	ID    string
	Err   error
}

func (f RestoreFailure) String() string {
	id := f.ID
	if id == "" {
		id = "<none>"
	}
	return fmt.Sprintf("%s[%d] id=%s: %v", f.Kind, f.Index, id, f.Err)
}

// HistoryEntry summarises a backup, import or restore run. No record data is kept.
type HistoryEntry struct {
	ID                string         `json:"id"`
	Operation         OperationType  `json:"operation"`
	Operator          string         `json:"operator"`
	CreatedAt         time.Time      `json:"created_at"`
	SnapshotCreatedAt string         `json:"snapshot_created_at,omitempty"`
	Metadata          map[string]int `json:"metadata,omitempty"`
	Success           bool           `json:"success"`
	Errors            []string       `json:"errors,omitempty"`
}

// Clone returns a copy that shares no maps or slices with e
func (e *HistoryEntry) Clone() *HistoryEntry {
	cp := *e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]int, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	if e.Errors != nil {
		cp.Errors = append([]string(nil), e.Errors...)
	}
	return &cp
}

type operatorKey struct{}

// WithOperator attaches the authenticated operator id to ctx
func WithOperator(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operatorID)
}

// OperatorFromContext returns the operator id attached by WithOperator
func OperatorFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(operatorKey{}).(string); ok {
		return id
	}
	return ""
}
