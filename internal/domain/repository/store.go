package repository

import (
	"context"
	"errors"

	"github.com/zots0127/marketadmin/internal/domain/entities"
)

// EntityStore is the capability every backing store exposes to the backup subsystem
type EntityStore interface {
	// ListAll returns every record of kind, exhausting pagination internally
	ListAll(ctx context.Context, kind entities.Kind) ([]entities.Record, error)

	// Upsert creates the record if absent and replaces it if present, keyed by IDField
	Upsert(ctx context.Context, kind entities.Kind, record entities.Record) error

	// IDField names the identifier field records are keyed on
	IDField() string
}

// Store errors shared by all adapters
var (
	ErrMissingID        = errors.New("record has no identifier")
	ErrUnknownKind      = errors.New("unknown entity kind")
	ErrStoreUnavailable = errors.New("backing store unavailable")
)

// HistoryRepository keeps summaries of recent backup subsystem runs
type HistoryRepository interface {
	Add(ctx context.Context, entry *entities.HistoryEntry) error
	List(ctx context.Context, limit int) ([]*entities.HistoryEntry, error)
	Get(ctx context.Context, id string) (*entities.HistoryEntry, error)
}

// ErrHistoryNotFound is returned when a history entry does not exist
var ErrHistoryNotFound = errors.New("history entry not found")
