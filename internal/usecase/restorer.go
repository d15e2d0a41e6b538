package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
	"github.com/zots0127/marketadmin/pkg/logger"
	"github.com/zots0127/marketadmin/pkg/metrics"
)

// ErrInvalidSnapshot is returned when a restore is attempted with a snapshot that fails validation
var ErrInvalidSnapshot = errors.New("backup failed validation")

// Restorer replays a validated snapshot into the store, record by record.
// A failing record never aborts the run; it is reported in the result.
type Restorer struct {
	store     repository.EntityStore
	validator *Validator
	order     []entities.Kind
	now       func() time.Time
}

// NewRestorer creates a restorer writing kinds in order
func NewRestorer(store repository.EntityStore, validator *Validator, order []entities.Kind) *Restorer {
	if len(order) == 0 {
		order = entities.RequiredKinds
	}
	return &Restorer{
		store:     store,
		validator: validator,
		order:     order,
		now:       time.Now,
	}
}

// Restore upserts every record of snapshot. The snapshot itself is never modified.
// When ctx is cancelled between records the partial result is returned with ctx.Err().
func (r *Restorer) Restore(ctx context.Context, snapshot *entities.BackupSnapshot) (*entities.RestoreResult, error) {
	validation := r.validator.Validate(snapshot)
	if !validation.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSnapshot, strings.Join(validation.Errors, "; "))
	}

	result := &entities.RestoreResult{
		ID:        uuid.New().String(),
		StartedAt: r.now().UTC(),
		Errors:    make([]string, 0),
		Restored:  make(map[string]int),
		Failed:    make(map[string]int),
	}

	idField := r.store.IDField()
	if idField == "" {
		idField = entities.DefaultIDField
	}

	kinds := restoreOrder(r.order, snapshot)
	remaining := snapshot.TotalRecords()

	var cancelErr error
	for _, kind := range kinds {
		records := snapshot.Entities[string(kind)]
		for i, record := range records {
			if err := ctx.Err(); err != nil {
				cancelErr = err
				break
			}

			r.restoreRecord(ctx, kind, i, record, idField, result)
			remaining--
		}
		if cancelErr != nil {
			break
		}
	}

	if cancelErr != nil {
		result.Skipped = remaining
		result.Errors = append(result.Errors, fmt.Sprintf("restore cancelled: %d records not processed", remaining))
		logger.Warn("Restore cancelled", map[string]interface{}{
			"restore_id": result.ID,
			"skipped":    remaining,
		})
	}

	result.CompletedAt = r.now().UTC()
	result.Success = len(result.Errors) == 0

	outcome := "success"
	if !result.Success {
		outcome = "partial"
	}
	metrics.RestoreRuns.WithLabelValues(outcome).Inc()
	metrics.RestoreDuration.Observe(result.CompletedAt.Sub(result.StartedAt).Seconds())

	return result, cancelErr
}

func (r *Restorer) restoreRecord(ctx context.Context, kind entities.Kind, index int, record entities.Record, idField string, result *entities.RestoreResult) {
	id, ok := record.ID(idField)
	if !ok {
		r.fail(result, entities.RestoreFailure{
			Kind:  kind,
			Index: index,
			Err:   fmt.Errorf("%w: field %q", repository.ErrMissingID, idField),
		})
		return
	}

	if err := r.store.Upsert(ctx, kind, record.Clone()); err != nil {
		r.fail(result, entities.RestoreFailure{Kind: kind, Index: index, ID: id, Err: err})
		return
	}

	result.Restored[string(kind)]++
	metrics.RestoreRecords.WithLabelValues(string(kind), "restored").Inc()
}

func (r *Restorer) fail(result *entities.RestoreResult, failure entities.RestoreFailure) {
	result.Failed[string(failure.Kind)]++
	result.Errors = append(result.Errors, failure.String())
	metrics.RestoreRecords.WithLabelValues(string(failure.Kind), "failed").Inc()
	logger.Warn("Record restore failed", map[string]interface{}{
		"kind":  failure.Kind,
		"index": failure.Index,
		"id":    failure.ID,
		"error": failure.Err.Error(),
	})
}
