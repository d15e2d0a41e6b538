package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
	"github.com/zots0127/marketadmin/pkg/logger"
	"github.com/zots0127/marketadmin/pkg/metrics"
)

// ErrOperationInProgress is returned when the operator already has a backup or restore running
var ErrOperationInProgress = errors.New("a backup or restore is already running for this operator")

// BackupUseCase handles backup business logic
type BackupUseCase struct {
	reader    *EntityReader
	assembler *Assembler
	validator *Validator
	restorer  *Restorer
	codec     *Codec
	history   repository.HistoryRepository

	mu       sync.Mutex
	inFlight map[string]entities.OperationType
	now      func() time.Time
}

// NewBackupUseCase creates a new backup use case
func NewBackupUseCase(
	reader *EntityReader,
	assembler *Assembler,
	validator *Validator,
	restorer *Restorer,
	codec *Codec,
	history repository.HistoryRepository,
) *BackupUseCase {
	return &BackupUseCase{
		reader:    reader,
		assembler: assembler,
		validator: validator,
		restorer:  restorer,
		codec:     codec,
		history:   history,
		inFlight:  make(map[string]entities.OperationType),
		now:       time.Now,
	}
}

// CreateBackup reads every entity kind and assembles a snapshot
func (b *BackupUseCase) CreateBackup(ctx context.Context, operatorID string) (*entities.BackupSnapshot, error) {
	release, err := b.acquire(operatorID, entities.OperationBackup)
	if err != nil {
		return nil, err
	}
	defer release()

	data, err := b.reader.Read(ctx, operatorID)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("failure").Inc()
		b.record(ctx, &entities.HistoryEntry{
			Operation: entities.OperationBackup,
			Operator:  operatorID,
			Errors:    []string{err.Error()},
		})
		return nil, fmt.Errorf("failed to create backup: %w", err)
	}

	snapshot := b.assembler.Assemble(data)
	metrics.SnapshotsTotal.WithLabelValues("success").Inc()

	b.record(ctx, &entities.HistoryEntry{
		Operation:         entities.OperationBackup,
		Operator:          operatorID,
		SnapshotCreatedAt: snapshot.CreatedAt,
		Metadata:          copyCounts(snapshot.Metadata),
		Success:           true,
	})

	logger.Info("Backup created", map[string]interface{}{
		"operator": operatorID,
		"records":  snapshot.TotalRecords(),
	})

	return snapshot, nil
}

// ExportBackup writes a snapshot in the backup file format
func (b *BackupUseCase) ExportBackup(ctx context.Context, snapshot *entities.BackupSnapshot, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.codec.Encode(w, snapshot)
}

// ExportFilename returns the download name for a snapshot
func (b *BackupUseCase) ExportFilename(snapshot *entities.BackupSnapshot) string {
	return b.codec.SnapshotFilename(snapshot)
}

// ImportBackup decodes an uploaded backup file and validates it.
// A file that cannot be parsed is an error; structural problems are reported in the result.
func (b *BackupUseCase) ImportBackup(ctx context.Context, operatorID string, r io.Reader) (*entities.BackupSnapshot, entities.ValidationResult, error) {
	snapshot, err := b.codec.Decode(r)
	if err != nil {
		b.record(ctx, &entities.HistoryEntry{
			Operation: entities.OperationImport,
			Operator:  operatorID,
			Errors:    []string{err.Error()},
		})
		return nil, entities.ValidationResult{}, err
	}

	result := b.validator.Validate(snapshot)
	b.record(ctx, &entities.HistoryEntry{
		Operation:         entities.OperationImport,
		Operator:          operatorID,
		SnapshotCreatedAt: snapshot.CreatedAt,
		Metadata:          copyCounts(snapshot.Metadata),
		Success:           result.Valid,
		Errors:            result.Errors,
	})

	return snapshot, result, nil
}

// ValidateBackup runs structural validation only
func (b *BackupUseCase) ValidateBackup(snapshot *entities.BackupSnapshot) entities.ValidationResult {
	return b.validator.Validate(snapshot)
}

// RestoreBackup writes every record of snapshot back to the store
func (b *BackupUseCase) RestoreBackup(ctx context.Context, operatorID string, snapshot *entities.BackupSnapshot) (*entities.RestoreResult, error) {
	release, err := b.acquire(operatorID, entities.OperationRestore)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx = entities.WithOperator(ctx, operatorID)

	result, err := b.restorer.Restore(ctx, snapshot)
	if errors.Is(err, ErrInvalidSnapshot) {
		metrics.RestoreRuns.WithLabelValues("rejected").Inc()
		b.record(ctx, &entities.HistoryEntry{
			Operation: entities.OperationRestore,
			Operator:  operatorID,
			Errors:    []string{err.Error()},
		})
		return nil, err
	}

	entry := &entities.HistoryEntry{
		Operation:         entities.OperationRestore,
		Operator:          operatorID,
		SnapshotCreatedAt: snapshot.CreatedAt,
		Metadata:          copyCounts(snapshot.Metadata),
	}
	if result != nil {
		entry.Success = result.Success
		entry.Errors = result.Errors
	}
	// the run may have been cancelled, but the history should still say what happened
	b.record(context.WithoutCancel(ctx), entry)

	if err != nil {
		return result, fmt.Errorf("restore interrupted: %w", err)
	}

	logger.Info("Restore finished", map[string]interface{}{
		"operator": operatorID,
		"success":  result.Success,
		"failures": len(result.Errors),
	})

	return result, nil
}

// ListHistory returns the most recent runs, newest first
func (b *BackupUseCase) ListHistory(ctx context.Context, limit int) ([]*entities.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return b.history.List(ctx, limit)
}

// GetHistory returns a single history entry
func (b *BackupUseCase) GetHistory(ctx context.Context, id string) (*entities.HistoryEntry, error) {
	return b.history.Get(ctx, id)
}

// Running reports whether operatorID has an operation in flight
func (b *BackupUseCase) Running(operatorID string) (entities.OperationType, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	op, ok := b.inFlight[operatorID]
	return op, ok
}

func (b *BackupUseCase) acquire(operatorID string, op entities.OperationType) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if running, ok := b.inFlight[operatorID]; ok {
		logger.Warn("Rejected concurrent operation", map[string]interface{}{
			"operator":  operatorID,
			"requested": op,
			"running":   running,
		})
		return nil, ErrOperationInProgress
	}
	b.inFlight[operatorID] = op

	return func() {
		b.mu.Lock()
		delete(b.inFlight, operatorID)
		b.mu.Unlock()
	}, nil
}

func (b *BackupUseCase) record(ctx context.Context, entry *entities.HistoryEntry) {
	if b.history == nil {
		return
	}
	entry.ID = uuid.New().String()
	entry.CreatedAt = b.now().UTC()
	if err := b.history.Add(ctx, entry); err != nil {
		logger.Error(err, "Failed to record history", map[string]interface{}{
			"operation": entry.Operation,
			"operator":  entry.Operator,
		})
	}
}

func copyCounts(counts map[string]int) map[string]int {
	if counts == nil {
		return nil
	}
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
