package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
	"github.com/zots0127/marketadmin/pkg/logger"
	"github.com/zots0127/marketadmin/pkg/metrics"
)

// ReadError reports which entity kind could not be read
type ReadError struct {
	Kind entities.Kind
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Kind, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// EntityReader pulls complete snapshots of every configured kind from the store
type EntityReader struct {
	store       repository.EntityStore
	kinds       []entities.Kind
	concurrency int
}

// NewEntityReader creates a reader for kinds. A concurrency below 1 reads one kind at a time.
func NewEntityReader(store repository.EntityStore, kinds []entities.Kind, concurrency int) *EntityReader {
	if len(kinds) == 0 {
		kinds = entities.RequiredKinds
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &EntityReader{
		store:       store,
		kinds:       kinds,
		concurrency: concurrency,
	}
}

// Kinds returns the kinds this reader reads, in dependency order
func (r *EntityReader) Kinds() []entities.Kind {
	return r.kinds
}

// Read fetches every kind. Any single failure fails the whole read.
func (r *EntityReader) Read(ctx context.Context, operatorID string) (map[string][]entities.Record, error) {
	ctx = entities.WithOperator(ctx, operatorID)
	start := time.Now()

	results := make([][]entities.Record, len(r.kinds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, kind := range r.kinds {
		i, kind := i, kind
		g.Go(func() error {
			records, err := r.store.ListAll(gctx, kind)
			if err != nil {
				return &ReadError{Kind: kind, Err: err}
			}
			if records == nil {
				records = []entities.Record{}
			}
			results[i] = records
			metrics.RecordsRead.WithLabelValues(string(kind)).Add(float64(len(records)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error(err, "Entity read failed", map[string]interface{}{
			"operator": operatorID,
		})
		return nil, err
	}

	out := make(map[string][]entities.Record, len(r.kinds))
	for i, kind := range r.kinds {
		out[string(kind)] = results[i]
	}

	metrics.ReadDuration.Observe(time.Since(start).Seconds())
	logger.Debug("Entity read completed", map[string]interface{}{
		"operator": operatorID,
		"kinds":    len(r.kinds),
		"took":     time.Since(start).String(),
	})

	return out, nil
}
