package usecase

import (
	"time"

	"github.com/zots0127/marketadmin/internal/domain/entities"
)

// Assembler combines per-kind record sequences into a snapshot
type Assembler struct {
	now func() time.Time
}

// NewAssembler creates an assembler. A nil clock uses time.Now.
func NewAssembler(now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	return &Assembler{now: now}
}

// Assemble builds the snapshot. Counts are taken from the same slices that are stored.
func (a *Assembler) Assemble(data map[string][]entities.Record) *entities.BackupSnapshot {
	snapshot := &entities.BackupSnapshot{
		CreatedAt: a.now().UTC().Format(entities.SnapshotTimeFormat),
		Metadata:  make(map[string]int, len(data)),
		Entities:  make(map[string][]entities.Record, len(data)),
	}

	for kind, records := range data {
		seq := make([]entities.Record, len(records))
		copy(seq, records)
		snapshot.Entities[kind] = seq
		snapshot.Metadata[entities.MetadataKey(entities.Kind(kind))] = len(seq)
	}

	return snapshot
}
