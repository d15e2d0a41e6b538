package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

// Store is an in-process EntityStore keeping records in insertion order
type Store struct {
	mu      sync.RWMutex
	idField string
	data    map[entities.Kind]map[string]entities.Record
	order   map[entities.Kind][]string
	writes  int

	listErrs   map[entities.Kind]error
	upsertErrs map[string]error
}

// NewStore creates an empty store keyed on idField
func NewStore(idField string) *Store {
	if idField == "" {
		idField = entities.DefaultIDField
	}
	return &Store{
		idField:    idField,
		data:       make(map[entities.Kind]map[string]entities.Record),
		order:      make(map[entities.Kind][]string),
		listErrs:   make(map[entities.Kind]error),
		upsertErrs: make(map[string]error),
	}
}

// IDField returns the identifier field
func (s *Store) IDField() string {
	return s.idField
}

// ListAll returns copies of every record of kind
func (s *Store) ListAll(ctx context.Context, kind entities.Kind) ([]entities.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.listErrs[kind]; err != nil {
		return nil, err
	}

	ids := s.order[kind]
	out := make([]entities.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.data[kind][id].Clone())
	}
	return out, nil
}

// Upsert creates or replaces the record with the same identifier
func (s *Store) Upsert(ctx context.Context, kind entities.Kind, record entities.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, ok := record.ID(s.idField)
	if !ok {
		return repository.ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.upsertErrs[failureKey(kind, id)]; err != nil {
		return err
	}

	if s.data[kind] == nil {
		s.data[kind] = make(map[string]entities.Record)
	}
	if _, exists := s.data[kind][id]; !exists {
		s.order[kind] = append(s.order[kind], id)
	}
	s.data[kind][id] = record.Normalized()
	s.writes++
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Seed inserts records without counting them as writes
func (s *Store) Seed(kind entities.Kind, records ...entities.Record) {
	for _, r := range records {
		if err := s.Upsert(context.Background(), kind, r); err != nil {
			panic(fmt.Sprintf("memory: seed %s: %v", kind, err))
		}
	}
	s.mu.Lock()
	s.writes -= len(records)
	if _, ok := s.order[kind]; !ok {
		s.order[kind] = []string{}
	}
	s.mu.Unlock()
}

// FailList makes ListAll for kind return err
func (s *Store) FailList(kind entities.Kind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErrs[kind] = err
}

// FailUpsert makes Upsert of the record kind/id return err
func (s *Store) FailUpsert(kind entities.Kind, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertErrs[failureKey(kind, id)] = err
}

// Count returns the number of records of kind
func (s *Store) Count(kind entities.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order[kind])
}

// Writes returns the number of successful upserts since creation
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Get returns a copy of one record
func (s *Store) Get(kind entities.Kind, id string) (entities.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[kind][id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func failureKey(kind entities.Kind, id string) string {
	return string(kind) + "/" + id
}
