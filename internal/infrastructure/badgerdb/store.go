package badgerdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

const docKeyPrefix = "doc:"

// ErrClosed is returned once the database has been closed
var ErrClosed = errors.New("document database is closed")

// Open opens a badger database in dir. An empty dir keeps everything in memory.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// Store keeps records as JSON documents under doc:<kind>:<id>
type Store struct {
	db      *badger.DB
	idField string
}

// NewStore creates a document store on db
func NewStore(db *badger.DB, idField string) *Store {
	if idField == "" {
		idField = entities.DefaultIDField
	}
	return &Store{db: db, idField: idField}
}

// IDField returns the identifier field
func (s *Store) IDField() string {
	return s.idField
}

// Ping reports whether the database is still open
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return ctx.Err()
}

// ListAll iterates every document of kind in identifier order
func (s *Store) ListAll(ctx context.Context, kind entities.Kind) ([]entities.Record, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}

	records := make([]entities.Record, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := kindPrefix(kind)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				record, err := decodeRecord(val)
				if err != nil {
					return fmt.Errorf("decode %s: %w", item.Key(), err)
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return records, nil
}

// Upsert writes the document, replacing any previous version
func (s *Store) Upsert(ctx context.Context, kind entities.Kind, record entities.Record) error {
	if err := validKind(kind); err != nil {
		return err
	}
	id, ok := record.ID(s.idField)
	if !ok {
		return repository.ErrMissingID
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(docKey(kind, id), data); err != nil {
			return fmt.Errorf("set %s/%s: %w", kind, id, err)
		}
		return nil
	})
}

func validKind(kind entities.Kind) error {
	if kind == "" || strings.Contains(string(kind), ":") {
		return fmt.Errorf("%w: %q", repository.ErrUnknownKind, kind)
	}
	return nil
}

func kindPrefix(kind entities.Kind) []byte {
	return []byte(docKeyPrefix + string(kind) + ":")
}

func docKey(kind entities.Kind, id string) []byte {
	return append(kindPrefix(kind), id...)
}

func decodeRecord(val []byte) (entities.Record, error) {
	decoder := json.NewDecoder(bytes.NewReader(val))
	decoder.UseNumber()
	var record entities.Record
	if err := decoder.Decode(&record); err != nil {
		return nil, err
	}
	return record, nil
}
