package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

const defaultPageSize = 500

var tableName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Store keeps each entity kind as a table of JSON documents
type Store struct {
	db       *sql.DB
	idField  string
	pageSize int

	mu     sync.Mutex
	tables map[entities.Kind]bool
}

// Open opens the database at path. ":memory:" gives a private in-memory database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// NewStore creates a document store on db
func NewStore(db *sql.DB, idField string, pageSize int) *Store {
	if idField == "" {
		idField = entities.DefaultIDField
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Store{
		db:       db,
		idField:  idField,
		pageSize: pageSize,
		tables:   make(map[entities.Kind]bool),
	}
}

// IDField returns the identifier field
func (s *Store) IDField() string {
	return s.idField
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListAll reads every document of kind in insertion order, one page at a time
func (s *Store) ListAll(ctx context.Context, kind entities.Kind) ([]entities.Record, error) {
	table, err := s.ensureTable(ctx, kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT rowid, doc FROM %s WHERE rowid > ? ORDER BY rowid LIMIT ?`, table)
	records := make([]entities.Record, 0)
	var last int64
	for {
		page, next, err := s.readPage(ctx, query, last)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", kind, err)
		}
		records = append(records, page...)
		if len(page) < s.pageSize {
			return records, nil
		}
		last = next
	}
}

func (s *Store) readPage(ctx context.Context, query string, after int64) ([]entities.Record, int64, error) {
	rows, err := s.db.QueryContext(ctx, query, after, s.pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		page []entities.Record
		last int64
	)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&last, &doc); err != nil {
			return nil, 0, err
		}
		record, err := decodeRecord(doc)
		if err != nil {
			return nil, 0, fmt.Errorf("corrupt document at rowid %d: %w", last, err)
		}
		page = append(page, record)
	}
	return page, last, rows.Err()
}

// Upsert inserts the document or replaces the one with the same identifier
func (s *Store) Upsert(ctx context.Context, kind entities.Kind, record entities.Record) error {
	id, ok := record.ID(s.idField)
	if !ok {
		return repository.ErrMissingID
	}

	table, err := s.ensureTable(ctx, kind)
	if err != nil {
		return err
	}

	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`, table)
	if _, err := s.db.ExecContext(ctx, query, id, string(doc), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *Store) ensureTable(ctx context.Context, kind entities.Kind) (string, error) {
	if !tableName.MatchString(string(kind)) {
		return "", fmt.Errorf("%w: %q", repository.ErrUnknownKind, kind)
	}
	table := "entity_" + string(kind)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[kind] {
		return table, nil
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return "", fmt.Errorf("failed to create table for %s: %w", kind, err)
	}
	s.tables[kind] = true
	return table, nil
}

func decodeRecord(doc []byte) (entities.Record, error) {
	decoder := json.NewDecoder(bytes.NewReader(doc))
	decoder.UseNumber()
	var record entities.Record
	if err := decoder.Decode(&record); err != nil {
		return nil, err
	}
	return record, nil
}
