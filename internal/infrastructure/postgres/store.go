package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
	"github.com/zots0127/marketadmin/pkg/logger"
)

const defaultPageSize = 1000

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Open connects to the database behind the table API
func Open(dsn string, maxOpen, maxIdle int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// Store reads and writes entity kinds as plain tables, one row per record
type Store struct {
	db       *gorm.DB
	idField  string
	pageSize int
}

// NewStore creates a table-backed store
func NewStore(db *gorm.DB, idField string, pageSize int) *Store {
	if idField == "" {
		idField = entities.DefaultIDField
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Store{db: db, idField: idField, pageSize: pageSize}
}

// IDField returns the identifier column
func (s *Store) IDField() string {
	return s.idField
}

// Ping checks the connection pool
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ListAll pages through the table ordered by identifier
func (s *Store) ListAll(ctx context.Context, kind entities.Kind) ([]entities.Record, error) {
	if !identifier.MatchString(string(kind)) {
		return nil, fmt.Errorf("%w: %q", repository.ErrUnknownKind, kind)
	}

	records := make([]entities.Record, 0)
	for offset := 0; ; offset += s.pageSize {
		rows, err := s.page(ctx, kind, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", kind, err)
		}

		for _, row := range rows {
			records = append(records, normalizeRow(row))
		}
		if len(rows) < s.pageSize {
			return records, nil
		}
	}
}

func (s *Store) page(ctx context.Context, kind entities.Kind, offset int) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	err := s.db.WithContext(ctx).
		Table(string(kind)).
		Order(clause.OrderByColumn{Column: clause.Column{Name: s.idField}}).
		Limit(s.pageSize).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}

// Upsert inserts the row or updates every column of the existing one
func (s *Store) Upsert(ctx context.Context, kind entities.Kind, record entities.Record) error {
	if !identifier.MatchString(string(kind)) {
		return fmt.Errorf("%w: %q", repository.ErrUnknownKind, kind)
	}
	id, ok := record.ID(s.idField)
	if !ok {
		return repository.ErrMissingID
	}

	values, columns, err := toRow(record, s.idField)
	if err != nil {
		return err
	}

	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: s.idField}}}
	if len(columns) == 0 {
		onConflict.DoNothing = true
	} else {
		onConflict.DoUpdates = clause.AssignmentColumns(columns)
	}

	err = s.db.WithContext(ctx).Table(string(kind)).Clauses(onConflict).Create(values).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %s %s: %w", kind, id, err)
	}
	return nil
}

// normalizeRow turns driver values into plain JSON values
func normalizeRow(row map[string]interface{}) entities.Record {
	record := make(entities.Record, len(row))
	for k, v := range row {
		record[k] = entities.NormalizeValue(v)
	}
	return record
}

// toRow converts a record to column values and lists the non-key columns, sorted
func toRow(record entities.Record, idField string) (map[string]interface{}, []string, error) {
	values := make(map[string]interface{}, len(record))
	columns := make([]string, 0, len(record))

	for k, v := range record {
		if !identifier.MatchString(k) {
			return nil, nil, fmt.Errorf("invalid column name %q", k)
		}
		cv, err := columnValue(v)
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", k, err)
		}
		values[k] = cv
		if k != idField {
			columns = append(columns, k)
		}
	}

	sort.Strings(columns)
	return values, columns, nil
}

func columnValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	case map[string]interface{}, []interface{}, entities.Record:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	default:
		return t, nil
	}
}
