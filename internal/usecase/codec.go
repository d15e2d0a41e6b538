package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zots0127/marketadmin/internal/domain/entities"
)

// ErrMalformedBackup marks an import that could not be parsed at all
var ErrMalformedBackup = errors.New("malformed backup file")

// ImportError wraps the reason an import could not be decoded
type ImportError struct {
	Reason string
	Err    error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedBackup, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedBackup, e.Reason)
}

func (e *ImportError) Is(target error) bool {
	return target == ErrMalformedBackup
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// DefaultMaxImportBytes bounds the size of an imported backup
const DefaultMaxImportBytes int64 = 256 << 20

// filenameLayout renders Backup_Completo_<YYYY-MM-DD>_<HH-MM-SS>.json
const filenameLayout = "2006-01-02_15-04-05"

// Codec serialises snapshots to and from the backup file format
type Codec struct {
	maxBytes int64
	location *time.Location
}

// NewCodec creates a codec. Zero maxBytes uses DefaultMaxImportBytes; nil location uses UTC.
func NewCodec(maxBytes int64, location *time.Location) *Codec {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImportBytes
	}
	if location == nil {
		location = time.UTC
	}
	return &Codec{maxBytes: maxBytes, location: location}
}

// Encode writes snapshot as indented JSON
func (c *Codec) Encode(w io.Writer, snapshot *entities.BackupSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("nothing to export")
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(snapshot); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// Decode parses a backup file. The result is untrusted until validated.
func (c *Codec) Decode(r io.Reader) (*entities.BackupSnapshot, error) {
	limited := io.LimitReader(r, c.maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &ImportError{Reason: "could not read file", Err: err}
	}
	if int64(len(data)) > c.maxBytes {
		return nil, &ImportError{Reason: fmt.Sprintf("file exceeds %d bytes", c.maxBytes)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ImportError{Reason: "file is empty"}
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return nil, &ImportError{Reason: "invalid JSON", Err: err}
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, &ImportError{Reason: "unexpected data after the backup document"}
	}

	return snapshotFromDocument(doc), nil
}

// snapshotFromDocument maps a parsed document onto a snapshot. Values of the wrong
// type are recorded as defects for the validator instead of failing the import.
func snapshotFromDocument(doc interface{}) *entities.BackupSnapshot {
	snapshot := &entities.BackupSnapshot{}

	root, ok := doc.(map[string]interface{})
	if !ok {
		snapshot.AddDefect("", fmt.Sprintf("backup must be an object (got %s)", jsonType(doc)))
		return snapshot
	}

	switch v := root["created_at"].(type) {
	case nil:
	case string:
		snapshot.CreatedAt = v
	default:
		snapshot.AddDefect("created_at", fmt.Sprintf("created_at must be a string (got %s)", jsonType(v)))
	}

	if raw := root["metadata"]; raw != nil {
		decodeMetadata(snapshot, raw)
	}
	if raw := root["entities"]; raw != nil {
		decodeEntities(snapshot, raw)
	}

	return snapshot
}

func decodeMetadata(snapshot *entities.BackupSnapshot, raw interface{}) {
	fields, ok := raw.(map[string]interface{})
	if !ok {
		snapshot.AddDefect("metadata", fmt.Sprintf("metadata must be an object (got %s)", jsonType(raw)))
		return
	}

	snapshot.Metadata = make(map[string]int, len(fields))
	for _, key := range sortedKeys(fields) {
		path := "metadata." + key
		if !strings.HasPrefix(key, countPrefix) {
			snapshot.Notes = append(snapshot.Notes, path+" is not a record count and was ignored")
			continue
		}
		number, ok := fields[key].(json.Number)
		if !ok {
			snapshot.AddDefect(path, fmt.Sprintf("%s is not an integer (got %s)", path, jsonType(fields[key])))
			continue
		}
		count, err := strconv.Atoi(number.String())
		if err != nil {
			snapshot.AddDefect(path, fmt.Sprintf("%s is not an integer (got %s)", path, number))
			continue
		}
		snapshot.Metadata[key] = count
	}
}

func decodeEntities(snapshot *entities.BackupSnapshot, raw interface{}) {
	kinds, ok := raw.(map[string]interface{})
	if !ok {
		snapshot.AddDefect("entities", fmt.Sprintf("entities must be an object (got %s)", jsonType(raw)))
		return
	}

	snapshot.Entities = make(map[string][]entities.Record, len(kinds))
	for _, kind := range sortedKeys(kinds) {
		path := "entities." + kind
		switch list := kinds[kind].(type) {
		case nil:
			snapshot.Entities[kind] = nil
		case []interface{}:
			records := make([]entities.Record, 0, len(list))
			for i, item := range list {
				fields, ok := item.(map[string]interface{})
				if !ok {
					itemPath := fmt.Sprintf("%s[%d]", path, i)
					snapshot.AddDefect(itemPath, fmt.Sprintf("%s is not an object (got %s)", itemPath, jsonType(item)))
					continue
				}
				records = append(records, entities.Record(fields))
			}
			snapshot.Entities[kind] = records
		default:
			snapshot.AddDefect(path, fmt.Sprintf("%s must be an array (got %s)", path, jsonType(list)))
		}
	}
}

// countPrefix starts every metadata counter key
const countPrefix = "total_"

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// jsonType names the JSON type of a decoded value
func jsonType(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Filename returns the export file name for a snapshot created at t
func (c *Codec) Filename(t time.Time) string {
	return "Backup_Completo_" + t.In(c.location).Format(filenameLayout) + ".json"
}

// SnapshotFilename names the export of snapshot, falling back to now for a bad timestamp
func (c *Codec) SnapshotFilename(snapshot *entities.BackupSnapshot) string {
	t, err := snapshot.Timestamp()
	if err != nil {
		t = time.Now()
	}
	return c.Filename(t)
}
