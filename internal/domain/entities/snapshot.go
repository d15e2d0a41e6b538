package entities

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind names a collection of entity records in the backing store
type Kind string

// Built-in entity kinds, parents before children
const (
	KindProfiles      Kind = "profiles"
	KindMedia         Kind = "media"
	KindVerifications Kind = "verifications"
	KindReports       Kind = "reports"
	KindConversations Kind = "conversations"
	KindMessages      Kind = "messages"
	KindNotifications Kind = "notifications"

	// Optional kinds, read only when enabled in configuration
	KindViews    Kind = "views"
	KindClicks   Kind = "clicks"
	KindSettings Kind = "settings"
)

// RequiredKinds are the kinds every backup file must carry
var RequiredKinds = []Kind{
	KindProfiles,
	KindMedia,
	KindVerifications,
	KindReports,
	KindConversations,
	KindMessages,
	KindNotifications,
}

// OptionalKinds can be added to the configured kind list
var OptionalKinds = []Kind{KindViews, KindClicks, KindSettings}

// DefaultIDField is the identifier field records are keyed on
const DefaultIDField = "id"

// SnapshotTimeFormat is the layout used for created_at
const SnapshotTimeFormat = time.RFC3339Nano

// MetadataKey returns the metadata counter name for a kind
func MetadataKey(kind Kind) string {
	return "total_" + string(kind)
}

// IsKnownKind reports whether kind is one of the built-in kinds
func IsKnownKind(kind Kind) bool {
	for _, k := range RequiredKinds {
		if k == kind {
			return true
		}
	}
	for _, k := range OptionalKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Record is an opaque document. Values are plain JSON values.
type Record map[string]interface{}

// ID returns the identifier stored under field as a string
func (r Record) ID(field string) (string, bool) {
	raw, ok := r[field]
	if !ok || raw == nil {
		return "", false
	}

	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case json.Number:
		return v.String(), true
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case Record:
		return t.Clone()
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// Normalized returns a deep copy holding only plain JSON values, with numbers as json.Number
func (r Record) Normalized() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = NormalizeValue(v)
	}
	return out
}

// NormalizeValue converts a Go or driver value to the shape a JSON decode would produce
func NormalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, string, bool, json.Number:
		return t
	case int:
		return json.Number(strconv.Itoa(t))
	case int8:
		return json.Number(strconv.FormatInt(int64(t), 10))
	case int16:
		return json.Number(strconv.FormatInt(int64(t), 10))
	case int32:
		return json.Number(strconv.FormatInt(int64(t), 10))
	case int64:
		return json.Number(strconv.FormatInt(t, 10))
	case uint:
		return json.Number(strconv.FormatUint(uint64(t), 10))
	case uint8:
		return json.Number(strconv.FormatUint(uint64(t), 10))
	case uint16:
		return json.Number(strconv.FormatUint(uint64(t), 10))
	case uint32:
		return json.Number(strconv.FormatUint(uint64(t), 10))
	case uint64:
		return json.Number(strconv.FormatUint(t, 10))
	case float32:
		return json.Number(strconv.FormatFloat(float64(t), 'f', -1, 32))
	case float64:
		return json.Number(strconv.FormatFloat(t, 'f', -1, 64))
	case time.Time:
		return t.UTC().Format(SnapshotTimeFormat)
	case []byte:
		return string(t)
	case Record:
		return map[string]interface{}(t.Normalized())
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = NormalizeValue(inner)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = NormalizeValue(inner)
		}
		return s
	case []string:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = inner
		}
		return s
	default:
		return fmt.Sprint(t)
	}
}

// BackupSnapshot is the full-system backup document.
// CreatedAt keeps the wire string so that a file with a bad timestamp can still be
// decoded and reported by validation. A nil Metadata or Entities means the key was absent.
type BackupSnapshot struct {
	CreatedAt string              `json:"created_at"`
	Metadata  map[string]int      `json:"metadata"`
	Entities  map[string][]Record `json:"entities"`

	// Defects are wrongly typed values found while decoding an import, in document order.
	// The offending values are left out of the fields above.
	Defects []Defect `json:"-"`
	// Notes are decoder remarks that do not block a restore
	Notes []string `json:"-"`
}

// Defect is a value of the wrong JSON type at Path
type Defect struct {
	Path    string
	Message string
}

// AddDefect records a type problem at path
func (s *BackupSnapshot) AddDefect(path, message string) {
	s.Defects = append(s.Defects, Defect{Path: path, Message: message})
}

// HasDefect reports whether a defect was recorded exactly at path
func (s *BackupSnapshot) HasDefect(path string) bool {
	for _, d := range s.Defects {
		if d.Path == path {
			return true
		}
	}
	return false
}

// DefectsUnder counts the defects whose path starts with prefix
func (s *BackupSnapshot) DefectsUnder(prefix string) int {
	n := 0
	for _, d := range s.Defects {
		if strings.HasPrefix(d.Path, prefix) {
			n++
		}
	}
	return n
}

// Timestamp parses CreatedAt
func (s *BackupSnapshot) Timestamp() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s.CreatedAt)
}

// Kinds returns the entity kinds present in the snapshot, sorted by name
func (s *BackupSnapshot) Kinds() []Kind {
	kinds := make([]Kind, 0, len(s.Entities))
	for k := range s.Entities {
		kinds = append(kinds, Kind(k))
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Count returns the number of records held for kind
func (s *BackupSnapshot) Count(kind Kind) int {
	return len(s.Entities[string(kind)])
}

// TotalRecords returns the number of records across all kinds
func (s *BackupSnapshot) TotalRecords() int {
	total := 0
	for _, records := range s.Entities {
		total += len(records)
	}
	return total
}

// ValidationResult is the outcome of structural validation
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}
