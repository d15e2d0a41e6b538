package usecase

import (
	"fmt"
	"sort"

	"github.com/zots0127/marketadmin/internal/domain/entities"
)

// Validator decides whether a candidate snapshot is structurally safe to restore.
// Every problem is collected; validation never stops at the first failure.
type Validator struct {
	expected []entities.Kind
	idField  string
}

// NewValidator creates a validator expecting kinds. Required kinds are always expected.
func NewValidator(kinds []entities.Kind, idField string) *Validator {
	if idField == "" {
		idField = entities.DefaultIDField
	}
	return &Validator{
		expected: mergeKinds(entities.RequiredKinds, kinds),
		idField:  idField,
	}
}

// ExpectedKinds returns the kinds a snapshot must carry
func (v *Validator) ExpectedKinds() []entities.Kind {
	return v.expected
}

// Validate checks presence of metadata and entities, expected kinds, counts and created_at
func (v *Validator) Validate(snapshot *entities.BackupSnapshot) entities.ValidationResult {
	result := entities.ValidationResult{
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
	}

	if snapshot == nil {
		result.Errors = append(result.Errors, "backup is empty")
		return result
	}

	// 0. values that had the wrong type on the wire
	for _, defect := range snapshot.Defects {
		result.Errors = append(result.Errors, defect.Message)
	}
	result.Warnings = append(result.Warnings, snapshot.Notes...)

	// 1. top-level sections
	if snapshot.Metadata == nil && !snapshot.HasDefect("metadata") {
		result.Errors = append(result.Errors, "metadata is missing")
	}
	if snapshot.Entities == nil && !snapshot.HasDefect("entities") {
		result.Errors = append(result.Errors, "entities is missing")
	}

	// 2. expected kinds
	if !snapshot.HasDefect("entities") {
		for _, kind := range v.expected {
			if _, ok := snapshot.Entities[string(kind)]; !ok && !snapshot.HasDefect("entities."+string(kind)) {
				result.Errors = append(result.Errors, fmt.Sprintf("entities.%s is missing", kind))
			}
		}
	}

	// 3. counts, for every expected or present kind
	for _, kind := range v.countedKinds(snapshot) {
		v.checkCount(snapshot, kind, &result)
	}

	// 4. timestamp
	if !snapshot.HasDefect("created_at") {
		if snapshot.CreatedAt == "" {
			result.Errors = append(result.Errors, "created_at is missing")
		} else if _, err := snapshot.Timestamp(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("created_at %q is not a valid timestamp", snapshot.CreatedAt))
		}
	}

	v.collectWarnings(snapshot, &result)

	result.Valid = len(result.Errors) == 0
	return result
}

func (v *Validator) countedKinds(snapshot *entities.BackupSnapshot) []entities.Kind {
	return mergeKinds(v.expected, snapshot.Kinds())
}

func (v *Validator) checkCount(snapshot *entities.BackupSnapshot, kind entities.Kind, result *entities.ValidationResult) {
	if snapshot.Metadata == nil {
		return
	}

	key := entities.MetadataKey(kind)
	if snapshot.HasDefect("metadata." + key) {
		return
	}
	count, ok := snapshot.Metadata[key]
	if !ok {
		result.Errors = append(result.Errors, fmt.Sprintf("metadata.%s is missing", key))
		return
	}
	if count < 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("metadata.%s is negative (%d)", key, count))
		return
	}

	records, present := snapshot.Entities[string(kind)]
	if !present {
		// already reported as a missing kind
		return
	}
	// records that were not objects still count as file entries
	listed := len(records) + snapshot.DefectsUnder(fmt.Sprintf("entities.%s[", kind))
	if count != listed {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"metadata.%s = %d but entities.%s has %d records", key, count, kind, listed))
	}
}

func (v *Validator) collectWarnings(snapshot *entities.BackupSnapshot, result *entities.ValidationResult) {
	for _, kind := range snapshot.Kinds() {
		if !entities.IsKnownKind(kind) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("entities.%s is not a known entity kind", kind))
		}

		seen := make(map[string]int)
		missing := 0
		for i, record := range snapshot.Entities[string(kind)] {
			id, ok := record.ID(v.idField)
			if !ok {
				missing++
				continue
			}
			if first, dup := seen[id]; dup {
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"entities.%s[%d] repeats %s %q first seen at index %d", kind, i, v.idField, id, first))
				continue
			}
			seen[id] = i
		}
		if missing > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"entities.%s has %d records without %q; they cannot be restored", kind, missing, v.idField))
		}
	}
}

// mergeKinds returns base followed by the kinds of extra not already in base.
// Extra kinds keep their relative order.
func mergeKinds(base, extra []entities.Kind) []entities.Kind {
	seen := make(map[entities.Kind]bool, len(base)+len(extra))
	out := make([]entities.Kind, 0, len(base)+len(extra))
	for _, k := range base {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, k := range extra {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// restoreOrder returns configured kinds first, then the remaining snapshot kinds by name
func restoreOrder(configured []entities.Kind, snapshot *entities.BackupSnapshot) []entities.Kind {
	var order []entities.Kind
	for _, k := range configured {
		if _, ok := snapshot.Entities[string(k)]; ok {
			order = append(order, k)
		}
	}
	var rest []entities.Kind
	for _, k := range snapshot.Kinds() {
		found := false
		for _, c := range order {
			if c == k {
				found = true
				break
			}
		}
		if !found {
			rest = append(rest, k)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(order, rest...)
}
