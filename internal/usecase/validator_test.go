package usecase

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/marketadmin/internal/domain/entities"
)

func validSnapshot() *entities.BackupSnapshot {
	s := &entities.BackupSnapshot{
		CreatedAt: "2024-03-05T14:07:09.123456789Z",
		Metadata:  map[string]int{},
		Entities:  map[string][]entities.Record{},
	}
	for _, kind := range entities.RequiredKinds {
		s.Metadata[entities.MetadataKey(kind)] = 0
		s.Entities[string(kind)] = []entities.Record{}
	}
	return s
}

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name     string
		kinds    []entities.Kind
		mutate   func(*entities.BackupSnapshot)
		errors   []string
		warnings []string
	}{
		{
			name:   "valid",
			mutate: func(s *entities.BackupSnapshot) {},
		},
		{
			name:   "nil snapshot",
			mutate: nil,
			errors: []string{"backup is empty"},
		},
		{
			name: "negative count",
			mutate: func(s *entities.BackupSnapshot) {
				s.Metadata["total_media"] = -1
			},
			errors: []string{"metadata.total_media is negative (-1)"},
		},
		{
			name: "missing counter",
			mutate: func(s *entities.BackupSnapshot) {
				delete(s.Metadata, "total_messages")
			},
			errors: []string{"metadata.total_messages is missing"},
		},
		{
			name: "missing created_at",
			mutate: func(s *entities.BackupSnapshot) {
				s.CreatedAt = ""
			},
			errors: []string{"created_at is missing"},
		},
		{
			name:  "configured optional kind required",
			kinds: []entities.Kind{entities.KindViews},
			mutate: func(s *entities.BackupSnapshot) {
				s.Metadata["total_views"] = 0
			},
			errors: []string{"entities.views is missing"},
		},
		{
			name: "extra kind is counted and warned",
			mutate: func(s *entities.BackupSnapshot) {
				s.Entities["favourites"] = []entities.Record{{"id": "f1"}}
			},
			errors:   []string{"metadata.total_favourites is missing"},
			warnings: []string{"entities.favourites is not a known entity kind"},
		},
		{
			name: "duplicates and missing ids warn only",
			mutate: func(s *entities.BackupSnapshot) {
				s.Entities["media"] = []entities.Record{{"id": "m1"}, {"id": "m1"}, {"title": "x"}}
				s.Metadata["total_media"] = 3
			},
			warnings: []string{
				`entities.media[1] repeats id "m1" first seen at index 0`,
				`entities.media has 1 records without "id"; they cannot be restored`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var snapshot *entities.BackupSnapshot
			if tt.mutate != nil {
				snapshot = validSnapshot()
				tt.mutate(snapshot)
			}

			result := NewValidator(tt.kinds, "").Validate(snapshot)

			if tt.errors == nil {
				tt.errors = []string{}
			}
			assert.Equal(t, tt.errors, result.Errors)
			assert.Equal(t, len(tt.errors) == 0, result.Valid)
			if tt.warnings != nil {
				assert.Equal(t, tt.warnings, result.Warnings)
			}
		})
	}
}

func TestRestoreOrder(t *testing.T) {
	s := validSnapshot()
	s.Entities["zeta"] = nil
	s.Entities["alpha"] = nil
	delete(s.Entities, "reports")

	order := restoreOrder(entities.RequiredKinds, s)
	assert.Equal(t, []entities.Kind{
		entities.KindProfiles, entities.KindMedia, entities.KindVerifications,
		entities.KindConversations, entities.KindMessages, entities.KindNotifications,
		"alpha", "zeta",
	}, order)
}

func TestMergeKinds(t *testing.T) {
	merged := mergeKinds(
		[]entities.Kind{entities.KindProfiles, entities.KindMedia},
		[]entities.Kind{entities.KindMedia, entities.KindViews, entities.KindProfiles, entities.KindClicks},
	)
	assert.Equal(t, []entities.Kind{entities.KindProfiles, entities.KindMedia, entities.KindViews, entities.KindClicks}, merged)
}

// backupDocument returns a valid backup file as a generic document for tests to break
func backupDocument() map[string]interface{} {
	metadata := map[string]interface{}{}
	kinds := map[string]interface{}{}
	for _, kind := range entities.RequiredKinds {
		metadata[entities.MetadataKey(kind)] = 0
		kinds[string(kind)] = []interface{}{}
	}
	return map[string]interface{}{
		"created_at": "2024-03-05T14:07:09Z",
		"metadata":   metadata,
		"entities":   kinds,
	}
}

func TestValidator_ReportsWronglyTypedValues(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(doc, metadata, kinds map[string]interface{})
		errors   []string
		warnings []string
	}{
		{
			name:   "numeric created_at",
			mutate: func(doc, _, _ map[string]interface{}) { doc["created_at"] = 12345 },
			errors: []string{"created_at must be a string (got number)"},
		},
		{
			name:   "string count",
			mutate: func(_, metadata, _ map[string]interface{}) { metadata["total_profiles"] = "3" },
			errors: []string{"metadata.total_profiles is not an integer (got string)"},
		},
		{
			name:   "fractional count",
			mutate: func(_, metadata, _ map[string]interface{}) { metadata["total_media"] = 1.5 },
			errors: []string{"metadata.total_media is not an integer (got 1.5)"},
		},
		{
			name:     "extra metadata key is only a warning",
			mutate:   func(_, metadata, _ map[string]interface{}) { metadata["version"] = "2.0" },
			warnings: []string{"metadata.version is not a record count and was ignored"},
		},
		{
			name: "record that is not an object",
			mutate: func(_, metadata, kinds map[string]interface{}) {
				kinds["profiles"] = []interface{}{1, map[string]interface{}{"id": "u1"}}
				metadata["total_profiles"] = 2
			},
			errors: []string{"entities.profiles[0] is not an object (got number)"},
		},
		{
			name: "record that is not an object still counts",
			mutate: func(_, _, kinds map[string]interface{}) {
				kinds["profiles"] = []interface{}{"u1"}
			},
			errors: []string{
				"entities.profiles[0] is not an object (got string)",
				"metadata.total_profiles = 0 but entities.profiles has 1 records",
			},
		},
		{
			name:   "kind that is not an array",
			mutate: func(_, _, kinds map[string]interface{}) { kinds["media"] = "x" },
			errors: []string{"entities.media must be an array (got string)"},
		},
		{
			name:   "metadata that is not an object",
			mutate: func(doc, _, _ map[string]interface{}) { doc["metadata"] = []interface{}{} },
			errors: []string{"metadata must be an object (got array)"},
		},
		{
			name:   "entities that is not an object",
			mutate: func(doc, _, _ map[string]interface{}) { doc["entities"] = "x" },
			errors: []string{"entities must be an object (got string)"},
		},
		{
			name: "type errors accumulate with structural errors",
			mutate: func(doc, metadata, kinds map[string]interface{}) {
				doc["created_at"] = true
				metadata["total_media"] = "2"
				delete(kinds, "reports")
			},
			errors: []string{
				"created_at must be a string (got boolean)",
				"metadata.total_media is not an integer (got string)",
				"entities.reports is missing",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := backupDocument()
			tt.mutate(doc, doc["metadata"].(map[string]interface{}), doc["entities"].(map[string]interface{}))
			data, err := json.Marshal(doc)
			require.NoError(t, err)

			snapshot, err := NewCodec(0, nil).Decode(bytes.NewReader(data))
			require.NoError(t, err)

			result := NewValidator(nil, "").Validate(snapshot)
			if tt.errors == nil {
				tt.errors = []string{}
			}
			if tt.warnings == nil {
				tt.warnings = []string{}
			}
			assert.Equal(t, tt.errors, result.Errors)
			assert.Equal(t, tt.warnings, result.Warnings)
			assert.Equal(t, len(tt.errors) == 0, result.Valid)
		})
	}
}
