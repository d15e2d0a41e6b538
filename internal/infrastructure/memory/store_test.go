package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

func TestStoreUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	s := NewStore("")

	require.NoError(t, s.Upsert(ctx, entities.KindProfiles, entities.Record{"id": "u1", "name": "Ana"}))
	require.NoError(t, s.Upsert(ctx, entities.KindProfiles, entities.Record{"id": "u2", "name": "Bruno"}))
	require.NoError(t, s.Upsert(ctx, entities.KindProfiles, entities.Record{"id": "u1", "name": "Ana Maria"}))

	records, err := s.ListAll(ctx, entities.KindProfiles)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Ana Maria", records[0]["name"])
	assert.Equal(t, "u2", records[1]["id"])
	assert.Equal(t, 3, s.Writes())
}

func TestStoreMissingID(t *testing.T) {
	s := NewStore("uid")
	err := s.Upsert(context.Background(), entities.KindMedia, entities.Record{"id": "m1"})
	assert.ErrorIs(t, err, repository.ErrMissingID)
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore("")
	s.Seed(entities.KindMedia, entities.Record{"id": "m1", "tags": []interface{}{"a"}})

	records, err := s.ListAll(ctx, entities.KindMedia)
	require.NoError(t, err)
	records[0]["tags"].([]interface{})[0] = "changed"

	stored, ok := s.Get(entities.KindMedia, "m1")
	require.True(t, ok)
	assert.Equal(t, "a", stored["tags"].([]interface{})[0])
	assert.Equal(t, 0, s.Writes())
}

func TestStoreFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := NewStore("")
	boom := errors.New("boom")

	s.FailList(entities.KindReports, boom)
	_, err := s.ListAll(ctx, entities.KindReports)
	assert.ErrorIs(t, err, boom)

	s.FailUpsert(entities.KindMedia, "m2", boom)
	assert.NoError(t, s.Upsert(ctx, entities.KindMedia, entities.Record{"id": "m1"}))
	assert.ErrorIs(t, s.Upsert(ctx, entities.KindMedia, entities.Record{"id": "m2"}), boom)
	assert.Equal(t, 1, s.Count(entities.KindMedia))
}

func TestStoreEmptyKind(t *testing.T) {
	records, err := NewStore("").ListAll(context.Background(), entities.KindReports)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestStoreNormalizesNativeValues(t *testing.T) {
	ctx := context.Background()
	s := NewStore("")
	s.Seed(entities.KindProfiles, entities.Record{
		"id":      "u1",
		"age":     30,
		"rating":  4.5,
		"visits":  uint8(3),
		"joined":  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		"tags":    []string{"a", "b"},
		"address": entities.Record{"zip": int64(4000)},
	})

	records, err := s.ListAll(ctx, entities.KindProfiles)
	require.NoError(t, err)
	require.Len(t, records, 1)

	want := entities.Record{
		"id":      "u1",
		"age":     json.Number("30"),
		"rating":  json.Number("4.5"),
		"visits":  json.Number("3"),
		"joined":  "2024-05-01T09:00:00Z",
		"tags":    []interface{}{"a", "b"},
		"address": map[string]interface{}{"zip": json.Number("4000")},
	}
	assert.Equal(t, want, records[0])

	raw, err := json.Marshal(records[0])
	require.NoError(t, err)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded entities.Record
	require.NoError(t, dec.Decode(&decoded))
	assert.Equal(t, records[0], decoded)
}
