package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/leadintake/internal/schema"
)

func leadWith(stream string, product int64, phone int64) *schema.Lead {
	l := schema.ExampleLead()
	l.Stream = stream
	l.Product = product
	l.User.Phone = phone
	return l
}

func intPtr(n int) *int { return &n }

func seed(t *testing.T, s *MemoryStore) {
	t.Helper()
	n, err := s.CreateMany(context.Background(), []*schema.Lead{
		leadWith("alpha", 1, 79990000001),
		leadWith("beta", 2, 79990000002),
		leadWith("alpha", 2, 79990000003),
		leadWith("gamma", 1, 79990000004),
	})
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func ids(leads []*schema.StoredLead) []int64 {
	out := make([]int64, len(leads))
	for i, l := range leads {
		out[i] = l.ID
	}
	return out
}

// =============================================================================
// CRUD
// =============================================================================

func TestMemoryStore_CreateAndFind(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stored, err := s.Create(ctx, schema.ExampleLead())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	got, err := s.FindByID(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stored.Lead, got.Lead)

	missing, err := s.FindByID(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stored, err := s.Create(ctx, schema.ExampleLead())
	require.NoError(t, err)
	stored.Stream = "mutated"
	stored.Sales[0].CampaignID = "mutated"

	got, err := s.FindByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "stream1", got.Stream)
	assert.Equal(t, "campaign1", got.Sales[0].CampaignID)
}

func TestMemoryStore_UpdateDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stored, err := s.Create(ctx, schema.ExampleLead())
	require.NoError(t, err)

	changed := schema.ExampleLead()
	changed.Stream = "updated"
	updated, err := s.Update(ctx, stored.ID, changed)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, updated.ID)
	assert.Equal(t, "updated", updated.Stream)
	assert.Equal(t, stored.CreatedAt, updated.CreatedAt)

	_, err = s.Update(ctx, 42, changed)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Delete(ctx, stored.ID))
	assert.Equal(t, 0, s.Len())
	assert.True(t, errors.Is(s.Delete(ctx, stored.ID), ErrNotFound))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CreateMany(ctx, []*schema.Lead{schema.ExampleLead()})
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "create many", se.Op)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, s.Len())
}

// =============================================================================
// FindMany
// =============================================================================

func TestMemoryStore_FindMany(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{
			name: "default order is id ascending",
			want: []int64{1, 2, 3, 4},
		},
		{
			name:   "where matches top-level field",
			filter: Filter{Where: json.RawMessage(`{"stream":"alpha"}`)},
			want:   []int64{1, 3},
		},
		{
			name:   "where matches nested field",
			filter: Filter{Where: json.RawMessage(`{"user":{"phone":79990000002}}`)},
			want:   []int64{2},
		},
		{
			name:   "where matches list element",
			filter: Filter{Where: json.RawMessage(`{"sales":[{"campaignID":"campaign1"}]}`)},
			want:   []int64{1, 2, 3, 4},
		},
		{
			name:   "where with no match",
			filter: Filter{Where: json.RawMessage(`{"stream":"delta"}`)},
			want:   nil,
		},
		{
			name:   "order desc",
			filter: Filter{Order: json.RawMessage(`{"id":"desc"}`)},
			want:   []int64{4, 3, 2, 1},
		},
		{
			name:   "order by list with tiebreak",
			filter: Filter{Order: json.RawMessage(`[{"product":"desc"},{"stream":"asc"}]`)},
			want:   []int64{3, 2, 1, 4},
		},
		{
			name:   "cursor starts at id",
			filter: Filter{Cursor: json.RawMessage(`{"id":3}`)},
			want:   []int64{3, 4},
		},
		{
			name:   "take and skip",
			filter: Filter{Take: intPtr(2), Skip: intPtr(1)},
			want:   []int64{2, 3},
		},
		{
			name:   "skip past end",
			filter: Filter{Skip: intPtr(10)},
			want:   nil,
		},
		{
			name:   "take zero",
			filter: Filter{Take: intPtr(0)},
			want:   []int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			seed(t, s)

			got, err := s.FindMany(context.Background(), tt.filter)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestMemoryStore_FindManyInvalidFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		field  string
	}{
		{"unknown order column", Filter{Order: json.RawMessage(`{"email":"asc"}`)}, "order"},
		{"bad direction", Filter{Order: json.RawMessage(`{"id":"up"}`)}, "order"},
		{"cursor without id", Filter{Cursor: json.RawMessage(`{"stream":"x"}`)}, "cursor"},
		{"where not an object", Filter{Where: json.RawMessage(`[1,2]`)}, "where"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			_, err := s.FindMany(context.Background(), tt.filter)

			var fe *InvalidFilterError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestJSONContains(t *testing.T) {
	doc := map[string]any{
		"a": 1.0,
		"b": map[string]any{"c": "x", "d": true},
		"l": []any{map[string]any{"id": "1"}, map[string]any{"id": "2"}},
	}

	assert.True(t, jsonContains(doc, map[string]any{}))
	assert.True(t, jsonContains(doc, map[string]any{"b": map[string]any{"d": true}}))
	assert.True(t, jsonContains(doc, map[string]any{"l": []any{map[string]any{"id": "2"}}}))
	assert.False(t, jsonContains(doc, map[string]any{"a": "1"}))
	assert.False(t, jsonContains(doc, map[string]any{"b": "x"}))
	assert.False(t, jsonContains(doc, map[string]any{"l": []any{map[string]any{"id": "3"}}}))
	assert.False(t, jsonContains(doc, map[string]any{"missing": nil}))
}
