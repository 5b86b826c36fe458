package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/yojana-matcher/internal/catalog"
)

func TestStoreImportAndGet(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "schemes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	written, err := store.Import(ctx, []catalog.Scheme{
		{
			ID:          "s2",
			Name:        "Second",
			LastUpdated: "2024-01-01",
			EligibilityStructured: map[string]any{
				"required": []any{map[string]any{"field": "state", "operator": "=", "value": "Goa"}},
			},
		},
		{ID: "s1", Name: "First", SourceURL: "https://example.org/s1"},
		{ID: "s2", Name: "Duplicate"},
		{Name: "no id"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Name)
	assert.Equal(t, "2024-01-01", got.LastUpdated)

	spec, err := got.Spec()
	require.NoError(t, err)
	require.Len(t, spec.Required, 1)
	assert.Equal(t, "Goa", spec.Required[0].Raw)

	plain, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, plain.EligibilityStructured)
	assert.Equal(t, "https://example.org/s1", plain.SourceURL)

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, catalog.ErrNotFound))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "s2", all[0].ID, "dataset order is kept")
}

func TestImportReplacesCatalog(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "schemes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.Import(ctx, []catalog.Scheme{{ID: "old", Name: "Old"}})
	require.NoError(t, err)
	_, err = store.Import(ctx, []catalog.Scheme{{ID: "new", Name: "New"}})
	require.NoError(t, err)

	_, err = store.Get(ctx, "old")
	assert.True(t, errors.Is(err, catalog.ErrNotFound))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
