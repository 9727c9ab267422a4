package catalog

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-pos-checkout/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGet(t *testing.T) {
	s := NewMemoryStore(SeedItems()...)
	ctx := context.Background()

	it, err := s.Get(ctx, "hamburger")
	require.NoError(t, err)
	assert.Equal(t, "8.99", it.BasePrice.StringFixed(2))
	assert.False(t, it.IsTopping)

	bacon, err := s.Get(ctx, "bacon")
	require.NoError(t, err)
	assert.True(t, bacon.IsTopping)

	_, err = s.Get(ctx, "lobster")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryStoreListSorted(t *testing.T) {
	s := NewMemoryStore(SeedItems()...)
	items, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, len(SeedItems()))

	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if prev.Category == cur.Category {
			assert.LessOrEqual(t, prev.Name, cur.Name)
		} else {
			assert.Less(t, string(prev.Category), string(cur.Category))
		}
	}
}
