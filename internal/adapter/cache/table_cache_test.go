package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecsearch/internal/domain"
)

func entry(ids ...string) *Entry {
	e := &Entry{}
	for _, id := range ids {
		e.Records = append(e.Records, domain.Record{RowID: id})
	}
	return e
}

func TestGetPut(t *testing.T) {
	c := NewTableCache(0)

	_, ok := c.Get("t1")
	assert.False(t, ok)

	c.Put("t1", entry("a"))
	got, ok := c.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "a", got.Records[0].RowID)

	c.Put("t1", entry("b"))
	got, ok = c.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "b", got.Records[0].RowID)
	assert.Equal(t, 1, c.Len())
}

func TestUnboundedNeverEvicts(t *testing.T) {
	c := NewTableCache(0)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		c.Put(id, entry(id))
	}
	assert.Equal(t, 5, c.Len())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewTableCache(2)
	c.Put("a", entry("a"))
	c.Put("b", entry("b"))

	// Touch a so b becomes the oldest.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", entry("c"))
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := NewTableCache(0)
	c.Put("a", entry("a"))
	c.Put("b", entry("b"))

	c.Invalidate("a")
	c.Invalidate("missing")

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}
