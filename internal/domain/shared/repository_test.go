package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter(t *testing.T) {
	t.Run("default filter pages from the first page", func(t *testing.T) {
		filter := DefaultFilter()

		assert.Equal(t, 1, filter.Page)
		assert.Equal(t, 20, filter.PageSize)
		assert.Equal(t, 0, filter.Offset())
		assert.Equal(t, 20, filter.Limit())
	})

	t.Run("offset accounts for the page size", func(t *testing.T) {
		filter := Filter{Page: 3, PageSize: 10}

		assert.Equal(t, 20, filter.Offset())
	})

	t.Run("invalid page and size fall back to defaults", func(t *testing.T) {
		filter := Filter{Page: 0, PageSize: -1}

		assert.Equal(t, 0, filter.Offset())
		assert.Equal(t, 20, filter.Limit())
	})
}

func TestNewPaginated(t *testing.T) {
	t.Run("rounds total pages up", func(t *testing.T) {
		page := NewPaginated([]string{"a", "b"}, 5, 1, 2)

		assert.Equal(t, int64(5), page.Total)
		assert.Equal(t, 3, page.TotalPages)
		assert.Len(t, page.Items, 2)
	})

	t.Run("empty result has zero pages", func(t *testing.T) {
		page := NewPaginated([]int(nil), 0, 1, 20)

		assert.Equal(t, 0, page.TotalPages)
		assert.Empty(t, page.Items)
	})
}
