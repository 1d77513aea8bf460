package repository_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/foomo/entityrepo/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPage(t *testing.T) {
	tests := []struct {
		name  string
		page  int
		size  int
		total int64
		want  entityrepo.Page[int]
	}{
		{
			name: "defaults", page: 0, size: 0, total: 12,
			want: entityrepo.Page[int]{Page: 1, Size: 5, TotalCount: 12, PagesCount: 3, HasNext: true, Items: []int{}},
		},
		{
			name: "middle", page: 2, size: 5, total: 12,
			want: entityrepo.Page[int]{Page: 2, Size: 5, TotalCount: 12, PagesCount: 3, HasPrevious: true, HasNext: true, Items: []int{}},
		},
		{
			name: "last", page: 3, size: 5, total: 12,
			want: entityrepo.Page[int]{Page: 3, Size: 5, TotalCount: 12, PagesCount: 3, HasPrevious: true, Items: []int{}},
		},
		{
			name: "exact multiple", page: 1, size: 4, total: 12,
			want: entityrepo.Page[int]{Page: 1, Size: 4, TotalCount: 12, PagesCount: 3, HasNext: true, Items: []int{}},
		},
		{
			name: "size beyond total", page: 1, size: math.MaxInt, total: 12,
			want: entityrepo.Page[int]{Page: 1, Size: math.MaxInt, TotalCount: 12, PagesCount: 1, Items: []int{}},
		},
		{
			name: "max total", page: 1, size: 2, total: math.MaxInt64,
			want: entityrepo.Page[int]{Page: 1, Size: 2, TotalCount: math.MaxInt64, PagesCount: math.MaxInt64/2 + 1, HasNext: true, Items: []int{}},
		},
		{
			name: "empty", page: 1, size: 10, total: 0,
			want: entityrepo.Page[int]{Page: 1, Size: 10, Items: []int{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repository.NewPage[int](tt.page, tt.size, tt.total, nil))
		})
	}
}

func seed(t *testing.T, r *repository.Repository[product], n int) {
	t.Helper()
	for i := range n {
		p := product{ID: fmt.Sprintf("%02d", i), Price: i}
		_, err := r.Add(context.Background(), p, entityrepo.DocumentID(p.ID))
		require.NoError(t, err)
	}
}

func TestPaginate(t *testing.T) {
	engine := newMemoryEngine()
	r := newRepository(t, engine)
	seed(t, r, 12)

	page, err := r.Paginate(context.Background(), 3, 5, nil, entityrepo.Desc("id"))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, int64(12), page.TotalCount)
	assert.Equal(t, int64(3), page.PagesCount)
	assert.True(t, page.HasPrevious)
	assert.False(t, page.HasNext)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "01", page.Items[0].ID)
	assert.Equal(t, "00", page.Items[1].ID)

	assert.Equal(t, 10, engine.lastReq.From)
	assert.Equal(t, 5, engine.lastReq.Size)
	assert.Equal(t, []entityrepo.SortField{entityrepo.Desc("id")}, engine.lastReq.Sort)
}

func TestPaginate_DefaultsAndBeyondLastPage(t *testing.T) {
	engine := newMemoryEngine()
	r := newRepository(t, engine)
	seed(t, r, 12)

	page, err := r.Paginate(context.Background(), -1, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, repository.DefaultPageSize, page.Size)
	assert.Len(t, page.Items, 5)

	page, err = r.Paginate(context.Background(), 9, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(12), page.TotalCount)
	assert.False(t, page.HasNext)
}

func TestPaginate_Filter(t *testing.T) {
	engine := newMemoryEngine()
	r := newRepository(t, engine)
	seed(t, r, 12)

	page, err := r.Paginate(context.Background(), 1, 5, map[string]string{"price": "3"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalCount)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "03", page.Items[0].ID)
}

func TestPaginate_PropagatesErrors(t *testing.T) {
	errCount := errors.New("count failed")
	engine := newMemoryEngine()
	engine.countErr = errCount
	r := newRepository(t, engine)

	_, err := r.Paginate(context.Background(), 1, 5, nil)
	assert.ErrorIs(t, err, errCount)

	errSearch := errors.New("search failed")
	engine.countErr = nil
	engine.searchErr = errSearch
	_, err = r.Paginate(context.Background(), 1, 5, nil)
	assert.ErrorIs(t, err, errSearch)
}

func TestPaginate_WindowBeyondIntRange(t *testing.T) {
	engine := newMemoryEngine()
	r := newRepository(t, engine)
	seed(t, r, 6)

	page, err := r.Paginate(context.Background(), math.MaxInt/4+2, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt/4+2, page.Page)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(6), page.TotalCount)
	assert.Equal(t, int64(2), page.PagesCount)
	assert.False(t, page.HasNext)
	// no search was issued
	assert.Zero(t, engine.lastReq.Size)

	page, err = r.Paginate(context.Background(), 2, math.MaxInt, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(1), page.PagesCount)
	assert.True(t, page.HasPrevious)
}

func TestPaginate_LastRepresentableWindow(t *testing.T) {
	engine := newMemoryEngine()
	r := newRepository(t, engine)
	seed(t, r, 6)

	page, err := r.Paginate(context.Background(), 1, math.MaxInt, nil)
	require.NoError(t, err)
	assert.Len(t, page.Items, 6)
	assert.Equal(t, int64(1), page.PagesCount)
	assert.Equal(t, 0, engine.lastReq.From)
}
