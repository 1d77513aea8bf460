package repository

import (
	"context"
	"math"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"golang.org/x/sync/errgroup"
)

const DefaultPageSize = 5

// Paginate returns the 1-based page of documents matching filter. Count and
// window are fetched concurrently, the first error cancels the other call.
// Windows beyond the engine's result cap, or beyond the int range, come back
// with empty items.
func (r *Repository[T]) Paginate(
	ctx context.Context,
	page, size int,
	filter entityrepo.Filter,
	sort ...entityrepo.SortField,
) (entityrepo.Page[T], error) {
	page, size = normalizeWindow(page, size)

	var (
		total int64
		items []T
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = r.Count(gctx, filter)
		return err
	})
	if from, ok := windowStart(page, size); ok {
		g.Go(func() error {
			var err error
			items, _, err = r.Find(gctx, entityrepo.SearchRequest{
				Filter: filter,
				From:   from,
				Size:   size,
				Sort:   sort,
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return entityrepo.Page[T]{}, err
	}

	return NewPage(page, size, total, items), nil
}

// NewPage computes the page metadata for the given window and total.
func NewPage[T any](page, size int, total int64, items []T) entityrepo.Page[T] {
	page, size = normalizeWindow(page, size)
	if items == nil {
		items = []T{}
	}

	pages := total / int64(size)
	if total%int64(size) != 0 {
		pages++
	}
	return entityrepo.Page[T]{
		Page:        page,
		Size:        size,
		TotalCount:  total,
		PagesCount:  pages,
		HasPrevious: page > 1,
		HasNext:     int64(page) < pages,
		Items:       items,
	}
}

func normalizeWindow(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	return page, size
}

// windowStart returns the offset of page, ok is false when the window end
// does not fit into an int.
func windowStart(page, size int) (int, bool) {
	if page-1 > (math.MaxInt-size)/size {
		return 0, false
	}
	return (page - 1) * size, true
}
