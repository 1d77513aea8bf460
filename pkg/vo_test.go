package entityrepo_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	entityrepo "github.com/foomo/entityrepo/pkg"
)

func TestNormalizeIndex(t *testing.T) {
	assert.Equal(t, entityrepo.IndexID("products"), entityrepo.NormalizeIndex("Products"))
	assert.Equal(t, entityrepo.IndexID("www-bks-at-de"), entityrepo.NormalizeIndex("  WWW-BKS-AT-DE "))
	assert.Equal(t, entityrepo.IndexID("already"), entityrepo.NormalizeIndex("already"))
}

func TestParseSort(t *testing.T) {
	fields, err := entityrepo.ParseSort("price:desc, name ,created:ASC")
	require.NoError(t, err)
	assert.Equal(t, []entityrepo.SortField{
		entityrepo.Desc("price"),
		entityrepo.Asc("name"),
		entityrepo.Asc("created"),
	}, fields)

	fields, err = entityrepo.ParseSort("")
	require.NoError(t, err)
	assert.Nil(t, fields)

	_, err = entityrepo.ParseSort("price:sideways")
	require.Error(t, err)

	_, err = entityrepo.ParseSort(":desc")
	require.Error(t, err)
}

func TestSortFieldString(t *testing.T) {
	assert.Equal(t, "price:desc", entityrepo.Desc("price").String())
	assert.Equal(t, "name:asc", entityrepo.SortField{Field: "name"}.String())
}

func TestBulkResultMerge(t *testing.T) {
	var total entityrepo.BulkResult
	total.Merge(entityrepo.BulkResult{Batches: 1, Succeeded: 3})
	total.Merge(entityrepo.BulkResult{
		Batches:   1,
		Succeeded: 1,
		Failed:    1,
		Errors:    []entityrepo.BulkItemError{{ID: "x", Reason: "mapping"}},
	})
	assert.Equal(t, 2, total.Batches)
	assert.Equal(t, 4, total.Succeeded)
	assert.Equal(t, 1, total.Failed)
	assert.Len(t, total.Errors, 1)
}

func TestErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("outer: %w", &entityrepo.Error{Op: entityrepo.OpGet, Index: "products", Err: entityrepo.ErrNotFound})
	assert.True(t, errors.Is(err, entityrepo.ErrNotFound))
	assert.Contains(t, err.Error(), "get products")

	var opErr *entityrepo.Error
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, entityrepo.OpGet, opErr.Op)

	assert.Equal(t, "ping: boom", (&entityrepo.Error{Op: entityrepo.OpPing, Err: errors.New("boom")}).Error())
}
