package repository_test

import (
	"context"
	"fmt"
	"testing"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/foomo/entityrepo/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func products(n int) []*product {
	items := make([]*product, n)
	for i := range items {
		items[i] = &product{ID: fmt.Sprintf("p-%05d", i)}
	}
	return items
}

func TestAddRangeBy_Chunks(t *testing.T) {
	engine := newMemoryEngine()
	r := newRepository(t, engine, repository.WithKey[product](productKey))

	result, err := r.AddRangeBy(context.Background(), products(2500), 1000)
	require.NoError(t, err)
	assert.Equal(t, []int{1000, 1000, 500}, engine.batchSizes())
	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, 2500, result.Succeeded)
	assert.Zero(t, result.Failed)

	count, err := r.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), count)
}

func TestAddRangeBy_PreservesOrder(t *testing.T) {
	engine := newMemoryEngine()
	r := newRepository(t, engine, repository.WithKey[product](productKey))

	items := products(5)
	_, err := r.AddRangeBy(context.Background(), items, 2)
	require.NoError(t, err)

	var ids []entityrepo.DocumentID
	for _, batch := range engine.batches {
		for _, op := range batch {
			ids = append(ids, op.ID)
		}
	}
	assert.Equal(t, []entityrepo.DocumentID{"p-00000", "p-00001", "p-00002", "p-00003", "p-00004"}, ids)
}

func TestAddRangeBy_DefaultChunkSize(t *testing.T) {
	engine := newMemoryEngine()
	r := newRepository(t, engine, repository.WithKey[product](productKey), repository.WithChunkSize[product](4))

	_, err := r.AddRangeBy(context.Background(), products(10), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 2}, engine.batchSizes())
}

func TestAddRangeBy_SkipsEmptyIDs(t *testing.T) {
	engine := newMemoryEngine()
	r := newRepository(t, engine, repository.WithKey[product](productKey))

	items := []*product{{ID: "a"}, {ID: ""}, nil, {ID: "b"}}
	result, err := r.AddRangeBy(context.Background(), items, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, engine.batchSizes())
	assert.Equal(t, 2, result.Succeeded)
}

func TestAddRange_SkipsEmptyChunks(t *testing.T) {
	engine := newMemoryEngine()
	r := newRepository(t, engine)

	entries := []repository.Entry[product]{
		{ID: "", Document: &product{}},
		{ID: "x", Document: nil},
		{ID: "c", Document: &product{ID: "c"}},
	}
	result, err := r.AddRange(context.Background(), entries, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, engine.batchSizes())
	assert.Equal(t, 1, result.Batches)
}

func TestAddRangeBy_RequiresKey(t *testing.T) {
	r := newRepository(t, newMemoryEngine())
	_, err := r.AddRangeBy(context.Background(), products(1), 1)
	assert.ErrorIs(t, err, entityrepo.ErrNoKeyFunc)
}

func TestAddRange_StopsOnFailedBatch(t *testing.T) {
	engine := newMemoryEngine()
	engine.failBatch = 1
	r := newRepository(t, engine, repository.WithKey[product](productKey))

	result, err := r.AddRangeBy(context.Background(), products(25), 10)
	require.Error(t, err)

	var opErr *entityrepo.Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, entityrepo.OpBulk, opErr.Op)
	assert.Equal(t, entityrepo.IndexID("products"), opErr.Index)

	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, 10, result.Succeeded)
	count, err := r.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)
}

func TestBulk_SingleBatch(t *testing.T) {
	engine := newMemoryEngine()
	r := newRepository(t, engine)

	entries := make([]repository.Entry[product], 0, 30)
	for _, p := range products(30) {
		entries = append(entries, repository.Entry[product]{ID: entityrepo.DocumentID(p.ID), Document: p})
	}
	result, err := r.Bulk(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, []int{30}, engine.batchSizes())
	assert.Equal(t, 1, result.Batches)

	result, err = r.Bulk(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Batches)
}
