package repository_test

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"

	entityrepo "github.com/foomo/entityrepo/pkg"
)

// memoryEngine is an in-memory entityrepo.Engine. Filters are
// map[string]string equality matches on top-level fields.
type memoryEngine struct {
	mu        sync.Mutex
	docs      map[entityrepo.IndexID]map[entityrepo.DocumentID]json.RawMessage
	batches   [][]entityrepo.BulkOperation
	failBatch int
	countErr  error
	searchErr error
	lastReq   entityrepo.SearchRequest
}

func newMemoryEngine() *memoryEngine {
	return &memoryEngine{
		docs:      map[entityrepo.IndexID]map[entityrepo.DocumentID]json.RawMessage{},
		failBatch: -1,
	}
}

// Engine makes memoryEngine its own connection.EngineSource.
func (m *memoryEngine) Engine() entityrepo.Engine { return m }

func (m *memoryEngine) Name() string { return "memory" }

func (m *memoryEngine) Ping(context.Context) error { return nil }

func (m *memoryEngine) Get(_ context.Context, index entityrepo.IndexID, id entityrepo.DocumentID) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[index][id]
	if !ok {
		return nil, entityrepo.ErrNotFound
	}
	return raw, nil
}

func (m *memoryEngine) put(index entityrepo.IndexID, id entityrepo.DocumentID, document any) error {
	raw, err := json.Marshal(document)
	if err != nil {
		return err
	}
	if m.docs[index] == nil {
		m.docs[index] = map[entityrepo.DocumentID]json.RawMessage{}
	}
	m.docs[index][id] = raw
	return nil
}

func (m *memoryEngine) Index(_ context.Context, index entityrepo.IndexID, id entityrepo.DocumentID, document any) (entityrepo.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.put(index, id, document); err != nil {
		return entityrepo.WriteResult{}, err
	}
	return entityrepo.WriteResult{Index: index, ID: id, Result: "created", Version: 1}, nil
}

func (m *memoryEngine) Update(_ context.Context, index entityrepo.IndexID, id entityrepo.DocumentID, partial any) (entityrepo.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.docs[index][id]
	if !ok {
		return entityrepo.WriteResult{}, &entityrepo.Error{Op: entityrepo.OpUpdate, Index: index, Err: entityrepo.ErrNotFound}
	}
	current := map[string]any{}
	if err := json.Unmarshal(raw, &current); err != nil {
		return entityrepo.WriteResult{}, err
	}
	patch, err := json.Marshal(partial)
	if err != nil {
		return entityrepo.WriteResult{}, err
	}
	if err := json.Unmarshal(patch, &current); err != nil {
		return entityrepo.WriteResult{}, err
	}
	if err := m.put(index, id, current); err != nil {
		return entityrepo.WriteResult{}, err
	}
	return entityrepo.WriteResult{Index: index, ID: id, Result: "updated", Version: 2}, nil
}

func (m *memoryEngine) Delete(_ context.Context, index entityrepo.IndexID, id entityrepo.DocumentID) (entityrepo.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[index][id]; !ok {
		return entityrepo.WriteResult{}, &entityrepo.Error{Op: entityrepo.OpDelete, Index: index, Err: entityrepo.ErrNotFound}
	}
	delete(m.docs[index], id)
	return entityrepo.WriteResult{Index: index, ID: id, Result: "deleted"}, nil
}

func (m *memoryEngine) DeleteByQuery(_ context.Context, index entityrepo.IndexID, filter entityrepo.Filter) (entityrepo.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, err := m.match(index, filter)
	if err != nil {
		return entityrepo.DeleteResult{}, err
	}
	for _, id := range ids {
		delete(m.docs[index], id)
	}
	return entityrepo.DeleteResult{Deleted: int64(len(ids))}, nil
}

func (m *memoryEngine) Count(_ context.Context, index entityrepo.IndexID, filter entityrepo.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	ids, err := m.match(index, filter)
	return int64(len(ids)), err
}

func (m *memoryEngine) Search(ctx context.Context, index entityrepo.IndexID, req entityrepo.SearchRequest) (entityrepo.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReq = req
	if m.searchErr != nil {
		return entityrepo.SearchResult{}, m.searchErr
	}
	ids, err := m.match(index, req.Filter)
	if err != nil {
		return entityrepo.SearchResult{}, err
	}
	m.sortIDs(index, ids, req.Sort)

	result := entityrepo.SearchResult{Total: int64(len(ids))}
	from := min(req.From, len(ids))
	to := len(ids)
	if req.Size > 0 {
		to = min(from+req.Size, len(ids))
	}
	for _, id := range ids[from:to] {
		result.Hits = append(result.Hits, entityrepo.Hit{ID: id, Score: 1, Source: m.docs[index][id]})
	}
	return result, nil
}

func (m *memoryEngine) Bulk(_ context.Context, index entityrepo.IndexID, operations []entityrepo.BulkOperation) (entityrepo.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.batches) == m.failBatch {
		return entityrepo.BulkResult{}, fmt.Errorf("batch %d rejected", m.failBatch)
	}
	m.batches = append(m.batches, operations)

	result := entityrepo.BulkResult{Batches: 1}
	for _, op := range operations {
		if err := m.put(index, op.ID, op.Document); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, entityrepo.BulkItemError{ID: op.ID, Reason: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

func (m *memoryEngine) batchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := make([]int, 0, len(m.batches))
	for _, b := range m.batches {
		sizes = append(sizes, len(b))
	}
	return sizes
}

func (m *memoryEngine) match(index entityrepo.IndexID, filter entityrepo.Filter) ([]entityrepo.DocumentID, error) {
	var terms map[string]string
	switch f := filter.(type) {
	case nil:
	case map[string]string:
		terms = f
	default:
		return nil, entityrepo.ErrUnsupportedFilter
	}

	ids := make([]entityrepo.DocumentID, 0, len(m.docs[index]))
	for id, raw := range m.docs[index] {
		fields := map[string]any{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		matches := true
		for key, value := range terms {
			if fmt.Sprint(fields[key]) != value {
				matches = false
				break
			}
		}
		if matches {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memoryEngine) sortIDs(index entityrepo.IndexID, ids []entityrepo.DocumentID, fields []entityrepo.SortField) {
	if len(fields) == 0 {
		return
	}
	decoded := make(map[entityrepo.DocumentID]map[string]any, len(ids))
	for _, id := range ids {
		doc := map[string]any{}
		_ = json.Unmarshal(m.docs[index][id], &doc)
		decoded[id] = doc
	}
	sort.SliceStable(ids, func(i, j int) bool {
		for _, field := range fields {
			a, b := fmt.Sprint(decoded[ids[i]][field.Field]), fmt.Sprint(decoded[ids[j]][field.Field])
			if a == b {
				continue
			}
			if field.Order == entityrepo.SortDesc {
				return a > b
			}
			return a < b
		}
		return false
	})
}
