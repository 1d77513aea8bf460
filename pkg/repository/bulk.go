package repository

import (
	"context"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"go.uber.org/zap"
)

// Entry pairs a document with its identifier, slices of entries keep
// ingestion order.
type Entry[T any] struct {
	ID       entityrepo.DocumentID
	Document *T
}

// AddRange upserts entries in sequential chunks of at most chunkSize items.
// chunkSize <= 0 uses the repository default. The first failing batch stops
// the loop, batches sent before it stay committed.
func (r *Repository[T]) AddRange(ctx context.Context, entries []Entry[T], chunkSize int) (entityrepo.BulkResult, error) {
	if chunkSize <= 0 {
		chunkSize = r.chunkSize
	}

	var result entityrepo.BulkResult
	for start := 0; start < len(entries); start += chunkSize {
		end := min(start+chunkSize, len(entries))
		operations := r.operations(entries[start:end])
		if len(operations) == 0 {
			continue
		}

		batch, err := r.engine().Bulk(ctx, r.index, operations)
		if err != nil {
			r.l.Error("bulk batch failed",
				zap.Int("offset", start),
				zap.Int("documents", len(operations)),
				zap.Error(err),
			)
			return result, &entityrepo.Error{Op: entityrepo.OpBulk, Index: r.index, Err: err}
		}
		batch.Batches = 1
		result.Merge(batch)
	}

	r.l.Debug("bulk ingestion finished",
		zap.Int("batches", result.Batches),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// AddRangeBy upserts items with identifiers derived by the key function.
func (r *Repository[T]) AddRangeBy(ctx context.Context, items []*T, chunkSize int) (entityrepo.BulkResult, error) {
	if r.key == nil {
		return entityrepo.BulkResult{}, entityrepo.ErrNoKeyFunc
	}

	entries := make([]Entry[T], len(items))
	for i, item := range items {
		entries[i].Document = item
		if item != nil {
			entries[i].ID = r.key(item)
		}
	}
	return r.AddRange(ctx, entries, chunkSize)
}

// Bulk sends all entries as a single batch.
func (r *Repository[T]) Bulk(ctx context.Context, entries []Entry[T]) (entityrepo.BulkResult, error) {
	if len(entries) == 0 {
		return entityrepo.BulkResult{}, nil
	}
	return r.AddRange(ctx, entries, len(entries))
}

func (r *Repository[T]) operations(entries []Entry[T]) []entityrepo.BulkOperation {
	operations := make([]entityrepo.BulkOperation, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" || entry.Document == nil {
			r.l.Debug("skipping bulk entry without id or document", zap.String("id", string(entry.ID)))
			continue
		}
		operations = append(operations, entityrepo.BulkOperation{ID: entry.ID, Document: entry.Document})
	}
	return operations
}
