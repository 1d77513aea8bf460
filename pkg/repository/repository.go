package repository

import (
	"context"
	"encoding/json"
	"errors"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/foomo/entityrepo/pkg/connection"
	"go.uber.org/zap"
)

const DefaultChunkSize = 10000

// KeyFunc derives the document identifier from an entity.
type KeyFunc[T any] func(doc *T) entityrepo.DocumentID

type Option[T any] func(r *Repository[T])

func WithKey[T any](fn KeyFunc[T]) Option[T] {
	return func(r *Repository[T]) {
		r.key = fn
	}
}

// WithChunkSize sets the default bulk chunk size. Values <= 0 are ignored.
func WithChunkSize[T any](n int) Option[T] {
	return func(r *Repository[T]) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// Repository is a typed view on a single index. It resolves the engine on
// every call, so it keeps working across reconnects.
type Repository[T any] struct {
	l         *zap.Logger
	conn      connection.EngineSource
	index     entityrepo.IndexID
	key       KeyFunc[T]
	chunkSize int
}

func New[T any](l *zap.Logger, conn connection.EngineSource, index string, opts ...Option[T]) *Repository[T] {
	if l == nil {
		l = zap.NewNop()
	}
	r := &Repository[T]{
		conn:      conn,
		index:     entityrepo.NormalizeIndex(index),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.l = l.With(zap.String("index", string(r.index)))
	return r
}

func (r *Repository[T]) Index() entityrepo.IndexID {
	return r.index
}

// WithIndex returns a copy bound to another index.
func (r *Repository[T]) WithIndex(name string) *Repository[T] {
	c := *r
	c.index = entityrepo.NormalizeIndex(name)
	c.l = r.l.With(zap.String("index", string(c.index)))
	return &c
}

func (r *Repository[T]) engine() entityrepo.Engine {
	return r.conn.Engine()
}

// Get returns the document or false. Missing documents and failed lookups
// both count as absent, use Lookup to tell them apart.
func (r *Repository[T]) Get(ctx context.Context, id entityrepo.DocumentID) (*T, bool) {
	doc, err := r.Lookup(ctx, id)
	switch {
	case err == nil:
		return doc, true
	case errors.Is(err, entityrepo.ErrNotFound):
		r.l.Debug("document not found", zap.String("id", string(id)))
	default:
		r.l.Warn("failed to get document", zap.String("id", string(id)), zap.Error(err))
	}
	return nil, false
}

// Lookup returns the document, entityrepo.ErrNotFound or the engine error.
func (r *Repository[T]) Lookup(ctx context.Context, id entityrepo.DocumentID) (*T, error) {
	raw, err := r.engine().Get(ctx, r.index, id)
	if err != nil {
		return nil, err
	}
	doc := new(T)
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, &entityrepo.Error{Op: entityrepo.OpGet, Index: r.index, Err: err}
	}
	return doc, nil
}

// Add upserts the document.
func (r *Repository[T]) Add(ctx context.Context, doc T, id entityrepo.DocumentID) (entityrepo.WriteResult, error) {
	return r.engine().Index(ctx, r.index, id, doc)
}

// Update merges the non-empty fields of doc into the stored document.
func (r *Repository[T]) Update(ctx context.Context, doc T, id entityrepo.DocumentID) (entityrepo.WriteResult, error) {
	return r.engine().Update(ctx, r.index, id, doc)
}

// Patch merges exactly the given fields into the stored document.
func (r *Repository[T]) Patch(ctx context.Context, fields map[string]any, id entityrepo.DocumentID) (entityrepo.WriteResult, error) {
	return r.engine().Update(ctx, r.index, id, fields)
}

func (r *Repository[T]) Delete(ctx context.Context, id entityrepo.DocumentID) (entityrepo.WriteResult, error) {
	return r.engine().Delete(ctx, r.index, id)
}

func (r *Repository[T]) DeleteByQuery(ctx context.Context, filter entityrepo.Filter) (entityrepo.DeleteResult, error) {
	return r.engine().DeleteByQuery(ctx, r.index, filter)
}

// Count returns the number of documents matching filter, nil counts all.
func (r *Repository[T]) Count(ctx context.Context, filter entityrepo.Filter) (int64, error) {
	return r.engine().Count(ctx, r.index, filter)
}

// Find runs a windowed search and decodes the hits.
func (r *Repository[T]) Find(ctx context.Context, req entityrepo.SearchRequest) ([]T, int64, error) {
	result, err := r.engine().Search(ctx, r.index, req)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.decodeHits(result.Hits)
	if err != nil {
		return nil, 0, err
	}
	return items, result.Total, nil
}

// Search runs a full-text query and returns the hits with their rank.
func (r *Repository[T]) Search(ctx context.Context, q string, req entityrepo.SearchRequest) ([]T, entityrepo.Scores, error) {
	req.Query = q
	result, err := r.engine().Search(ctx, r.index, req)
	if err != nil {
		return nil, nil, err
	}
	items, err := r.decodeHits(result.Hits)
	if err != nil {
		return nil, nil, err
	}

	scores := make(entityrepo.Scores, len(result.Hits))
	for i, hit := range result.Hits {
		scores[hit.ID] = entityrepo.Score{ID: hit.ID, Index: i}
	}
	return items, scores, nil
}

func (r *Repository[T]) decodeHits(hits []entityrepo.Hit) ([]T, error) {
	items := make([]T, 0, len(hits))
	for _, hit := range hits {
		var item T
		if err := json.Unmarshal(hit.Source, &item); err != nil {
			return nil, &entityrepo.Error{Op: entityrepo.OpSearch, Index: r.index, Err: err}
		}
		items = append(items, item)
	}
	return items, nil
}
