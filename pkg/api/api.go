package typesenseapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/typesense/typesense-go/v3/typesense"
	"github.com/typesense/typesense-go/v3/typesense/api"
	"github.com/typesense/typesense-go/v3/typesense/api/pointer"
	"go.uber.org/zap"
)

const (
	engineName              = "typesense"
	defaultSearchPresetName = "default"
	defaultHealthTimeout    = 5 * time.Second
	documentIDField         = "id"
)

// Compile-time check: BaseAPI implements the engine and revision interfaces.
var (
	_ entityrepo.Engine  = (*BaseAPI)(nil)
	_ entityrepo.Reviser = (*BaseAPI)(nil)
)

type BaseAPI struct {
	l           *zap.Logger
	client      *typesense.Client
	collections map[entityrepo.IndexID]*api.CollectionSchema
	preset      *api.PresetUpsertSchema
	autoSchema  bool
	queryBy     string
	now         func() time.Time
}

type Option func(*BaseAPI)

// WithCollections configures the schemas used to create revision collections.
func WithCollections(collections map[entityrepo.IndexID]*api.CollectionSchema) Option {
	return func(b *BaseAPI) {
		b.collections = collections
	}
}

// WithAutoSchema lets revisions of indices without a configured schema use a
// schema that detects every field type from the documents.
func WithAutoSchema() Option {
	return func(b *BaseAPI) {
		b.autoSchema = true
	}
}

func WithPreset(preset *api.PresetUpsertSchema) Option {
	return func(b *BaseAPI) {
		b.preset = preset
	}
}

func WithQueryBy(queryBy string) Option {
	return func(b *BaseAPI) {
		b.queryBy = queryBy
	}
}

func NewBaseAPI(l *zap.Logger, client *typesense.Client, opts ...Option) *BaseAPI {
	b := &BaseAPI{
		l:           l,
		client:      client,
		collections: map[entityrepo.IndexID]*api.CollectionSchema{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BaseAPI) Name() string {
	return engineName
}

// Ping calls the typesense health endpoint
func (b *BaseAPI) Ping(ctx context.Context) error {
	ok, err := b.client.Health(ctx, defaultHealthTimeout)
	if err != nil {
		return &entityrepo.Error{Op: entityrepo.OpPing, Err: err}
	}
	if !ok {
		return &entityrepo.Error{Op: entityrepo.OpPing, Err: errors.New("typesense reported unhealthy")}
	}
	return nil
}

func (b *BaseAPI) Get(ctx context.Context, index entityrepo.IndexID, id entityrepo.DocumentID) (json.RawMessage, error) {
	document, err := b.client.Collection(string(index)).Document(string(id)).Retrieve(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, &entityrepo.Error{Op: entityrepo.OpGet, Index: index, Err: entityrepo.ErrNotFound}
		}
		return nil, &entityrepo.Error{Op: entityrepo.OpGet, Index: index, Err: err}
	}
	raw, err := json.Marshal(document)
	if err != nil {
		return nil, &entityrepo.Error{Op: entityrepo.OpGet, Index: index, Err: err}
	}
	return raw, nil
}

func (b *BaseAPI) Index(
	ctx context.Context,
	index entityrepo.IndexID,
	id entityrepo.DocumentID,
	document any,
) (entityrepo.WriteResult, error) {
	docMap, err := withDocumentID(document, id)
	if err != nil {
		return entityrepo.WriteResult{}, &entityrepo.Error{Op: entityrepo.OpIndex, Index: index, Err: err}
	}
	if _, err := b.client.Collection(string(index)).Documents().Upsert(ctx, docMap, &api.DocumentIndexParameters{}); err != nil {
		b.l.Error("Failed to upsert document",
			zap.String("collection", string(index)),
			zap.String("documentID", string(id)),
			zap.Error(err),
		)
		return entityrepo.WriteResult{}, &entityrepo.Error{Op: entityrepo.OpIndex, Index: index, Err: err}
	}
	return entityrepo.WriteResult{Index: index, ID: id, Result: "upserted"}, nil
}

func (b *BaseAPI) Update(
	ctx context.Context,
	index entityrepo.IndexID,
	id entityrepo.DocumentID,
	partial any,
) (entityrepo.WriteResult, error) {
	if _, err := b.client.Collection(string(index)).Document(string(id)).Update(ctx, partial, &api.DocumentIndexParameters{}); err != nil {
		if isNotFound(err) {
			err = errors.Join(entityrepo.ErrNotFound, err)
		}
		return entityrepo.WriteResult{}, &entityrepo.Error{Op: entityrepo.OpUpdate, Index: index, Err: err}
	}
	return entityrepo.WriteResult{Index: index, ID: id, Result: "updated"}, nil
}

func (b *BaseAPI) Delete(ctx context.Context, index entityrepo.IndexID, id entityrepo.DocumentID) (entityrepo.WriteResult, error) {
	if _, err := b.client.Collection(string(index)).Document(string(id)).Delete(ctx); err != nil {
		if isNotFound(err) {
			err = errors.Join(entityrepo.ErrNotFound, err)
		}
		return entityrepo.WriteResult{}, &entityrepo.Error{Op: entityrepo.OpDelete, Index: index, Err: err}
	}
	return entityrepo.WriteResult{Index: index, ID: id, Result: "deleted"}, nil
}

// DeleteByQuery removes every document matching the filter.
// typesense has no match-all delete, so a nil filter is rejected.
func (b *BaseAPI) DeleteByQuery(
	ctx context.Context,
	index entityrepo.IndexID,
	filter entityrepo.Filter,
) (entityrepo.DeleteResult, error) {
	filterBy, err := getFilterByString(filter)
	if err != nil {
		return entityrepo.DeleteResult{}, &entityrepo.Error{Op: entityrepo.OpDeleteByQuery, Index: index, Err: err}
	}
	if filterBy == "" {
		return entityrepo.DeleteResult{}, &entityrepo.Error{
			Op:    entityrepo.OpDeleteByQuery,
			Index: index,
			Err:   fmt.Errorf("%w: typesense requires a filter_by expression", entityrepo.ErrUnsupportedFilter),
		}
	}

	deleted, err := b.client.Collection(string(index)).Documents().Delete(ctx, &api.DeleteDocumentsParams{
		FilterBy: pointer.String(filterBy),
	})
	if err != nil {
		b.l.Error("Failed to delete documents by filter",
			zap.String("collection", string(index)),
			zap.String("filterBy", filterBy),
			zap.Error(err),
		)
		return entityrepo.DeleteResult{}, &entityrepo.Error{Op: entityrepo.OpDeleteByQuery, Index: index, Err: err}
	}
	return entityrepo.DeleteResult{Deleted: int64(deleted)}, nil
}

// Count runs a wildcard search with per_page=0 and reads the found counter.
func (b *BaseAPI) Count(ctx context.Context, index entityrepo.IndexID, filter entityrepo.Filter) (int64, error) {
	parameters, err := buildSearchParams(b.queryBy, entityrepo.SearchRequest{Filter: filter})
	if err != nil {
		return 0, &entityrepo.Error{Op: entityrepo.OpCount, Index: index, Err: err}
	}
	searchResponse, err := b.client.Collection(string(index)).Documents().Search(ctx, parameters)
	if err != nil {
		return 0, &entityrepo.Error{Op: entityrepo.OpCount, Index: index, Err: err}
	}
	if searchResponse.Found == nil {
		return 0, nil
	}
	return int64(*searchResponse.Found), nil
}

// Search will perform a search operation on the given index
// it will return the raw hits together with the text match scores
func (b *BaseAPI) Search(
	ctx context.Context,
	index entityrepo.IndexID,
	req entityrepo.SearchRequest,
) (entityrepo.SearchResult, error) {
	parameters, err := buildSearchParams(b.queryBy, req)
	if err != nil {
		return entityrepo.SearchResult{}, &entityrepo.Error{Op: entityrepo.OpSearch, Index: index, Err: err}
	}

	collectionName := string(index)
	searchResponse, err := b.client.Collection(collectionName).Documents().Search(ctx, parameters)
	if err != nil {
		b.l.Error("Failed to perform search", zap.String("index", collectionName), zap.Error(err))
		return entityrepo.SearchResult{}, &entityrepo.Error{Op: entityrepo.OpSearch, Index: index, Err: err}
	}

	result := entityrepo.SearchResult{}
	if searchResponse.Found != nil {
		result.Total = int64(*searchResponse.Found)
	}
	if searchResponse.Hits == nil {
		return result, nil
	}

	result.Hits = make([]entityrepo.Hit, 0, len(*searchResponse.Hits))
	for _, hit := range *searchResponse.Hits {
		if hit.Document == nil {
			continue
		}
		docMap := *hit.Document

		// Extract document ID safely
		docID, ok := docMap[documentIDField].(string)
		if !ok {
			b.l.Warn("Missing or invalid document ID in search result", zap.String("index", collectionName))
			continue
		}

		hitJSON, err := json.Marshal(docMap)
		if err != nil {
			b.l.Warn("Failed to marshal search hit", zap.String("index", collectionName), zap.Error(err))
			continue
		}

		score := 0
		if hit.TextMatchInfo != nil && hit.TextMatchInfo.Score != nil {
			if parsed, err := strconv.Atoi(*hit.TextMatchInfo.Score); err == nil {
				score = parsed
			} else {
				b.l.Warn("Invalid score value", zap.String("score", *hit.TextMatchInfo.Score), zap.Error(err))
			}
		}

		result.Hits = append(result.Hits, entityrepo.Hit{
			ID:     entityrepo.DocumentID(docID),
			Score:  float64(score),
			Source: hitJSON,
		})
	}

	b.l.Debug("Search completed",
		zap.String("index", collectionName),
		zap.Int("results_count", len(result.Hits)),
		zap.Int64("found", result.Total),
	)

	return result, nil
}

// Bulk upserts all operations with a single import call.
func (b *BaseAPI) Bulk(
	ctx context.Context,
	index entityrepo.IndexID,
	operations []entityrepo.BulkOperation,
) (entityrepo.BulkResult, error) {
	if len(operations) == 0 {
		b.l.Warn("No documents provided for upsert", zap.String("index", string(index)))
		return entityrepo.BulkResult{}, nil
	}

	collectionName := string(index)

	// import() takes []interface{}, every document carries its id field
	docInterfaces := make([]interface{}, len(operations))
	for i, operation := range operations {
		docMap, err := withDocumentID(operation.Document, operation.ID)
		if err != nil {
			return entityrepo.BulkResult{}, &entityrepo.Error{Op: entityrepo.OpBulk, Index: index, Err: err}
		}
		docInterfaces[i] = docMap
	}

	params := &api.ImportDocumentsParams{
		Action: (*api.IndexAction)(pointer.String("upsert")),
	}

	importResults, err := b.client.Collection(collectionName).Documents().Import(ctx, docInterfaces, params)
	if err != nil {
		b.l.Error("Failed to bulk upsert documents", zap.String("collection", collectionName), zap.Error(err))
		return entityrepo.BulkResult{}, &entityrepo.Error{Op: entityrepo.OpBulk, Index: index, Err: err}
	}

	result := entityrepo.BulkResult{Batches: 1}
	for i, importResult := range importResults {
		if importResult.Success {
			result.Succeeded++
			continue
		}
		result.Failed++
		itemError := entityrepo.BulkItemError{Reason: importResult.Error}
		if i < len(operations) {
			itemError.ID = operations[i].ID
		}
		result.Errors = append(result.Errors, itemError)
		b.l.Warn("Document failed to upsert",
			zap.String("collection", collectionName),
			zap.String("documentID", string(itemError.ID)),
			zap.String("error", importResult.Error),
		)
	}

	b.l.Info("Bulk upsert completed",
		zap.String("collection", collectionName),
		zap.Int("successful_documents", result.Succeeded),
		zap.Int("failed_documents", result.Failed),
	)
	return result, nil
}

// withDocumentID converts a document into a map carrying the typesense id field.
func withDocumentID(document any, id entityrepo.DocumentID) (map[string]any, error) {
	raw, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", id, err)
	}
	docMap := map[string]any{}
	if err := json.Unmarshal(raw, &docMap); err != nil {
		return nil, fmt.Errorf("document %s is not a json object: %w", id, err)
	}
	docMap[documentIDField] = string(id)
	return docMap, nil
}

func isNotFound(err error) bool {
	var httpErr *typesense.HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound
}
