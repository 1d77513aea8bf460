package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"go.uber.org/zap"
)

const engineName = "opensearch"

var _ entityrepo.Engine = (*Engine)(nil)

// Engine implements entityrepo.Engine on top of the opensearch-go request structs.
type Engine struct {
	l       *zap.Logger
	client  *opensearch.Client
	refresh string
}

func NewEngine(l *zap.Logger, client *opensearch.Client, refresh string) *Engine {
	return &Engine{l: l, client: client, refresh: refresh}
}

func (e *Engine) Name() string {
	return engineName
}

func (e *Engine) Ping(ctx context.Context) error {
	if err := Healthcheck(e.client)(ctx); err != nil {
		return &entityrepo.Error{Op: entityrepo.OpPing, Err: err}
	}
	return nil
}

type getResponse struct {
	Found  bool            `json:"found"`
	Source json.RawMessage `json:"_source"`
}

func (e *Engine) Get(ctx context.Context, index entityrepo.IndexID, id entityrepo.DocumentID) (json.RawMessage, error) {
	res, err := opensearchapi.GetRequest{
		Index:      string(index),
		DocumentID: string(id),
	}.Do(ctx, e.client)
	if err != nil {
		return nil, &entityrepo.Error{Op: entityrepo.OpGet, Index: index, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, &entityrepo.Error{Op: entityrepo.OpGet, Index: index, Err: entityrepo.ErrNotFound}
	}
	var body getResponse
	if err := decodeResponse(res, &body); err != nil {
		return nil, &entityrepo.Error{Op: entityrepo.OpGet, Index: index, Err: err}
	}
	if !body.Found {
		return nil, &entityrepo.Error{Op: entityrepo.OpGet, Index: index, Err: entityrepo.ErrNotFound}
	}
	return body.Source, nil
}

type writeResponse struct {
	Index   string `json:"_index"`
	ID      string `json:"_id"`
	Version int64  `json:"_version"`
	Result  string `json:"result"`
}

func (r writeResponse) toResult() entityrepo.WriteResult {
	return entityrepo.WriteResult{
		Index:   entityrepo.IndexID(r.Index),
		ID:      entityrepo.DocumentID(r.ID),
		Result:  r.Result,
		Version: r.Version,
	}
}

func (e *Engine) Index(
	ctx context.Context,
	index entityrepo.IndexID,
	id entityrepo.DocumentID,
	document any,
) (entityrepo.WriteResult, error) {
	body, err := encodeBody(document)
	if err != nil {
		return entityrepo.WriteResult{}, &entityrepo.Error{Op: entityrepo.OpIndex, Index: index, Err: err}
	}
	res, err := opensearchapi.IndexRequest{
		Index:      string(index),
		DocumentID: string(id),
		Body:       body,
		Refresh:    e.refresh,
	}.Do(ctx, e.client)
	return e.write(res, err, entityrepo.OpIndex, index)
}

// Update sends a partial document merge.
func (e *Engine) Update(
	ctx context.Context,
	index entityrepo.IndexID,
	id entityrepo.DocumentID,
	partial any,
) (entityrepo.WriteResult, error) {
	body, err := encodeBody(map[string]any{"doc": partial})
	if err != nil {
		return entityrepo.WriteResult{}, &entityrepo.Error{Op: entityrepo.OpUpdate, Index: index, Err: err}
	}
	res, err := opensearchapi.UpdateRequest{
		Index:      string(index),
		DocumentID: string(id),
		Body:       body,
		Refresh:    e.refresh,
	}.Do(ctx, e.client)
	return e.write(res, err, entityrepo.OpUpdate, index)
}

func (e *Engine) Delete(ctx context.Context, index entityrepo.IndexID, id entityrepo.DocumentID) (entityrepo.WriteResult, error) {
	res, err := opensearchapi.DeleteRequest{
		Index:      string(index),
		DocumentID: string(id),
		Refresh:    e.refresh,
	}.Do(ctx, e.client)
	return e.write(res, err, entityrepo.OpDelete, index)
}

func (e *Engine) write(res *opensearchapi.Response, err error, op string, index entityrepo.IndexID) (entityrepo.WriteResult, error) {
	if err != nil {
		return entityrepo.WriteResult{}, &entityrepo.Error{Op: op, Index: index, Err: err}
	}
	defer res.Body.Close()

	var body writeResponse
	if err := decodeResponse(res, &body); err != nil {
		if res.StatusCode == http.StatusNotFound {
			err = errors.Join(entityrepo.ErrNotFound, err)
		}
		return entityrepo.WriteResult{}, &entityrepo.Error{Op: op, Index: index, Err: err}
	}
	return body.toResult(), nil
}

func (e *Engine) DeleteByQuery(
	ctx context.Context,
	index entityrepo.IndexID,
	filter entityrepo.Filter,
) (entityrepo.DeleteResult, error) {
	query, err := buildQuery(filter)
	if err != nil {
		return entityrepo.DeleteResult{}, &entityrepo.Error{Op: entityrepo.OpDeleteByQuery, Index: index, Err: err}
	}
	body, err := encodeBody(map[string]any{"query": query})
	if err != nil {
		return entityrepo.DeleteResult{}, &entityrepo.Error{Op: entityrepo.OpDeleteByQuery, Index: index, Err: err}
	}
	res, err := opensearchapi.DeleteByQueryRequest{
		Index: []string{string(index)},
		Body:  body,
	}.Do(ctx, e.client)
	if err != nil {
		return entityrepo.DeleteResult{}, &entityrepo.Error{Op: entityrepo.OpDeleteByQuery, Index: index, Err: err}
	}
	defer res.Body.Close()

	var response struct {
		Deleted int64 `json:"deleted"`
	}
	if err := decodeResponse(res, &response); err != nil {
		return entityrepo.DeleteResult{}, &entityrepo.Error{Op: entityrepo.OpDeleteByQuery, Index: index, Err: err}
	}
	return entityrepo.DeleteResult{Deleted: response.Deleted}, nil
}

func (e *Engine) Count(ctx context.Context, index entityrepo.IndexID, filter entityrepo.Filter) (int64, error) {
	query, err := buildQuery(filter)
	if err != nil {
		return 0, &entityrepo.Error{Op: entityrepo.OpCount, Index: index, Err: err}
	}
	body, err := encodeBody(map[string]any{"query": query})
	if err != nil {
		return 0, &entityrepo.Error{Op: entityrepo.OpCount, Index: index, Err: err}
	}
	res, err := opensearchapi.CountRequest{
		Index: []string{string(index)},
		Body:  body,
	}.Do(ctx, e.client)
	if err != nil {
		return 0, &entityrepo.Error{Op: entityrepo.OpCount, Index: index, Err: err}
	}
	defer res.Body.Close()

	var response struct {
		Count int64 `json:"count"`
	}
	if err := decodeResponse(res, &response); err != nil {
		return 0, &entityrepo.Error{Op: entityrepo.OpCount, Index: index, Err: err}
	}
	return response.Count, nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Score  *float64        `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *Engine) Search(
	ctx context.Context,
	index entityrepo.IndexID,
	req entityrepo.SearchRequest,
) (entityrepo.SearchResult, error) {
	searchBody, err := buildSearchBody(req)
	if err != nil {
		return entityrepo.SearchResult{}, &entityrepo.Error{Op: entityrepo.OpSearch, Index: index, Err: err}
	}
	body, err := encodeBody(searchBody)
	if err != nil {
		return entityrepo.SearchResult{}, &entityrepo.Error{Op: entityrepo.OpSearch, Index: index, Err: err}
	}
	res, err := opensearchapi.SearchRequest{
		Index: []string{string(index)},
		Body:  body,
	}.Do(ctx, e.client)
	if err != nil {
		return entityrepo.SearchResult{}, &entityrepo.Error{Op: entityrepo.OpSearch, Index: index, Err: err}
	}
	defer res.Body.Close()

	var response searchResponse
	if err := decodeResponse(res, &response); err != nil {
		return entityrepo.SearchResult{}, &entityrepo.Error{Op: entityrepo.OpSearch, Index: index, Err: err}
	}

	result := entityrepo.SearchResult{
		Total: response.Hits.Total.Value,
		Hits:  make([]entityrepo.Hit, 0, len(response.Hits.Hits)),
	}
	for _, hit := range response.Hits.Hits {
		score := 0.0
		if hit.Score != nil {
			score = *hit.Score
		}
		result.Hits = append(result.Hits, entityrepo.Hit{
			ID:     entityrepo.DocumentID(hit.ID),
			Score:  score,
			Source: hit.Source,
		})
	}
	return result, nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Bulk sends one NDJSON request with an index action per operation.
func (e *Engine) Bulk(
	ctx context.Context,
	index entityrepo.IndexID,
	operations []entityrepo.BulkOperation,
) (entityrepo.BulkResult, error) {
	if len(operations) == 0 {
		e.l.Warn("No documents provided for bulk", zap.String("index", string(index)))
		return entityrepo.BulkResult{}, nil
	}

	body, err := buildBulkBody(index, operations)
	if err != nil {
		return entityrepo.BulkResult{}, &entityrepo.Error{Op: entityrepo.OpBulk, Index: index, Err: err}
	}
	res, err := opensearchapi.BulkRequest{
		Index:   string(index),
		Body:    body,
		Refresh: e.refresh,
	}.Do(ctx, e.client)
	if err != nil {
		return entityrepo.BulkResult{}, &entityrepo.Error{Op: entityrepo.OpBulk, Index: index, Err: err}
	}
	defer res.Body.Close()

	var response bulkResponse
	if err := decodeResponse(res, &response); err != nil {
		return entityrepo.BulkResult{}, &entityrepo.Error{Op: entityrepo.OpBulk, Index: index, Err: err}
	}

	result := entityrepo.BulkResult{Batches: 1}
	for _, item := range response.Items {
		for _, action := range item {
			if action.Error == nil && action.Status < http.StatusBadRequest {
				result.Succeeded++
				continue
			}
			result.Failed++
			reason := http.StatusText(action.Status)
			if action.Error != nil {
				reason = action.Error.Type + ": " + action.Error.Reason
			}
			result.Errors = append(result.Errors, entityrepo.BulkItemError{
				ID:     entityrepo.DocumentID(action.ID),
				Reason: reason,
			})
		}
	}

	e.l.Info("Bulk index completed",
		zap.String("index", string(index)),
		zap.Int("successful_documents", result.Succeeded),
		zap.Int("failed_documents", result.Failed),
	)
	return result, nil
}

// buildQuery turns a filter into a query DSL object.
func buildQuery(filter entityrepo.Filter) (any, error) {
	switch f := filter.(type) {
	case nil:
		return map[string]any{"match_all": map[string]any{}}, nil
	case map[string]any:
		if len(f) == 0 {
			return map[string]any{"match_all": map[string]any{}}, nil
		}
		return f, nil
	case json.RawMessage:
		if len(f) == 0 {
			return map[string]any{"match_all": map[string]any{}}, nil
		}
		return f, nil
	case string:
		if f == "" {
			return map[string]any{"match_all": map[string]any{}}, nil
		}
		return map[string]any{"query_string": map[string]any{"query": f}}, nil
	default:
		return nil, fmt.Errorf("%w: %T", entityrepo.ErrUnsupportedFilter, filter)
	}
}

func buildSearchBody(req entityrepo.SearchRequest) (map[string]any, error) {
	query, err := buildQuery(req.Filter)
	if err != nil {
		return nil, err
	}
	if req.Query != "" {
		query = map[string]any{
			"bool": map[string]any{
				"must":   map[string]any{"query_string": map[string]any{"query": req.Query}},
				"filter": query,
			},
		}
	}

	body := map[string]any{
		"from":  max(req.From, 0),
		"size":  max(req.Size, 0),
		"query": query,
	}
	if len(req.Sort) > 0 {
		sort := make([]map[string]any, len(req.Sort))
		for i, field := range req.Sort {
			order := field.Order
			if order == "" {
				order = entityrepo.SortAsc
			}
			sort[i] = map[string]any{field.Field: map[string]any{"order": string(order)}}
		}
		body["sort"] = sort
	}
	return body, nil
}

func buildBulkBody(index entityrepo.IndexID, operations []entityrepo.BulkOperation) (io.Reader, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, operation := range operations {
		action := map[string]any{
			"index": map[string]any{"_index": string(index), "_id": string(operation.ID)},
		}
		if err := enc.Encode(action); err != nil {
			return nil, err
		}
		if err := enc.Encode(operation.Document); err != nil {
			return nil, fmt.Errorf("encode document %s: %w", operation.ID, err)
		}
	}
	return &buf, nil
}

func encodeBody(v any) (io.Reader, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(raw), nil
}

func decodeResponse(res *opensearchapi.Response, v any) error {
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return &ResponseError{Status: res.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return errors.Join(errors.New("decode opensearch response"), err)
	}
	return nil
}
