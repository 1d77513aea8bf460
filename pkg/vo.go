package entityrepo

import (
	"encoding/json"
	"fmt"
	"strings"
)

type RevisionID string
type IndexID string
type DocumentID string
type DocumentType string

type Scores map[DocumentID]Score

type Score struct {
	ID    DocumentID
	Index int
}

// NormalizeIndex trims the name and lower-cases it.
// Engines reject or silently fold upper-case index names, so every repository
// resolves its index through this function exactly once.
func NormalizeIndex(name string) IndexID {
	return IndexID(strings.ToLower(strings.TrimSpace(name)))
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type SortField struct {
	Field string
	Order SortOrder
}

func Asc(field string) SortField {
	return SortField{Field: field, Order: SortAsc}
}

func Desc(field string) SortField {
	return SortField{Field: field, Order: SortDesc}
}

func (s SortField) String() string {
	order := s.Order
	if order == "" {
		order = SortAsc
	}
	return s.Field + ":" + string(order)
}

// ParseSort parses "field:asc,other:desc". A missing order defaults to asc.
func ParseSort(value string) ([]SortField, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	fields := make([]SortField, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, order, _ := strings.Cut(part, ":")
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, fmt.Errorf("invalid sort clause %q", part)
		}
		switch SortOrder(strings.ToLower(strings.TrimSpace(order))) {
		case "", SortAsc:
			fields = append(fields, Asc(field))
		case SortDesc:
			fields = append(fields, Desc(field))
		default:
			return nil, fmt.Errorf("invalid sort order %q for field %s", order, field)
		}
	}
	return fields, nil
}

// Filter is an engine-native query expression passed to the engine untouched.
// nil matches all documents.
type Filter any

type SearchRequest struct {
	// Query is a full-text query; empty means match all
	Query  string
	Filter Filter
	From   int
	Size   int
	Sort   []SortField
}

type Hit struct {
	ID     DocumentID
	Score  float64
	Source json.RawMessage
}

type SearchResult struct {
	Total int64
	Hits  []Hit
}

type WriteResult struct {
	Index   IndexID
	ID      DocumentID
	Result  string
	Version int64
}

type DeleteResult struct {
	Deleted int64
}

type BulkOperation struct {
	ID       DocumentID
	Document any
}

type BulkItemError struct {
	ID     DocumentID
	Reason string
}

type BulkResult struct {
	Batches   int
	Succeeded int
	Failed    int
	Errors    []BulkItemError
}

// Merge folds the outcome of another batch into r.
func (r *BulkResult) Merge(other BulkResult) {
	r.Batches += other.Batches
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// Page is one window of a paginated query.
type Page[T any] struct {
	Page        int   `json:"page"`
	Size        int   `json:"size"`
	TotalCount  int64 `json:"totalCount"`
	PagesCount  int64 `json:"pagesCount"`
	HasPrevious bool  `json:"hasPrevious"`
	HasNext     bool  `json:"hasNext"`
	Items       []T   `json:"items"`
}
