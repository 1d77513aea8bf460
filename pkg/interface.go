package entityrepo

import (
	"context"
	"encoding/json"
)

// Engine is the untyped document-search driver every repository talks to.
// Implementations must be safe for concurrent use.
type Engine interface {
	// Name identifies the engine in logs and metrics
	Name() string
	// Ping is the lightweight liveness probe used by the connection monitor
	Ping(ctx context.Context) error

	// Get returns the raw document source or ErrNotFound
	Get(ctx context.Context, index IndexID, id DocumentID) (json.RawMessage, error)
	// Index upserts the document at the given identifier
	Index(ctx context.Context, index IndexID, id DocumentID, document any) (WriteResult, error)
	// Update merges a partial document into the stored one
	Update(ctx context.Context, index IndexID, id DocumentID, partial any) (WriteResult, error)
	Delete(ctx context.Context, index IndexID, id DocumentID) (WriteResult, error)
	DeleteByQuery(ctx context.Context, index IndexID, filter Filter) (DeleteResult, error)
	Count(ctx context.Context, index IndexID, filter Filter) (int64, error)
	Search(ctx context.Context, index IndexID, req SearchRequest) (SearchResult, error)
	// Bulk submits all operations as one batch request
	Bulk(ctx context.Context, index IndexID, operations []BulkOperation) (BulkResult, error)
}

// Dialer builds a fresh engine from the connection configuration it captured.
// It must not block on the network; liveness is the monitor's job.
type Dialer func(ctx context.Context) (Engine, error)

// Reviser is implemented by engines that can load into a shadow index and
// atomically swap an alias onto it.
type Reviser interface {
	NewRevision(ctx context.Context, index IndexID) (RevisionID, error)
	RevisionIndex(index IndexID, revisionID RevisionID) IndexID
	CommitRevision(ctx context.Context, index IndexID, revisionID RevisionID) error
	RevertRevision(ctx context.Context, index IndexID, revisionID RevisionID) error
}

type DocumentProvider[indexDocument any] interface {
	Provide(ctx context.Context, index IndexID) ([]*indexDocument, error)
}

type DocumentProviderFunc[indexDocument any] func(
	ctx context.Context,
	indexID IndexID,
	documentID DocumentID,
	urlsByIDs map[DocumentID]string,
) (*indexDocument, error)

type DocumentInfo struct {
	DocumentType DocumentType
	DocumentID   DocumentID
}
