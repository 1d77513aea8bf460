package indexing

import (
	"context"
	"errors"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/foomo/entityrepo/pkg/connection"
	"github.com/foomo/entityrepo/pkg/repository"
	"go.uber.org/zap"
)

// ErrTainted is returned when at least one index failed and the run was
// reverted or left incomplete.
var ErrTainted = errors.New("indexing run tainted")

// Initializer is implemented by engines that need to prepare their indices
// before a run.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Indexer reloads whole indices from a document provider.
type Indexer[T any] struct {
	l                *zap.Logger
	conn             connection.EngineSource
	repository       *repository.Repository[T]
	documentProvider entityrepo.DocumentProvider[T]
	indices          []entityrepo.IndexID
}

// NewIndexer creates an indexer for the given indices. The repository must
// carry a key function, its own index is replaced per run step.
func NewIndexer[T any](
	l *zap.Logger,
	conn connection.EngineSource,
	repo *repository.Repository[T],
	documentProvider entityrepo.DocumentProvider[T],
	indices ...string,
) *Indexer[T] {
	normalized := make([]entityrepo.IndexID, 0, len(indices))
	for _, index := range indices {
		normalized = append(normalized, entityrepo.NormalizeIndex(index))
	}
	return &Indexer[T]{
		l:                l,
		conn:             conn,
		repository:       repo,
		documentProvider: documentProvider,
		indices:          normalized,
	}
}

func (i *Indexer[T]) Healthz(ctx context.Context) error {
	return i.conn.Engine().Ping(ctx)
}

type revision struct {
	index entityrepo.IndexID
	id    entityrepo.RevisionID
}

// Run fetches all documents per index and bulk loads them. Engines with
// revision support load into fresh revisions that are committed together,
// or reverted together when any index failed. Indices the engine has no
// revision schema for are written to the live index.
func (i *Indexer[T]) Run(ctx context.Context) error {
	engine := i.conn.Engine()

	if initializer, ok := engine.(Initializer); ok {
		if err := initializer.Initialize(ctx); err != nil {
			i.l.Error("Failed to initialize engine", zap.String("engine", engine.Name()), zap.Error(err))
			return err
		}
	}
	reviser, _ := engine.(entityrepo.Reviser)

	tainted := false
	indexedDocuments := 0
	revisions := make([]revision, 0, len(i.indices))

	for _, indexID := range i.indices {
		documents, err := i.documentProvider.Provide(ctx, indexID)
		if err != nil {
			i.l.Error("Failed to fetch documents", zap.String("index", string(indexID)), zap.Error(err))
			tainted = true
			continue
		}

		target := indexID
		if reviser != nil {
			revisionID, err := reviser.NewRevision(ctx, indexID)
			switch {
			case errors.Is(err, entityrepo.ErrNoSchema):
				i.l.Warn("No schema for revision, writing to live index", zap.String("index", string(indexID)))
			case err != nil:
				i.l.Error("Failed to create revision", zap.String("index", string(indexID)), zap.Error(err))
				tainted = true
				continue
			default:
				revisions = append(revisions, revision{index: indexID, id: revisionID})
				target = reviser.RevisionIndex(indexID, revisionID)
			}
		}

		result, err := i.repository.WithIndex(string(target)).AddRangeBy(ctx, documents, 0)
		if err != nil {
			i.l.Error(
				"Failed to upsert documents",
				zap.String("index", string(indexID)),
				zap.String("target", string(target)),
				zap.Int("documents", len(documents)),
				zap.Error(err),
			)
			tainted = true
			continue
		}
		if result.Failed > 0 {
			i.l.Warn("Some documents were rejected",
				zap.String("index", string(indexID)),
				zap.Int("failed", result.Failed),
			)
		}

		indexedDocuments += result.Succeeded
		i.l.Info("Successfully upserted documents",
			zap.String("index", string(indexID)),
			zap.Int("count", result.Succeeded),
			zap.Int("batches", result.Batches),
		)
	}

	if reviser == nil {
		if tainted {
			return ErrTainted
		}
		return nil
	}

	if !tainted && indexedDocuments > 0 {
		for _, r := range revisions {
			if err := reviser.CommitRevision(ctx, r.index, r.id); err != nil {
				i.l.Error("Failed to commit revision", zap.String("revision", string(r.id)), zap.Error(err))
				return err
			}
			i.l.Info("Successfully committed revision", zap.String("revision", string(r.id)))
		}
		return nil
	}

	i.l.Warn("Errors detected or nothing indexed, reverting revisions",
		zap.Bool("tainted", tainted),
		zap.Int("revisions", len(revisions)),
	)
	var errs []error
	for _, r := range revisions {
		if err := reviser.RevertRevision(ctx, r.index, r.id); err != nil {
			i.l.Error("Failed to revert revision", zap.String("revision", string(r.id)), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		i.l.Info("Successfully reverted revision", zap.String("revision", string(r.id)))
	}
	if tainted {
		errs = append([]error{ErrTainted}, errs...)
	}
	return errors.Join(errs...)
}
