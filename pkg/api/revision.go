package typesenseapi

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/typesense/typesense-go/v3/typesense/api"
	"go.uber.org/zap"
)

const (
	revisionLayout = "2006-01-02-15-04-05"
	// keep the live revision and the one before it
	keepRevisions = 2

	autoSchemaField = ".*"
	autoSchemaType  = "auto"
)

// Indices returns a list of all configured index IDs
func (b *BaseAPI) Indices() []entityrepo.IndexID {
	indices := make([]entityrepo.IndexID, 0, len(b.collections))
	for index := range b.collections {
		indices = append(indices, index)
	}
	slices.Sort(indices)
	return indices
}

// Initialize
// Ensures every configured index is reachable through an alias of the same name.
//
// example:
//
//	b.collections := map[IndexID]*api.CollectionSchema{
//		"www-bks-at-de":     {Name: "www-bks-at-de"},
//		"digital-bks-at-de": {Name: "digital-bks-at-de"},
//	}
//
// There should be 2 aliases: "www-bks-at-de" and "digital-bks-at-de", each linked to a
// collection named after the alias plus a revision ID, e.g. "www-bks-at-de-2021-01-01-12-00-00".
// Aliases that point to missing collections are reset onto a fresh, empty revision.
// Additionally, ensure that the configured search preset is present.
func (b *BaseAPI) Initialize(ctx context.Context) error {
	b.l.Info("Initializing Typesense collections and aliases...")

	// Step 1: Check Typesense connection
	if err := b.Ping(ctx); err != nil {
		b.l.Error("Typesense health check failed", zap.Error(err))
		return err
	}

	// Step 2: Retrieve existing aliases and collections
	aliases, err := b.client.Aliases().Retrieve(ctx)
	if err != nil {
		b.l.Error("Failed to retrieve aliases", zap.Error(err))
		return err
	}

	existingCollections, err := b.fetchExistingCollections(ctx)
	if err != nil {
		return err
	}

	// Step 3: Find aliases that resolve to a live collection
	linked := make(map[entityrepo.IndexID]bool, len(aliases))
	for _, alias := range aliases {
		if alias == nil || alias.Name == nil {
			continue
		}
		indexID := entityrepo.IndexID(*alias.Name)
		if existingCollections[alias.CollectionName] {
			linked[indexID] = true
		} else {
			b.l.Warn("Alias points to missing collection, resetting", zap.String("alias", string(indexID)))
		}
	}

	// Step 4: Create an initial revision for every unlinked index
	for _, indexID := range b.Indices() {
		if linked[indexID] {
			continue
		}
		revisionID, err := b.NewRevision(ctx, indexID)
		if err != nil {
			return err
		}
		if err := b.ensureAliasMapping(ctx, indexID, formatCollectionName(indexID, revisionID)); err != nil {
			return err
		}
	}

	// Step 5: Ensure search preset is present
	if b.preset != nil {
		if _, err := b.client.Presets().Upsert(ctx, defaultSearchPresetName, b.preset); err != nil {
			b.l.Error("Failed to upsert search preset", zap.Error(err))
			return err
		}
	}

	b.l.Info("Initialization completed", zap.Int("indices", len(b.collections)))
	return nil
}

// NewRevision creates an empty collection for the index, named after the index
// and a timestamp based revision ID.
func (b *BaseAPI) NewRevision(ctx context.Context, index entityrepo.IndexID) (entityrepo.RevisionID, error) {
	schema, err := b.collectionSchema(index)
	if err != nil {
		return "", err
	}

	revisionID := b.generateRevisionID()
	collectionName := formatCollectionName(index, revisionID)

	b.l.Info("Creating new revision collection",
		zap.String("index", string(index)),
		zap.String("revisionID", string(revisionID)),
		zap.String("new_collection", collectionName),
	)

	if err := b.createCollectionIfNotExists(ctx, schema, collectionName); err != nil {
		return "", err
	}
	return revisionID, nil
}

func (b *BaseAPI) collectionSchema(index entityrepo.IndexID) (*api.CollectionSchema, error) {
	if schema, ok := b.collections[index]; ok && schema != nil {
		return schema, nil
	}
	if !b.autoSchema {
		return nil, fmt.Errorf("%w: %s", entityrepo.ErrNoSchema, index)
	}
	return &api.CollectionSchema{
		Name:   string(index),
		Fields: []api.Field{{Name: autoSchemaField, Type: autoSchemaType}},
	}, nil
}

func (b *BaseAPI) RevisionIndex(index entityrepo.IndexID, revisionID entityrepo.RevisionID) entityrepo.IndexID {
	return entityrepo.IndexID(formatCollectionName(index, revisionID))
}

// CommitRevision this is called when all the documents have been upserted
// it will update the alias to point to the new revision
// additionally it will remove old collections keeping only the latest revision and the one before
func (b *BaseAPI) CommitRevision(ctx context.Context, index entityrepo.IndexID, revisionID entityrepo.RevisionID) error {
	newCollectionName := formatCollectionName(index, revisionID)

	// Step 1: Update the alias to point to the new collection
	if err := b.ensureAliasMapping(ctx, index, newCollectionName); err != nil {
		return err
	}

	// Step 2: Clean up old collections, failures here are not fatal
	if err := b.pruneOldCollections(ctx, index, newCollectionName); err != nil {
		b.l.Error("Failed to clean up old collections", zap.String("alias", string(index)), zap.Error(err))
	}
	return nil
}

// RevertRevision will remove the collection created for the given revisionID
func (b *BaseAPI) RevertRevision(ctx context.Context, index entityrepo.IndexID, revisionID entityrepo.RevisionID) error {
	collectionName := formatCollectionName(index, revisionID)

	if _, err := b.client.Collection(collectionName).Delete(ctx); err != nil {
		b.l.Error("Failed to delete collection", zap.String("collection", collectionName), zap.Error(err))
		return err
	}

	b.l.Info("Reverted and deleted collection", zap.String("collection", collectionName))
	return nil
}

func (b *BaseAPI) fetchExistingCollections(ctx context.Context) (map[string]bool, error) {
	collections, err := b.client.Collections().Retrieve(ctx)
	if err != nil {
		b.l.Error("Failed to retrieve collections", zap.Error(err))
		return nil, err
	}
	existing := make(map[string]bool, len(collections))
	for _, collection := range collections {
		if collection != nil {
			existing[collection.Name] = true
		}
	}
	return existing, nil
}

func (b *BaseAPI) createCollectionIfNotExists(ctx context.Context, schema *api.CollectionSchema, collectionName string) error {
	existing, err := b.fetchExistingCollections(ctx)
	if err != nil {
		return err
	}
	if existing[collectionName] {
		b.l.Debug("Collection already exists", zap.String("collection", collectionName))
		return nil
	}

	collectionSchema := *schema
	collectionSchema.Name = collectionName
	if _, err := b.client.Collections().Create(ctx, &collectionSchema); err != nil {
		b.l.Error("Failed to create collection", zap.String("collection", collectionName), zap.Error(err))
		return err
	}
	return nil
}

func (b *BaseAPI) ensureAliasMapping(ctx context.Context, index entityrepo.IndexID, collectionName string) error {
	alias := string(index)
	if _, err := b.client.Aliases().Upsert(ctx, alias, &api.CollectionAliasSchema{
		CollectionName: collectionName,
	}); err != nil {
		b.l.Error("Failed to update alias", zap.String("alias", alias), zap.Error(err))
		return err
	}
	b.l.Info("Updated alias", zap.String("alias", alias), zap.String("collection", collectionName))
	return nil
}

func (b *BaseAPI) pruneOldCollections(ctx context.Context, index entityrepo.IndexID, currentCollection string) error {
	existing, err := b.fetchExistingCollections(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(existing))
	for name := range existing {
		names = append(names, name)
	}
	for _, name := range collectionsToPrune(index, currentCollection, names) {
		if _, err := b.client.Collection(name).Delete(ctx); err != nil {
			return err
		}
		b.l.Info("Removed old collection", zap.String("collection", name))
	}
	return nil
}

// collectionsToPrune returns the revision collections of index that fall outside
// the retention window. The current collection is never returned.
func collectionsToPrune(index entityrepo.IndexID, currentCollection string, collections []string) []string {
	var revisions []string
	for _, name := range collections {
		if extractRevisionID(name, string(index)) != "" {
			revisions = append(revisions, name)
		}
	}
	// revision IDs are timestamps, so the lexical order is chronological
	slices.Sort(revisions)
	slices.Reverse(revisions)

	var prune []string
	kept := 0
	for _, name := range revisions {
		if name == currentCollection || kept < keepRevisions {
			kept++
			continue
		}
		prune = append(prune, name)
	}
	return prune
}

func (b *BaseAPI) generateRevisionID() entityrepo.RevisionID {
	return entityrepo.RevisionID(b.now().UTC().Format(revisionLayout))
}

func formatCollectionName(index entityrepo.IndexID, revisionID entityrepo.RevisionID) string {
	return string(index) + "-" + string(revisionID)
}

// extractRevisionID returns the revision suffix of collectionName or "" if the
// collection does not belong to alias.
func extractRevisionID(collectionName, alias string) entityrepo.RevisionID {
	suffix, ok := strings.CutPrefix(collectionName, alias+"-")
	if !ok {
		return ""
	}
	if _, err := time.Parse(revisionLayout, suffix); err != nil {
		return ""
	}
	return entityrepo.RevisionID(suffix)
}
