package indexing

import (
	"context"
	"fmt"
	"slices"

	contentserverclient "github.com/foomo/contentserver/client"
	"github.com/foomo/contentserver/content"
	entityrepo "github.com/foomo/entityrepo/pkg"
	"go.uber.org/zap"
)

const ContentserverDataAttributeNoIndex = "entityrepoIndexing-noIndex"

// ContentRepository is the part of the contentserver client the provider needs.
type ContentRepository interface {
	GetRepo(ctx context.Context) (map[string]*content.RepoNode, error)
	GetURIs(ctx context.Context, dimension string, ids []string) (map[string]string, error)
}

var _ ContentRepository = (*contentserverclient.Client)(nil)

// ContentServer provides documents from a contentserver dimension named
// like the index.
type ContentServer[indexDocument any] struct {
	l                     *zap.Logger
	contentserverClient   ContentRepository
	documentProviderFuncs map[entityrepo.DocumentType]entityrepo.DocumentProviderFunc[indexDocument]
	supportedMimeTypes    []string
}

var _ entityrepo.DocumentProvider[struct{}] = (*ContentServer[struct{}])(nil)

func NewContentServer[indexDocument any](
	l *zap.Logger,
	client ContentRepository,
	documentProviderFuncs map[entityrepo.DocumentType]entityrepo.DocumentProviderFunc[indexDocument],
	supportedMimeTypes []string,
) *ContentServer[indexDocument] {
	return &ContentServer[indexDocument]{
		l:                     l,
		contentserverClient:   client,
		documentProviderFuncs: documentProviderFuncs,
		supportedMimeTypes:    supportedMimeTypes,
	}
}

// Provide retrieves documents for the given index from the content server.
// It collects the indexable nodes, resolves their URLs and builds a document
// per node with the provider func registered for its mime type.
// Nodes without a provider func or with a failing one are logged and skipped.
func (c *ContentServer[indexDocument]) Provide(
	ctx context.Context,
	indexID entityrepo.IndexID,
) ([]*indexDocument, error) {
	documentInfos, err := c.getDocumentIDsByIndexID(ctx, indexID)
	if err != nil {
		return nil, err
	}

	urlsByIDs, err := c.fetchURLsByDocumentIDs(ctx, indexID, documentInfos)
	if err != nil {
		return nil, err
	}

	documents := make([]*indexDocument, 0, len(documentInfos))
	for _, documentInfo := range documentInfos {
		documentProvider, ok := c.documentProviderFuncs[documentInfo.DocumentType]
		if !ok {
			c.l.Warn(
				"no document provider available for document type",
				zap.String("documentType", string(documentInfo.DocumentType)),
			)
			continue
		}

		document, err := documentProvider(ctx, indexID, documentInfo.DocumentID, urlsByIDs)
		if err != nil {
			c.l.Error(
				"index document not created",
				zap.Error(err),
				zap.String("documentID", string(documentInfo.DocumentID)),
				zap.String("documentType", string(documentInfo.DocumentType)),
			)
			continue
		}
		if document != nil {
			documents = append(documents, document)
		}
	}
	return documents, nil
}

func (c *ContentServer[indexDocument]) getDocumentIDsByIndexID(
	ctx context.Context,
	indexID entityrepo.IndexID,
) ([]entityrepo.DocumentInfo, error) {
	repo, err := c.contentserverClient.GetRepo(ctx)
	if err != nil {
		return nil, err
	}
	rootRepoNode, ok := repo[string(indexID)]
	if !ok {
		return nil, fmt.Errorf("contentserver dimension %s not found", indexID)
	}

	nodeMap := createFlatRepoNodeMap(rootRepoNode, map[string]*content.RepoNode{})
	ids := make([]string, 0, len(nodeMap))
	for id := range nodeMap {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	documentInfos := make([]entityrepo.DocumentInfo, 0, len(nodeMap))
	for _, id := range ids {
		repoNode := nodeMap[id]
		if !includeNode(c.supportedMimeTypes, repoNode) {
			c.l.Debug("skipping document indexing",
				zap.String("path", repoNode.URI),
				zap.String("mimeType", repoNode.MimeType),
				zap.Bool("hidden", repoNode.Hidden),
			)
			continue
		}

		documentInfos = append(documentInfos, entityrepo.DocumentInfo{
			DocumentType: entityrepo.DocumentType(repoNode.MimeType),
			DocumentID:   entityrepo.DocumentID(repoNode.ID),
		})
	}

	return documentInfos, nil
}

func (c *ContentServer[indexDocument]) fetchURLsByDocumentIDs(
	ctx context.Context,
	indexID entityrepo.IndexID,
	documentInfos []entityrepo.DocumentInfo,
) (map[entityrepo.DocumentID]string, error) {
	ids := make([]string, len(documentInfos))
	for i, documentInfo := range documentInfos {
		ids[i] = string(documentInfo.DocumentID)
	}

	uriMap, err := c.contentserverClient.GetURIs(ctx, string(indexID), ids)
	if err != nil {
		c.l.Error("failed to get URIs", zap.Error(err))
		return nil, err
	}

	urlsByIDs := make(map[entityrepo.DocumentID]string, len(uriMap))
	for id, uri := range uriMap {
		urlsByIDs[entityrepo.DocumentID(id)] = uri
	}
	return urlsByIDs, nil
}

// includeNode skips nil nodes, nodes flagged as noIndex and unsupported mime types.
func includeNode(supportedMimeTypes []string, node *content.RepoNode) bool {
	if node == nil {
		return false
	}
	if noIndex, noIndexSet := node.Data[ContentserverDataAttributeNoIndex].(bool); noIndexSet && noIndex {
		return false
	}
	return slices.Contains(supportedMimeTypes, node.MimeType)
}

// createFlatRepoNodeMap flattens the node tree into a map keyed by node id.
func createFlatRepoNodeMap(node *content.RepoNode, nodeMap map[string]*content.RepoNode) map[string]*content.RepoNode {
	if node == nil {
		return nodeMap
	}
	nodeMap[node.ID] = node
	for _, child := range node.Nodes {
		nodeMap = createFlatRepoNodeMap(child, nodeMap)
	}
	return nodeMap
}
