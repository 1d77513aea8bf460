package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	contentserverclient "github.com/foomo/contentserver/client"
	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/foomo/entityrepo/pkg/connection"
	"github.com/foomo/entityrepo/pkg/indexing"
	"github.com/foomo/entityrepo/pkg/repository"
	"github.com/spf13/cobra"
)

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the engine is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.engine.Ping(ctx); err != nil {
				return fmt.Errorf("%s is not reachable: %w", s.engine.Name(), err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is reachable\n", s.engine.Name())
			return err
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a document by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			doc, err := s.repository().Lookup(ctx, entityrepo.DocumentID(args[0]))
			if errors.Is(err, entityrepo.ErrNotFound) {
				return fmt.Errorf("document %s not found in %s", args[0], index)
			} else if err != nil {
				return err
			}
			return printJSON(cmd, doc)
		},
	}
}

func countCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count documents, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			count, err := s.repository().Count(ctx, parseFilter(filter))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int64{"count": count})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "engine filter expression")
	return cmd
}

func pageCmd() *cobra.Command {
	var (
		page   int
		size   int
		filter string
		sort   string
	)
	cmd := &cobra.Command{
		Use:   "page",
		Short: "List one page of documents",
		Long: `List one page of documents.

Examples:
  entityrepo page --page 2 --size 10
  entityrepo page --filter 'type:=shoe' --sort 'price:desc,name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sortFields, err := entityrepo.ParseSort(sort)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			result, err := s.repository().Paginate(ctx, page, size, parseFilter(filter), sortFields...)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "1-based page number")
	cmd.Flags().IntVar(&size, "size", repository.DefaultPageSize, "page size")
	cmd.Flags().StringVar(&filter, "filter", "", "engine filter expression")
	cmd.Flags().StringVar(&sort, "sort", "", "sort clauses, e.g. price:desc,name:asc")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			result, err := s.repository().Delete(ctx, entityrepo.DocumentID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func deleteByQueryCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "delete-by-query",
		Short: "Delete all documents matching a filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter == "" {
				return errors.New("--filter is required")
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			result, err := s.repository().DeleteByQuery(ctx, parseFilter(filter))
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "engine filter expression")
	return cmd
}

func ingestCmd() *cobra.Command {
	var (
		idField   string
		chunkSize int
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Bulk load documents from a json, jsonl/ndjson or yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			documents, err := indexing.ReadFile[Document](args[0])
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			repo := s.repository(repository.WithKey[Document](fieldKey(idField)))
			result, err := repo.AddRangeBy(ctx, documents, chunkSize)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&idField, "id-field", "id", "document field holding the id")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "documents per batch, defaults to ENTITYREPO_CHUNK_SIZE")
	return cmd
}

// fieldKey reads the document id from a top-level field. Numbers are written
// in plain decimal notation.
func fieldKey(field string) repository.KeyFunc[Document] {
	return func(doc *Document) entityrepo.DocumentID {
		switch value := (*doc)[field].(type) {
		case nil:
			return ""
		case float64:
			return entityrepo.DocumentID(strconv.FormatFloat(value, 'f', -1, 64))
		case json.Number:
			return entityrepo.DocumentID(value.String())
		default:
			return entityrepo.DocumentID(fmt.Sprint(value))
		}
	}
}

func searchCmd() *cobra.Command {
	var (
		filter string
		sort   string
		from   int
		size   int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search returning documents and their rank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sortFields, err := entityrepo.ParseSort(sort)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			documents, scores, err := s.repository().Search(ctx, args[0], entityrepo.SearchRequest{
				Filter: parseFilter(filter),
				From:   from,
				Size:   size,
				Sort:   sortFields,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"documents": documents, "scores": scores})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "engine filter expression")
	cmd.Flags().StringVar(&sort, "sort", "", "sort clauses, e.g. price:desc,name:asc")
	cmd.Flags().IntVar(&from, "from", 0, "offset of the first hit")
	cmd.Flags().IntVar(&size, "size", repository.DefaultPageSize, "number of hits")
	return cmd
}

const (
	sourceFile          = "file"
	sourceContentserver = "contentserver"
)

func reindexCmd() *cobra.Command {
	var (
		idField          string
		source           string
		dir              string
		contentserverURL string
		mimeTypes        []string
	)
	cmd := &cobra.Command{
		Use:   "reindex <index>...",
		Short: "Reload whole indices from document files or a contentserver",
		Long: `reindex replaces the content of each index with the documents of its source.
The file source reads <dir>/<index>.{json,jsonl,ndjson,yaml,yml}, the
contentserver source reads the dimension named like the index.
On typesense the documents are loaded into fresh revisions that are committed
together, any failure reverts all of them.`,
		Example: `  entityrepo reindex --dir ./data products pages
  entityrepo reindex --source contentserver --contentserver-url http://contentserver:8080 de en`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			s, err := newSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			var provider entityrepo.DocumentProvider[Document]
			switch source {
			case sourceFile:
				provider = indexing.NewFileProvider[Document](s.l, dir)
			case sourceContentserver:
				if contentserverURL == "" {
					return errors.New("--contentserver-url is required")
				}
				client := contentserverclient.New(contentserverclient.NewHTTPTransport(contentserverURL))
				provider = indexing.NewContentServer[Document](s.l, client, nodeDocumentFuncs(mimeTypes), mimeTypes)
			default:
				return fmt.Errorf("unknown source %q", source)
			}

			indexer := indexing.NewIndexer[Document](
				s.l,
				connection.Static(s.engine),
				s.repository(repository.WithKey[Document](fieldKey(idField))),
				provider,
				args...,
			)
			return indexer.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&idField, "id-field", "id", "document field holding the id")
	cmd.Flags().StringVar(&source, "source", sourceFile, "document source, file or contentserver")
	cmd.Flags().StringVar(&dir, "dir", ".", "directory of the document files")
	cmd.Flags().StringVar(&contentserverURL, "contentserver-url", "", "contentserver http endpoint")
	cmd.Flags().StringSliceVar(&mimeTypes, "mime-type", []string{"text/html"}, "contentserver mime types to index")
	return cmd
}

// nodeDocumentFuncs builds one document per contentserver node holding its
// id, mime type and url.
func nodeDocumentFuncs(mimeTypes []string) map[entityrepo.DocumentType]entityrepo.DocumentProviderFunc[Document] {
	funcs := make(map[entityrepo.DocumentType]entityrepo.DocumentProviderFunc[Document], len(mimeTypes))
	for _, mimeType := range mimeTypes {
		funcs[entityrepo.DocumentType(mimeType)] = func(
			_ context.Context,
			indexID entityrepo.IndexID,
			documentID entityrepo.DocumentID,
			urlsByIDs map[entityrepo.DocumentID]string,
		) (*Document, error) {
			url, ok := urlsByIDs[documentID]
			if !ok {
				return nil, fmt.Errorf("no url for document %s", documentID)
			}
			return &Document{
				"id":        string(documentID),
				"dimension": string(indexID),
				"mimeType":  mimeType,
				"url":       url,
			}, nil
		}
	}
	return funcs
}
