package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatYAML   Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown document file format")

// extensions in lookup order
var extensions = []struct {
	ext    string
	format Format
}{
	{".json", FormatJSON},
	{".jsonl", FormatNDJSON},
	{".ndjson", FormatNDJSON},
	{".yaml", FormatYAML},
	{".yml", FormatYAML},
}

// FormatFromPath derives the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if e.ext == ext {
			return e.format, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// FileProvider reads the documents of an index from <dir>/<index>.<ext>.
type FileProvider[T any] struct {
	l   *zap.Logger
	dir string
}

var _ entityrepo.DocumentProvider[struct{}] = (*FileProvider[struct{}])(nil)

func NewFileProvider[T any](l *zap.Logger, dir string) *FileProvider[T] {
	return &FileProvider[T]{l: l, dir: dir}
}

func (p *FileProvider[T]) Provide(ctx context.Context, indexID entityrepo.IndexID) ([]*T, error) {
	for _, e := range extensions {
		path := filepath.Join(p.dir, string(indexID)+e.ext)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, err
		}

		documents, err := ReadFile[T](path)
		if err != nil {
			return nil, err
		}
		p.l.Debug("read documents from file",
			zap.String("index", string(indexID)),
			zap.String("path", path),
			zap.Int("count", len(documents)),
		)
		return documents, ctx.Err()
	}
	return nil, fmt.Errorf("no document file for index %s in %s", indexID, p.dir)
}

func ReadFile[T any](path string) ([]*T, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	documents, err := ReadDocuments[T](f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return documents, nil
}

// ReadDocuments decodes documents from r. JSON input is either an array or a
// stream of objects, YAML input may hold several documents each being a
// single object or a list. YAML goes through JSON so json tags apply.
func ReadDocuments[T any](r io.Reader, format Format) ([]*T, error) {
	switch format {
	case FormatJSON, FormatNDJSON:
		return readJSON[T](r)
	case FormatYAML:
		return readYAML[T](r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

func readJSON[T any](r io.Reader) ([]*T, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '[' {
		var documents []*T
		if err := json.Unmarshal(raw, &documents); err != nil {
			return nil, err
		}
		return documents, nil
	}

	var documents []*T
	decoder := json.NewDecoder(bytes.NewReader(raw))
	for {
		document := new(T)
		if err := decoder.Decode(document); errors.Is(err, io.EOF) {
			return documents, nil
		} else if err != nil {
			return nil, fmt.Errorf("document %d: %w", len(documents)+1, err)
		}
		documents = append(documents, document)
	}
}

func readYAML[T any](r io.Reader) ([]*T, error) {
	var documents []*T
	decoder := yaml.NewDecoder(r)
	for {
		var value any
		if err := decoder.Decode(&value); errors.Is(err, io.EOF) {
			return documents, nil
		} else if err != nil {
			return nil, err
		}

		items, ok := value.([]any)
		if !ok {
			items = []any{value}
		}
		for _, item := range items {
			if item == nil {
				continue
			}
			raw, err := json.Marshal(item)
			if err != nil {
				return nil, err
			}
			document := new(T)
			if err := json.Unmarshal(raw, document); err != nil {
				return nil, fmt.Errorf("document %d: %w", len(documents)+1, err)
			}
			documents = append(documents, document)
		}
	}
}
