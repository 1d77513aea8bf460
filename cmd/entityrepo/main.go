package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/foomo/entityrepo/pkg/config"
	"github.com/foomo/entityrepo/pkg/connection"
	"github.com/foomo/entityrepo/pkg/logger"
	"github.com/foomo/entityrepo/pkg/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Document is the schemaless entity the CLI and the HTTP surface work with.
type Document = map[string]any

var (
	envFiles []string
	index    string
	timeout  time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "entityrepo",
		Short: "Typed document repository over typesense or opensearch",
		Long: `entityrepo reads and writes documents of a search engine index.
The engine is selected with ENTITYREPO_ENGINE, connection settings are read
from TYPESENSE_* or OPENSEARCH_* environment variables or .env files.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load, defaults to an optional ./.env")
	rootCmd.PersistentFlags().StringVar(&index, "index", "documents", "index to operate on")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "operation timeout")

	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(countCmd())
	rootCmd.AddCommand(pageCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(deleteByQueryCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(reindexCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads and validates the config and creates the logger.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	l, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, l, nil
}

// session is a one-shot connection without a monitor.
type session struct {
	cfg    config.Config
	l      *zap.Logger
	engine entityrepo.Engine
}

func newSession(ctx context.Context) (*session, error) {
	cfg, l, err := setup()
	if err != nil {
		return nil, err
	}
	dial, err := cfg.Dialer(l)
	if err != nil {
		return nil, err
	}
	engine, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, l: l, engine: engine}, nil
}

func (s *session) repository(opts ...repository.Option[Document]) *repository.Repository[Document] {
	opts = append([]repository.Option[Document]{repository.WithChunkSize[Document](s.cfg.ChunkSize)}, opts...)
	return repository.New[Document](s.l, connection.Static(s.engine), index, opts...)
}

func (s *session) close() {
	_ = s.l.Sync()
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// parseFilter turns a flag value into an engine filter. JSON objects are
// passed as raw query DSL, anything else as the engine's string syntax.
func parseFilter(value string) entityrepo.Filter {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return nil
	case strings.HasPrefix(value, "{"):
		return json.RawMessage(value)
	default:
		return value
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return err
}
