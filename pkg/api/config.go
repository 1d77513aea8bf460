package typesenseapi

import (
	"context"
	"errors"
	"time"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/typesense/typesense-go/v3/typesense"
	"go.uber.org/zap"
)

var ErrConnectionFailed = errors.New("typesense connection failed")

// Config holds the typesense connection parameters.
type Config struct {
	Server            string        `env:"SERVER" envDefault:"http://localhost:8108"`
	APIKey            string        `env:"API_KEY"`
	ConnectionTimeout time.Duration `env:"CONNECTION_TIMEOUT" envDefault:"5s"`
	// QueryBy is sent with every search, typesense requires it for text queries
	QueryBy string `env:"QUERY_BY"`
	// AutoSchema creates revisions of unconfigured indices with auto detected fields
	AutoSchema bool `env:"AUTO_SCHEMA" envDefault:"true"`
}

func NewClient(cfg Config) (*typesense.Client, error) {
	if cfg.Server == "" {
		return nil, errors.Join(ErrConnectionFailed, errors.New("server is required"))
	}
	return typesense.NewClient(
		typesense.WithServer(cfg.Server),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(cfg.ConnectionTimeout),
	), nil
}

// NewDialer returns a dialer that builds a fresh client from cfg on every call.
func NewDialer(l *zap.Logger, cfg Config, opts ...Option) entityrepo.Dialer {
	return func(_ context.Context) (entityrepo.Engine, error) {
		client, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		l.Debug("typesense client created", zap.String("server", cfg.Server))
		base := []Option{WithQueryBy(cfg.QueryBy)}
		if cfg.AutoSchema {
			base = append(base, WithAutoSchema())
		}
		return NewBaseAPI(l, client, append(base, opts...)...), nil
	}
}
