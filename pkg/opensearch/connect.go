package opensearch

import (
	"context"
	"errors"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/opensearch-project/opensearch-go/v2"
	"go.uber.org/zap"
)

// NewClient creates the OpenSearch client without touching the network.
func NewClient(cfg Config) (*opensearch.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.Join(ErrConnectionFailed, errors.New("at least one address is required"))
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		MaxRetries:   cfg.MaxRetries,
		DisableRetry: cfg.DisableRetry,
	})
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return client, nil
}

// New creates a new OpenSearch client and verifies the cluster is reachable.
func New(ctx context.Context, cfg Config) (*opensearch.Client, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	// Healthcheck
	if err := Healthcheck(client)(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// NewDialer returns a dialer building a fresh engine from cfg on every call.
// The dialer does not probe; the connection monitor does.
func NewDialer(l *zap.Logger, cfg Config) entityrepo.Dialer {
	return func(_ context.Context) (entityrepo.Engine, error) {
		client, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		l.Debug("opensearch client created", zap.Strings("addresses", cfg.Addresses))
		return NewEngine(l, client, cfg.Refresh), nil
	}
}
