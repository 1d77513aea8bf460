package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	entityrepo "github.com/foomo/entityrepo/pkg"
	typesenseapi "github.com/foomo/entityrepo/pkg/api"
	"github.com/foomo/entityrepo/pkg/connection"
	"github.com/foomo/entityrepo/pkg/opensearch"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	EngineTypesense  = "typesense"
	EngineOpenSearch = "opensearch"
)

type Config struct {
	Env       string `env:"ENTITYREPO_ENV" envDefault:"local"`
	LogLevel  string `env:"ENTITYREPO_LOG_LEVEL"`
	Engine    string `env:"ENTITYREPO_ENGINE" envDefault:"typesense"`
	ChunkSize int    `env:"ENTITYREPO_CHUNK_SIZE" envDefault:"10000"`
	HTTPAddr  string `env:"ENTITYREPO_HTTP_ADDR" envDefault:":8080"`

	Monitor    Monitor             `envPrefix:"ENTITYREPO_MONITOR_"`
	Typesense  typesenseapi.Config `envPrefix:"TYPESENSE_"`
	OpenSearch opensearch.Config   `envPrefix:"OPENSEARCH_"`
}

type Monitor struct {
	Interval      time.Duration `env:"INTERVAL" envDefault:"10s"`
	MaxBackoff    time.Duration `env:"MAX_BACKOFF" envDefault:"2m"`
	JitterPercent uint64        `env:"JITTER_PERCENT" envDefault:"20"`
	ProbeTimeout  time.Duration `env:"PROBE_TIMEOUT" envDefault:"5s"`
	FixedInterval bool          `env:"FIXED_INTERVAL" envDefault:"false"`
}

// Load reads the given .env files, or an optional ./.env when none are
// given, and parses the environment. Variables already set win over files.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		// the default .env file is optional
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{"local", "dev", "prod"}, c.Env) {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Env))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.Monitor.JitterPercent > 100 {
		errs = append(errs, fmt.Errorf("jitter percent must be <= 100, got %d", c.Monitor.JitterPercent))
	}
	switch c.Engine {
	case EngineTypesense:
		if c.Typesense.Server == "" {
			errs = append(errs, errors.New("TYPESENSE_SERVER is required"))
		}
	case EngineOpenSearch:
		if len(c.OpenSearch.Addresses) == 0 {
			errs = append(errs, errors.New("OPENSEARCH_ADDRESSES is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown engine %q", c.Engine))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

// Dialer returns the dialer of the configured engine.
func (c Config) Dialer(l *zap.Logger) (entityrepo.Dialer, error) {
	switch c.Engine {
	case EngineTypesense:
		return typesenseapi.NewDialer(l.Named("typesense"), c.Typesense), nil
	case EngineOpenSearch:
		return opensearch.NewDialer(l.Named("opensearch"), c.OpenSearch), nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, c.Engine)
	}
}

func (c Config) MonitorOptions() []connection.Option {
	opts := []connection.Option{
		connection.WithInterval(c.Monitor.Interval),
		connection.WithMaxBackoff(c.Monitor.MaxBackoff),
		connection.WithJitterPercent(c.Monitor.JitterPercent),
		connection.WithProbeTimeout(c.Monitor.ProbeTimeout),
	}
	if c.Monitor.FixedInterval {
		opts = append(opts, connection.WithFixedInterval())
	}
	return opts
}
