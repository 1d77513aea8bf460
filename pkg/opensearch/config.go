package opensearch

// Config holds OpenSearch client connection parameters with environment variable mapping.
// Tags are read by caarlos0/env below the OPENSEARCH_ prefix of the root config.
type Config struct {
	Addresses    []string `env:"ADDRESSES" envSeparator:","`
	Username     string   `env:"USERNAME"`
	Password     string   `env:"PASSWORD"`
	MaxRetries   int      `env:"MAX_RETRIES" envDefault:"3"`
	DisableRetry bool     `env:"DISABLE_RETRY" envDefault:"false"`
	// Refresh is passed to write requests, e.g. "wait_for"; empty leaves the engine default
	Refresh string `env:"REFRESH"`
}
