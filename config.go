package yakv

import (
	"go.uber.org/zap"

	"yakv/btree"
)

// Config holds a database's create-time tunables. Create and Open start
// from DefaultConfig and apply the given Options on top of it.
type Config struct {
	PageSize       int
	CacheCapacity  int
	UnderflowRatio float64
	FlushOnMutate  bool
	Logger         *zap.Logger
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:       btree.DefaultPageSize,
		CacheCapacity:  btree.DefaultCacheCapacity,
		UnderflowRatio: btree.DefaultUnderflowRatio,
		FlushOnMutate:  true,
		Logger:         zap.NewNop(),
	}
}

// Option mutates a Config during Create or Open.
type Option func(*Config)

// WithPageSize sets the on-disk page size, a power of two in [512, 65536].
// Only meaningful at Create time; Open ignores it and uses the page size
// recorded in the file's own header.
func WithPageSize(size int) Option {
	return func(c *Config) { c.PageSize = size }
}

// WithCacheCapacity sets the number of resident pages the page cache
// will hold before evicting.
func WithCacheCapacity(capacity int) Option {
	return func(c *Config) { c.CacheCapacity = capacity }
}

// WithUnderflowRatio sets the fraction of a page's byte capacity below
// which a non-root page is considered underfull.
func WithUnderflowRatio(ratio float64) Option {
	return func(c *Config) { c.UnderflowRatio = ratio }
}

// WithFlushOnMutate controls whether every mutating call durably flushes
// before returning. Disabling it trades the "successful call implies
// durable" guarantee for throughput; callers must call Flush themselves.
func WithFlushOnMutate(flush bool) Option {
	return func(c *Config) { c.FlushOnMutate = flush }
}

// WithLogger injects a structured logger; the default is silent.
func WithLogger(log *zap.Logger) Option {
	return func(c *Config) { c.Logger = log }
}

func applyOptions(cfg Config, opts []Option) Config {
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}
