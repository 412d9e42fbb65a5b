// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Tutortoise/pet-match-service/gallery"
	"github.com/Tutortoise/pet-match-service/similarity"
)

const (
	DefaultAddr           = "127.0.0.1:8080"
	DefaultDBDriver       = gallery.DriverSQLite
	DefaultDBDSN          = "file:petmatch.db?_foreign_keys=on"
	DefaultImageRoot      = "."
	DefaultCacheTTL       = 10 * time.Second
	DefaultPoolSize       = 4
	DefaultAcquireTimeout = 5 * time.Second
	DefaultScanTimeout    = 30 * time.Second
	DefaultMaxUploadBytes = 10 << 20
	DefaultHTTPTimeout    = 60 * time.Second
)

type Config struct {
	Addr  string
	Debug bool

	DBDriver string
	DBDSN    string
	Migrate  bool

	ImageRoot     string
	PublicBaseURL string

	// CacheTTL is how long gallery listings are reused. 0 disables caching.
	CacheTTL time.Duration

	PoolSize       int
	AcquireTimeout time.Duration
	ScanTimeout    time.Duration
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	Similarity similarity.Config
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup, which has the signature of
// os.LookupEnv.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	e := &env{lookup: lookup}
	sim := similarity.DefaultConfig()

	cfg := &Config{
		Addr:           e.str("PETMATCH_ADDR", DefaultAddr),
		Debug:          e.boolean("DEBUG", false),
		DBDriver:       e.str("PETMATCH_DB_DRIVER", DefaultDBDriver),
		DBDSN:          e.str("PETMATCH_DB_DSN", DefaultDBDSN),
		Migrate:        e.boolean("PETMATCH_MIGRATE", false),
		ImageRoot:      e.str("PETMATCH_IMAGE_ROOT", DefaultImageRoot),
		PublicBaseURL:  e.str("PETMATCH_PUBLIC_BASE_URL", ""),
		CacheTTL:       e.duration("PETMATCH_CACHE_TTL", DefaultCacheTTL),
		PoolSize:       e.integer("PETMATCH_POOL_SIZE", DefaultPoolSize),
		AcquireTimeout: e.duration("PETMATCH_ACQUIRE_TIMEOUT", DefaultAcquireTimeout),
		ScanTimeout:    e.duration("PETMATCH_SCAN_TIMEOUT", DefaultScanTimeout),
		MaxUploadBytes: int64(e.integer("PETMATCH_MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)),
		ReadTimeout:    e.duration("PETMATCH_READ_TIMEOUT", DefaultHTTPTimeout),
		WriteTimeout:   e.duration("PETMATCH_WRITE_TIMEOUT", DefaultHTTPTimeout),
		Similarity: similarity.Config{
			CanonicalSize:  e.integer("PETMATCH_CANONICAL_SIZE", sim.CanonicalSize),
			BinsPerChannel: e.integer("PETMATCH_HISTOGRAM_BINS", sim.BinsPerChannel),
			EdgeThreshold:  e.float("PETMATCH_EDGE_THRESHOLD", sim.EdgeThreshold),
			Weights: similarity.Weights{
				Histogram: e.float("PETMATCH_WEIGHT_HISTOGRAM", sim.Weights.Histogram),
				Edge:      e.float("PETMATCH_WEIGHT_EDGE", sim.Weights.Edge),
				Color:     e.float("PETMATCH_WEIGHT_COLOR", sim.Weights.Color),
			},
			MatchThreshold:  e.float("PETMATCH_MATCH_THRESHOLD", sim.MatchThreshold),
			MaxMatches:      e.integer("PETMATCH_MAX_MATCHES", sim.MaxMatches),
			ConfidenceBoost: e.float("PETMATCH_CONFIDENCE_BOOST", sim.ConfidenceBoost),
			GalleryLimit:    e.integer("PETMATCH_GALLERY_LIMIT", sim.GalleryLimit),
			Workers:         e.integer("PETMATCH_SCAN_WORKERS", sim.Workers),
		},
	}

	if e.err != nil {
		return nil, e.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBDriver != gallery.DriverPostgres && c.DBDriver != gallery.DriverSQLite {
		return fmt.Errorf("unsupported database driver %q", c.DBDriver)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool size must be at least 1, got %d", c.PoolSize)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must not be negative, got %v", c.CacheTTL)
	}
	if c.ScanTimeout <= 0 || c.AcquireTimeout <= 0 {
		return fmt.Errorf("scan and acquire timeouts must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if err := c.Similarity.Validate(); err != nil {
		return fmt.Errorf("similarity: %w", err)
	}
	return nil
}

// env reads typed values and keeps the first parse error.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *env) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) boolean(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}

func (e *env) integer(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return f
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}
