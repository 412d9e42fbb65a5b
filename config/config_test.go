package config

import (
	"strings"
	"testing"
	"time"

	"github.com/Tutortoise/pet-match-service/gallery"
	"github.com/Tutortoise/pet-match-service/similarity"
)

func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(lookupFrom(nil))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Addr != DefaultAddr || cfg.DBDriver != gallery.DriverSQLite || cfg.DBDSN != DefaultDBDSN {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Debug || cfg.Migrate {
		t.Error("debug and migrate should default to false")
	}
	if cfg.CacheTTL != DefaultCacheTTL || cfg.ScanTimeout != DefaultScanTimeout {
		t.Errorf("cache ttl %v, scan timeout %v", cfg.CacheTTL, cfg.ScanTimeout)
	}

	sim := cfg.Similarity
	if sim.CanonicalSize != 128 || sim.BinsPerChannel != 16 || sim.EdgeThreshold != 30 {
		t.Errorf("feature defaults = %+v", sim)
	}
	if sim.Weights != (similarity.Weights{Histogram: 0.5, Edge: 0.3, Color: 0.2}) {
		t.Errorf("weights = %+v", sim.Weights)
	}
	if sim.MatchThreshold != 0.5 || sim.MaxMatches != 10 || sim.ConfidenceBoost != 1.1 || sim.GalleryLimit != 100 {
		t.Errorf("ranking defaults = %+v", sim)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(lookupFrom(map[string]string{
		"PETMATCH_ADDR":             ":9000",
		"DEBUG":                     "true",
		"PETMATCH_DB_DRIVER":        "postgres",
		"PETMATCH_DB_DSN":           "postgres://localhost/pets?sslmode=disable",
		"PETMATCH_CACHE_TTL":        "0s",
		"PETMATCH_SCAN_TIMEOUT":     "2s",
		"PETMATCH_MATCH_THRESHOLD":  "0.7",
		"PETMATCH_MAX_MATCHES":      "5",
		"PETMATCH_SCAN_WORKERS":     "2",
		"PETMATCH_WEIGHT_HISTOGRAM": "0.4",
		"PETMATCH_WEIGHT_EDGE":      "0.4",
		"PETMATCH_IMAGE_ROOT":       "",
	}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Addr != ":9000" || !cfg.Debug || cfg.DBDriver != gallery.DriverPostgres {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
	if cfg.CacheTTL != 0 || cfg.ScanTimeout != 2*time.Second {
		t.Errorf("cache ttl %v, scan timeout %v", cfg.CacheTTL, cfg.ScanTimeout)
	}
	if cfg.ImageRoot != DefaultImageRoot {
		t.Errorf("empty variable should keep the default, got %q", cfg.ImageRoot)
	}
	sim := cfg.Similarity
	if sim.MatchThreshold != 0.7 || sim.MaxMatches != 5 || sim.Workers != 2 {
		t.Errorf("similarity overrides = %+v", sim)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"bad integer", map[string]string{"PETMATCH_POOL_SIZE": "four"}, "PETMATCH_POOL_SIZE"},
		{"bad duration", map[string]string{"PETMATCH_SCAN_TIMEOUT": "soon"}, "PETMATCH_SCAN_TIMEOUT"},
		{"bad bool", map[string]string{"DEBUG": "maybe"}, "DEBUG"},
		{"bad driver", map[string]string{"PETMATCH_DB_DRIVER": "mysql"}, "unsupported database driver"},
		{"weights", map[string]string{"PETMATCH_WEIGHT_COLOR": "0.5"}, "weights must sum to 1"},
		{"pool size", map[string]string{"PETMATCH_POOL_SIZE": "0"}, "pool size"},
		{"negative ttl", map[string]string{"PETMATCH_CACHE_TTL": "-1s"}, "cache ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(lookupFrom(tt.vars))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
