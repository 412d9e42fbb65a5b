package main

import (
	"errors"
	"testing"

	"github.com/Tutortoise/pet-match-service/config"
	"github.com/Tutortoise/pet-match-service/gallery"
	"github.com/Tutortoise/pet-match-service/similarity"
)

func TestCompareImagesIdentical(t *testing.T) {
	img := noisePNG(t, 100, 80, 21)

	report, err := compareImages(similarity.DefaultConfig(), img, img)
	if err != nil {
		t.Fatalf("compareImages: %v", err)
	}
	if report.Overall < 0.99 || !report.Matched {
		t.Errorf("report = %+v, want a match close to 1", report)
	}
	if report.PerceptualHashDistance != 0 {
		t.Errorf("phash distance = %d, want 0", report.PerceptualHashDistance)
	}
}

func TestCompareImagesDifferent(t *testing.T) {
	report, err := compareImages(similarity.DefaultConfig(), noisePNG(t, 64, 64, 1), noisePNG(t, 64, 64, 2))
	if err != nil {
		t.Fatalf("compareImages: %v", err)
	}
	if report.Overall >= 0.99 {
		t.Errorf("unrelated images scored %v", report.Overall)
	}
}

func TestCompareImagesInvalid(t *testing.T) {
	if _, err := compareImages(similarity.DefaultConfig(), []byte("nope"), noisePNG(t, 8, 8, 1)); !errors.Is(err, similarity.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestApplyServeFlags(t *testing.T) {
	cfg, err := config.LoadFrom(func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatal(err)
	}

	cmd := newServeCmd()
	cmd.Flags().Set("addr", ":9999")
	cmd.Flags().Set("db-driver", gallery.DriverPostgres)
	cmd.Flags().Set("migrate", "true")

	if err := applyServeFlags(cmd, cfg); err != nil {
		t.Fatalf("applyServeFlags: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.DBDriver != gallery.DriverPostgres || !cfg.Migrate {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DBDSN != config.DefaultDBDSN {
		t.Errorf("unchanged flag overrode dsn: %q", cfg.DBDSN)
	}

	cmd = newServeCmd()
	cmd.Flags().Set("db-driver", "oracle")
	if err := applyServeFlags(cmd, cfg); err == nil {
		t.Error("expected validation error for unsupported driver")
	}
}
