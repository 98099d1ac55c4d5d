package config

import (
	"path/filepath"
	"testing"
)

func TestWriteDefaultThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h264encd.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	if cfg.Profile != want.Profile || cfg.Width != want.Width || cfg.Height != want.Height {
		t.Fatalf("loaded config diverges from default: %+v", cfg)
	}
}

func TestEncoderConfigRejectsBadPattern(t *testing.T) {
	cfg := Default()
	cfg.IPPeriod = 7
	cfg.IntraPeriod = 10

	if _, err := cfg.EncoderConfig(); err == nil {
		t.Fatal("expected EncoderConfig to reject a non-multiple intra_period/ip_period pair")
	}
}
