package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Maps.Timeout != 10*time.Second {
		t.Errorf("Maps.Timeout = %v, want 10s", cfg.Maps.Timeout)
	}
	if cfg.Booking.ModifyWindow != 30*time.Minute {
		t.Errorf("ModifyWindow = %v, want 30m", cfg.Booking.ModifyWindow)
	}
	if cfg.Pricing.BaseRateVan != 3.20 || cfg.Pricing.BikeMinimumCharge != 6.50 {
		t.Errorf("unexpected pricing defaults: %+v", cfg.Pricing)
	}
	if cfg.Mirror.URL != "" {
		t.Errorf("mirror should be disabled by default, got %q", cfg.Mirror.URL)
	}
	if cfg.Web.SecureCookies || cfg.Web.TrustProxy {
		t.Errorf("secure_cookies and trust_proxy should default to false: %+v", cfg.Web)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courierdesk.yaml")
	data := []byte(`
database:
  driver: postgres
maps:
  timeout: 4s
mirror:
  url: http://sheets.example/hook
pricing:
  base_rate_van: 4.10
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Maps.Timeout != 4*time.Second {
		t.Errorf("Maps.Timeout = %v, want 4s", cfg.Maps.Timeout)
	}
	if cfg.Mirror.URL != "http://sheets.example/hook" {
		t.Errorf("Mirror.URL = %q", cfg.Mirror.URL)
	}
	if cfg.Pricing.BaseRateVan != 4.10 {
		t.Errorf("BaseRateVan = %v, want 4.10", cfg.Pricing.BaseRateVan)
	}
	// untouched keys keep their defaults
	if cfg.Pricing.BaseRateBike != 2.80 {
		t.Errorf("BaseRateBike = %v, want 2.80", cfg.Pricing.BaseRateBike)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.Web.Port = 9999
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Web.Port != 9999 {
		t.Errorf("Port = %d, want 9999", got.Web.Port)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("database: [unclosed"), 0644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
