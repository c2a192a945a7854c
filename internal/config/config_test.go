package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coldstream.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Baud != 115200 {
		t.Errorf("default baud = %d, want 115200", cfg.Baud)
	}
	if !cfg.Enumerate {
		t.Error("enumeration should default on")
	}
	if cfg.Backoff != time.Second {
		t.Errorf("default backoff = %v, want 1s", cfg.Backoff)
	}
	if cfg.Device != "" || cfg.StorePath != "" || cfg.MetricsAddr != "" {
		t.Errorf("paths and addresses should default empty, got %+v", cfg)
	}
}

func TestLoadOverlaysOnlyDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
device = "/dev/ttyUSB0"
backoff_ms = 250
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Device != "/dev/ttyUSB0" {
		t.Errorf("device = %q", cfg.Device)
	}
	if cfg.Backoff != 250*time.Millisecond {
		t.Errorf("backoff = %v, want 250ms", cfg.Backoff)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Baud != 115200 {
		t.Errorf("baud = %d, want default 115200", cfg.Baud)
	}
	if !cfg.Enumerate {
		t.Error("enumerate flipped without being defined in the file")
	}
}

func TestLoadExplicitFalseOverridesDefault(t *testing.T) {
	path := writeConfig(t, `enumerate = false`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Enumerate {
		t.Error("enumerate = false in the file should override the default")
	}
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
device = "/dev/ttyS1"
baud = 9600
enumerate = true
corrupt_rate = 0.25
backoff_ms = 2000
metrics_addr = "127.0.0.1:9402"
store_path = "/var/lib/coldstream/ledger.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Baud != 9600 || cfg.CorruptRate != 0.25 || cfg.Backoff != 2*time.Second {
		t.Errorf("loaded %+v", cfg)
	}
	if cfg.MetricsAddr != "127.0.0.1:9402" || cfg.StorePath != "/var/lib/coldstream/ledger.db" {
		t.Errorf("loaded %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("Load() on a missing file should fail")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Validate() on defaults failed: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing device", func(c *Config) { c.Device = filepath.Join(t.TempDir(), "ttyNOPE") }},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "not:an:addr:at:all" }},
		{"corrupt rate above one", func(c *Config) { c.CorruptRate = 1.5 }},
		{"negative corrupt rate", func(c *Config) { c.CorruptRate = -0.1 }},
		{"negative pace", func(c *Config) { c.PaceBytesPerSec = -1 }},
		{"zero baud", func(c *Config) { c.Baud = 0 }},
		{"negative backoff", func(c *Config) { c.Backoff = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() accepted %+v", cfg)
			}
		})
	}
}
