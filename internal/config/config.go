// Package config loads the shared settings of the send and receive CLIs:
// link parameters, codec options and observability addresses. Values come
// from defaults, overlaid by an optional TOML file, overlaid by flags (the
// CLIs do the last step themselves).
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds everything both CLIs need. Password never lives here: it
// comes from a prompt or the environment, not from a file on disk.
type Config struct {
	// Device is the serial device path. Empty selects plain stream mode
	// (files or stdio), which carries no flow-control signalling.
	Device string
	// Baud is the pre-agreed serial rate.
	Baud int
	// Enumerate controls whether data records carry their index.
	Enumerate bool
	// CorruptRate injects write noise at the link boundary, for drills.
	CorruptRate float64
	// PaceBytesPerSec caps the sender's sustained write rate; zero leaves
	// writes unpaced. Useful when the serial driver's buffer is small.
	PaceBytesPerSec float64
	// Backoff is the pause between reconnect attempts.
	Backoff time.Duration
	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string
	// StorePath is the receiver's Bolt ledger; empty disables persistence.
	StorePath string
}

type fileConfig struct {
	Device      string  `toml:"device"`
	Baud        int     `toml:"baud"`
	Enumerate   bool    `toml:"enumerate"`
	CorruptRate float64 `toml:"corrupt_rate"`
	PaceBPS     float64 `toml:"pace_bps"`
	BackoffMS   int     `toml:"backoff_ms"`
	MetricsAddr string  `toml:"metrics_addr"`
	StorePath   string  `toml:"store_path"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Baud:      115200,
		Enumerate: true,
		Backoff:   time.Second,
	}
}

// Load overlays the TOML file at path onto the defaults. Only keys actually
// present in the file override anything.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	if meta.IsDefined("device") {
		cfg.Device = raw.Device
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("enumerate") {
		cfg.Enumerate = raw.Enumerate
	}
	if meta.IsDefined("corrupt_rate") {
		cfg.CorruptRate = raw.CorruptRate
	}
	if meta.IsDefined("pace_bps") {
		cfg.PaceBytesPerSec = raw.PaceBPS
	}
	if meta.IsDefined("backoff_ms") {
		cfg.Backoff = time.Duration(raw.BackoffMS) * time.Millisecond
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = raw.MetricsAddr
	}
	if meta.IsDefined("store_path") {
		cfg.StorePath = raw.StorePath
	}
	return cfg, nil
}
