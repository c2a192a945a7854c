package config

import (
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	ErrDeviceNotExists = errors.New("config: serial device does not exist")
	ErrInvalidAddr     = errors.New("config: invalid metrics address")
	ErrOutOfRange      = errors.New("config: value out of range")
)

// Validate rejects configurations that could only fail later and more
// confusingly: a missing device node, an unparseable listen address, rates
// outside their meaningful ranges.
func (c Config) Validate() error {
	if c.Device != "" {
		if _, err := os.Stat(c.Device); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceNotExists, err)
		}
	}
	if c.MetricsAddr != "" {
		if _, err := net.ResolveTCPAddr("tcp", c.MetricsAddr); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAddr, err)
		}
	}
	if c.CorruptRate < 0 || c.CorruptRate > 1 {
		return fmt.Errorf("%w: corrupt_rate %v not in [0,1]", ErrOutOfRange, c.CorruptRate)
	}
	if c.PaceBytesPerSec < 0 {
		return fmt.Errorf("%w: pace_bps %v is negative", ErrOutOfRange, c.PaceBytesPerSec)
	}
	if c.Baud <= 0 {
		return fmt.Errorf("%w: baud %d must be positive", ErrOutOfRange, c.Baud)
	}
	if c.Backoff < 0 {
		return fmt.Errorf("%w: backoff %v is negative", ErrOutOfRange, c.Backoff)
	}
	return nil
}
