package link

import (
	"fmt"

	"go.bug.st/serial"
)

// SerialLink is a Link over a real serial device. The local end asserts DTR
// and RTS on open; Present samples the remote's DSR and Clear its CTS, the
// classic ready/ack plus clear-to-send handshake. Parity, stop bits and baud
// are assumed pre-agreed between the two ends.
type SerialLink struct {
	port serial.Port
}

// OpenSerial opens device at the given baud rate and asserts local
// readiness. No bytes are written here; the sender loop decides when the
// peer is listening.
func OpenSerial(device string, baud int) (*SerialLink, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("link: open %s: %w", device, err)
	}
	if err := port.SetDTR(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("link: assert DTR on %s: %w", device, err)
	}
	if err := port.SetRTS(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("link: assert RTS on %s: %w", device, err)
	}
	return &SerialLink{port: port}, nil
}

func (l *SerialLink) Read(p []byte) (int, error)  { return l.port.Read(p) }
func (l *SerialLink) Write(p []byte) (int, error) { return l.port.Write(p) }

// Close drops the local readiness signals before releasing the device, so
// the peer observes the disconnect instead of a silent stall.
func (l *SerialLink) Close() error {
	_ = l.port.SetDTR(false)
	_ = l.port.SetRTS(false)
	return l.port.Close()
}

func (l *SerialLink) Present() bool {
	bits, err := l.port.GetModemStatusBits()
	return err == nil && bits.DSR
}

func (l *SerialLink) Clear() bool {
	bits, err := l.port.GetModemStatusBits()
	return err == nil && bits.DSR && bits.CTS
}

// SerialOpener reopens the same device for every physical connection.
type SerialOpener struct {
	Device string
	Baud   int
}

func (o SerialOpener) Open() (Link, error) { return OpenSerial(o.Device, o.Baud) }
