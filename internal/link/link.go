// Package link abstracts the byte-oriented channel between the generator
// and the receiver, together with its readiness signalling.
//
// A Link carries raw bytes and exposes two polled predicates: Present, true
// while the ready/ack handshake holds in both directions, and Clear, true
// while the peer additionally signals it can accept data right now. On a
// real serial device these map to DSR and CTS; file and pipe links have no
// signalling and report both as constantly true.
package link

import (
	"errors"
	"io"
)

var (
	// ErrPeerAbsent is returned by a write attempted while the peer is not
	// present. The transport loops treat it like any other link fault.
	ErrPeerAbsent = errors.New("link: peer not present")
)

// Link is one open byte channel plus its health signals. Present and Clear
// are side-effect-free samples of transport state; the transport loops poll
// them before and around blocking I/O.
type Link interface {
	io.ReadWriteCloser

	// Present reports whether both directions of the readiness handshake
	// are asserted.
	Present() bool

	// Clear reports whether the peer can accept data right now. Clear
	// implies Present.
	Clear() bool
}

// Opener (re)opens the raw transport. The sender loop calls it once per
// physical connection, including every reconnect after a fault.
type Opener interface {
	Open() (Link, error)
}

// OpenerFunc adapts a plain function to the Opener interface.
type OpenerFunc func() (Link, error)

func (f OpenerFunc) Open() (Link, error) { return f() }
