package link

import (
	"bytes"
	"io"
	"sync"
)

// MemLink is one end of an in-process duplex link with controllable health
// signals. It stands in for a serial cable in tests and demos: writes are
// rejected while the peer is absent, reads block until bytes arrive or the
// pair is closed, and either end can flip presence or clearness at any time.
type MemLink struct {
	state *memState
	recv  *bytes.Buffer
	send  *bytes.Buffer
}

type memState struct {
	mu      sync.Mutex
	cond    *sync.Cond
	aToB    bytes.Buffer
	bToA    bytes.Buffer
	present bool
	clear   bool
	closed  bool
}

// Pipe returns the two connected ends of a fresh in-memory link, initially
// present and clear.
func Pipe() (*MemLink, *MemLink) {
	s := &memState{present: true, clear: true}
	s.cond = sync.NewCond(&s.mu)
	a := &MemLink{state: s, recv: &s.bToA, send: &s.aToB}
	b := &MemLink{state: s, recv: &s.aToB, send: &s.bToA}
	return a, b
}

func (l *MemLink) Read(p []byte) (int, error) {
	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()
	for l.recv.Len() == 0 && !s.closed {
		s.cond.Wait()
	}
	if l.recv.Len() == 0 {
		return 0, io.EOF
	}
	return l.recv.Read(p)
}

// Write delivers bytes to the peer, or fails whole if the peer is absent or
// the pair is closed. Nothing is ever half-delivered: an aborted write
// leaves the peer's read buffer untouched, the way a dropped cable loses
// the frame.
func (l *MemLink) Write(p []byte) (int, error) {
	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	if !s.present {
		return 0, ErrPeerAbsent
	}
	n, err := l.send.Write(p)
	s.cond.Broadcast()
	return n, err
}

// Close wakes all blocked readers; both ends observe end-of-stream once the
// buffered bytes drain.
func (l *MemLink) Close() error {
	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}

func (l *MemLink) Present() bool {
	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present && !s.closed
}

func (l *MemLink) Clear() bool {
	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present && s.clear && !s.closed
}

// SetPresent flips the bidirectional readiness handshake for both ends.
func (l *MemLink) SetPresent(present bool) {
	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = present
	s.cond.Broadcast()
}

// SetClear flips the clear-to-send signal for both ends.
func (l *MemLink) SetClear(clear bool) {
	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear = clear
	s.cond.Broadcast()
}
