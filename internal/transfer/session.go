// Package transfer implements the sender and receiver transport loops that
// move account-group records across a link.
//
// Each loop owns exactly one Session; there is no process-wide cipher or
// nonce state. The loops are single-threaded with blocking I/O: the only
// thing the two processes share is the link itself.
package transfer

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/coldstream-io/coldstream/internal/crypto"
	"github.com/coldstream-io/coldstream/internal/record"
)

var (
	// ErrCodecInvariant is a configuration error: enumeration cannot be
	// disabled while encryption is active, because the receiver derives
	// each record's nonce from its index. Fatal at startup, never retried.
	ErrCodecInvariant = errors.New("transfer: enumeration cannot be disabled while encrypting")
)

// Session carries the per-transmission cryptographic state: the session
// nonce, the optional cipher and the codec settings. A Session is owned by
// exactly one Sender or Receiver and is never shared between loops.
type Session struct {
	// ID identifies the session in logs and metrics only; it never goes on
	// the wire.
	ID uuid.UUID

	// Nonce is the session base nonce. A sending session draws it from the
	// CSPRNG at construction; a receiving session leaves it nil until the
	// bootstrap record is recovered.
	Nonce []byte

	// Cipher is nil in plaintext mode.
	Cipher *crypto.Cipher

	// Enumerate controls whether data records carry their index.
	Enumerate bool

	// CorruptRate is the noise-injection rate handed to the link wrapper
	// by the caller. The loops themselves never corrupt anything.
	CorruptRate float64
}

// NewSendSession builds the session for a fresh transmission. An empty
// password selects plaintext mode.
func NewSendSession(password string, enumerate bool, corruptRate float64) (*Session, error) {
	s := &Session{
		ID:          uuid.New(),
		Enumerate:   enumerate,
		CorruptRate: corruptRate,
	}
	if password != "" {
		if !enumerate {
			return nil, ErrCodecInvariant
		}
		cipher, err := crypto.NewCipher(password)
		if err != nil {
			return nil, err
		}
		s.Cipher = cipher
		nonce, err := crypto.RandomNonce()
		if err != nil {
			return nil, err
		}
		s.Nonce = nonce
	}
	return s, nil
}

// NewRecvSession builds the receiving side's session. The nonce stays nil
// until the first bootstrap record authenticates.
func NewRecvSession(password string) (*Session, error) {
	s := &Session{ID: uuid.New(), Enumerate: true}
	if password != "" {
		cipher, err := crypto.NewCipher(password)
		if err != nil {
			return nil, err
		}
		s.Cipher = cipher
	}
	return s, nil
}

// Encrypted reports whether the session seals record payloads.
func (s *Session) Encrypted() bool { return s.Cipher != nil }

// sealedNonceRecord builds the bootstrap line: the session nonce sealed
// under the all-zero nonce. Deterministic, so every physical reconnect
// re-emits the identical line.
func (s *Session) sealedNonceRecord() (string, error) {
	ciphertext, err := s.Cipher.Seal(crypto.ZeroNonce(), s.Nonce)
	if err != nil {
		return "", fmt.Errorf("transfer: seal session nonce: %w", err)
	}
	return record.EncodeNonce(ciphertext), nil
}

// Producer yields the ordered account groups to transmit. Next returns
// io.EOF when the sequence is exhausted; the derivation behind it is
// external to this package.
type Producer interface {
	Next() (record.AccountGroup, error)
}

// SliceProducer drains a fixed slice of groups. Used by tests and by the
// CLI after it has parsed the generator's output.
type SliceProducer struct {
	groups []record.AccountGroup
	pos    int
}

func NewSliceProducer(groups []record.AccountGroup) *SliceProducer {
	return &SliceProducer{groups: groups}
}

func (p *SliceProducer) Next() (record.AccountGroup, error) {
	if p.pos >= len(p.groups) {
		return nil, io.EOF
	}
	g := p.groups[p.pos]
	p.pos++
	return g, nil
}
