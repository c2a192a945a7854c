// Package crypto holds the session cipher and the nonce sequencer for the
// record stream.
//
// One symmetric AES-256-GCM key is derived from the operator's password with
// Argon2id under a fixed domain salt, so a sender and a receiver built from
// the same source agree on the key without any negotiation. Every record is
// sealed under a nonce derived from the random session nonce and the record
// index; the session nonce itself travels in the bootstrap record, sealed
// under the all-zero nonce. The zero nonce is used exactly once per session
// and its plaintext (the session nonce) is never used as a nonce verbatim,
// so it cannot collide with any data-record nonce.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
)

const (
	// NonceSize is the GCM nonce length shared by the session nonce and
	// every derived per-record nonce.
	NonceSize = 12

	// TagSize is the GCM authentication tag appended to each ciphertext.
	TagSize = 16

	// Argon2id parameters, fixed forever: sender and receiver builds must
	// derive the identical key from the same password.
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32

	// Domain separation input for the KDF salt.
	kdfDomain = "coldstream/v1/session-key"
)

var (
	// ErrAuthenticationFailed is returned by Open when the tag does not
	// verify. No plaintext is ever released on this path.
	ErrAuthenticationFailed = errors.New("crypto: authentication failed")

	// ErrInvalidNonceSize is returned when a nonce is not NonceSize bytes.
	ErrInvalidNonceSize = errors.New("crypto: nonce must be 12 bytes")
)

// Cipher is the per-session AEAD. It is cheap to copy around by pointer and
// safe for use by the single loop that owns its Session.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the session key from password and wraps it in
// AES-256-GCM. The salt is a BLAKE3 hash of a fixed domain string rather
// than a random value: the two ends never exchange KDF parameters, so the
// whole derivation must be deterministic in the password alone.
func NewCipher(password string) (*Cipher, error) {
	salt := blake3.Sum256([]byte(kdfDomain))
	key := argon2.IDKey([]byte(password), salt[:], argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: init AES: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: init GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts and authenticates plaintext under nonce, returning
// ciphertext with the tag appended.
func (c *Cipher) Seal(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNonceSize, len(nonce))
	}
	return c.aead.Seal(nil, nonce, plaintext, nil), nil
}

// Open decrypts and verifies ciphertext under nonce. Any bit flip in the
// ciphertext or tag, and any nonce mismatch, yields ErrAuthenticationFailed;
// partial plaintext is never returned.
func (c *Cipher) Open(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidNonceSize, len(nonce))
	}
	if len(ciphertext) < TagSize {
		return nil, ErrAuthenticationFailed
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// ZeroNonce returns the all-zero nonce used for the bootstrap record.
func ZeroNonce() []byte {
	return make([]byte, NonceSize)
}

// RandomNonce draws a fresh session nonce from the system CSPRNG.
func RandomNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: draw session nonce: %w", err)
	}
	return nonce, nil
}
