package crypto

import (
	"bytes"
	"crypto/rand"
	"math"
	"testing"
)

// TestAddNonceIncrements tests plain counter addition on the low byte.
func TestAddNonceIncrements(t *testing.T) {
	base := make([]byte, NonceSize)

	got := AddNonce(base, 1)
	want := append(make([]byte, NonceSize-1), 0x01)
	if !bytes.Equal(got, want) {
		t.Errorf("AddNonce(zero, 1) = %x, want %x", got, want)
	}

	got = AddNonce(base, 0x0102)
	if got[NonceSize-1] != 0x02 || got[NonceSize-2] != 0x01 {
		t.Errorf("AddNonce(zero, 0x0102) = %x", got)
	}
}

// TestAddNonceWrapsAtTop tests the modular wrap at the top of the range.
func TestAddNonceWrapsAtTop(t *testing.T) {
	base := bytes.Repeat([]byte{0xFF}, NonceSize)

	got := AddNonce(base, 1)
	if !bytes.Equal(got, make([]byte, NonceSize)) {
		t.Errorf("AddNonce(0xFF..FF, 1) = %x, want all zero", got)
	}
}

// TestAddNonceMaxIndex tests the full-width counter: adding the largest
// representable index to the zero base fills the low eight bytes.
func TestAddNonceMaxIndex(t *testing.T) {
	base := make([]byte, NonceSize)

	got := AddNonce(base, math.MaxUint64)
	want := append(make([]byte, NonceSize-8), bytes.Repeat([]byte{0xFF}, 8)...)
	if !bytes.Equal(got, want) {
		t.Errorf("AddNonce(zero, MaxUint64) = %x, want %x", got, want)
	}
}

// TestAddNonceCarryPropagation tests that a carry out of the low bytes
// ripples through saturated middle bytes.
func TestAddNonceCarryPropagation(t *testing.T) {
	base := make([]byte, NonceSize)
	for i := 2; i < NonceSize; i++ {
		base[i] = 0xFF
	}

	got := AddNonce(base, 1)
	want := make([]byte, NonceSize)
	want[1] = 0x01
	if !bytes.Equal(got, want) {
		t.Errorf("AddNonce(%x, 1) = %x, want %x", base, got, want)
	}
}

// TestAddNoncePure tests that the base is never mutated.
func TestAddNoncePure(t *testing.T) {
	base := bytes.Repeat([]byte{0xFF}, NonceSize)
	saved := append([]byte(nil), base...)

	AddNonce(base, 12345)
	if !bytes.Equal(base, saved) {
		t.Error("AddNonce mutated its base argument")
	}
}

// TestAddNonceInjective tests that distinct indexes map to distinct nonces.
func TestAddNonceInjective(t *testing.T) {
	base := make([]byte, NonceSize)
	rand.Read(base)

	seen := make(map[string]uint64)
	for i := uint64(0); i < 5000; i++ {
		nonce := string(AddNonce(base, i))
		if prev, dup := seen[nonce]; dup {
			t.Fatalf("indexes %d and %d derive the same nonce", prev, i)
		}
		seen[nonce] = i
	}
}

// TestSealOpenRoundtrip tests the password-derived cipher end to end,
// including that two independently constructed ciphers interoperate.
func TestSealOpenRoundtrip(t *testing.T) {
	sender, err := NewCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewCipher() failed: %v", err)
	}
	receiver, err := NewCipher("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewCipher() failed: %v", err)
	}

	nonce := make([]byte, NonceSize)
	rand.Read(nonce)
	plaintext := []byte(`[["BTC","m/44'/0'/0'/0/0","1A1zP1eP"]]`)

	ciphertext, err := sender.Seal(nonce, plaintext)
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	if len(ciphertext) != len(plaintext)+TagSize {
		t.Errorf("ciphertext length = %d, want %d", len(ciphertext), len(plaintext)+TagSize)
	}

	decrypted, err := receiver.Open(nonce, ciphertext)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("decrypted plaintext does not match original")
	}
}

// TestOpenRejectsTampering tests fail-closed behavior on a single flipped
// bit anywhere in the ciphertext or tag.
func TestOpenRejectsTampering(t *testing.T) {
	c, err := NewCipher("pw")
	if err != nil {
		t.Fatalf("NewCipher() failed: %v", err)
	}
	nonce := ZeroNonce()
	ciphertext, err := c.Seal(nonce, []byte("sixteen byte msg"))
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}

	for i := range ciphertext {
		tampered := append([]byte(nil), ciphertext...)
		tampered[i] ^= 0x01
		if _, err := c.Open(nonce, tampered); err == nil {
			t.Fatalf("Open() accepted ciphertext with bit flipped at byte %d", i)
		}
	}
}

// TestOpenWrongPassword tests that a mismatched password authenticates
// nothing.
func TestOpenWrongPassword(t *testing.T) {
	sender, err := NewCipher("alpha")
	if err != nil {
		t.Fatalf("NewCipher() failed: %v", err)
	}
	receiver, err := NewCipher("bravo")
	if err != nil {
		t.Fatalf("NewCipher() failed: %v", err)
	}

	nonce := make([]byte, NonceSize)
	ciphertext, err := sender.Seal(nonce, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	if _, err := receiver.Open(nonce, ciphertext); err == nil {
		t.Error("Open() succeeded under the wrong password")
	}
}

// TestOpenShortCiphertext tests that anything shorter than a tag fails
// cleanly.
func TestOpenShortCiphertext(t *testing.T) {
	c, err := NewCipher("pw")
	if err != nil {
		t.Fatalf("NewCipher() failed: %v", err)
	}
	if _, err := c.Open(ZeroNonce(), []byte{0x01, 0x02}); err == nil {
		t.Error("Open() accepted a ciphertext shorter than the tag")
	}
}

// TestBootstrapSealUnderZeroNonce tests the bootstrap path: a random
// session nonce sealed under the all-zero nonce survives the roundtrip.
func TestBootstrapSealUnderZeroNonce(t *testing.T) {
	c, err := NewCipher("pw")
	if err != nil {
		t.Fatalf("NewCipher() failed: %v", err)
	}
	session, err := RandomNonce()
	if err != nil {
		t.Fatalf("RandomNonce() failed: %v", err)
	}

	sealed, err := c.Seal(ZeroNonce(), session)
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	recovered, err := c.Open(ZeroNonce(), sealed)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if !bytes.Equal(recovered, session) {
		t.Error("recovered session nonce does not match")
	}
}

// TestRandomNonceLength tests the session nonce source.
func TestRandomNonceLength(t *testing.T) {
	a, err := RandomNonce()
	if err != nil {
		t.Fatalf("RandomNonce() failed: %v", err)
	}
	b, err := RandomNonce()
	if err != nil {
		t.Fatalf("RandomNonce() failed: %v", err)
	}
	if len(a) != NonceSize {
		t.Errorf("nonce length = %d, want %d", len(a), NonceSize)
	}
	if bytes.Equal(a, b) {
		t.Error("two fresh session nonces are identical")
	}
}
