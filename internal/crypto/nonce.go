package crypto

// AddNonce derives the per-record nonce for a record index from the session
// base nonce.
//
// The derivation is unsigned big-endian addition of the index to the base,
// modulo 2^(8*len(base)). Each index therefore maps to a distinct nonce for
// as long as a session stays below 2^(8*len(base)) records, and the counter
// wraps cleanly at the top of the range.
//
// The function is pure: it never mutates base and has no dependency on the
// cipher, so it is testable on its own.
func AddNonce(base []byte, index uint64) []byte {
	out := make([]byte, len(base))
	copy(out, base)

	carry := index
	for i := len(out) - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(out[i]) + (carry & 0xff)
		out[i] = byte(sum)
		carry = (carry >> 8) + (sum >> 8)
	}
	// Any carry left past the most significant byte falls off: that is the
	// modular wrap.
	return out
}
