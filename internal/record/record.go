// Package record implements the wire codec for account-group records.
//
// A record is one ASCII line. The first field is either a 5-character,
// space-padded, right-justified decimal index, or the literal token "nonce"
// for the session bootstrap record. The final field is the lower-case hex
// encoding of the payload: plaintext JSON in unencrypted mode, AEAD
// ciphertext plus tag otherwise. Fields are joined with ':'. A line that
// carries no index is just the hex payload.
//
// The codec is purely syntactic. It performs no cryptographic validation and
// never fails hard on garbage input: Decode reports KindInvalid so the
// caller can skip line noise.
package record

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NonceTag is the index-field token that marks the bootstrap nonce record.
const NonceTag = "nonce"

var (
	// ErrGroupShape is returned when a decoded payload is not a JSON array
	// of [symbol, path, address] triples.
	ErrGroupShape = errors.New("record: payload is not an account-group triple array")

	errNotCanonicalHex = errors.New("record: payload is not canonical lower-case hex")
)

// AccountEntry is one derived account: currency symbol, derivation path and
// the resulting address. Entries are produced externally and never mutated.
type AccountEntry struct {
	Symbol  string
	Path    string
	Address string
}

// AccountGroup is the ordered set of accounts derived at one logical index,
// one entry per configured currency. Arity is fixed for a whole session.
type AccountGroup []AccountEntry

// Kind discriminates the record union.
type Kind int

const (
	// KindInvalid marks a line that does not parse as any record.
	KindInvalid Kind = iota
	// KindNonce marks the session bootstrap record.
	KindNonce
	// KindData marks an account-group record.
	KindData
)

// Line is the result of decoding one wire line.
type Line struct {
	Kind     Kind
	Index    uint64
	HasIndex bool
	// Payload is the hex-decoded field: JSON or ciphertext for KindData,
	// the sealed session nonce for KindNonce. Nil for KindInvalid.
	Payload []byte
}

// MarshalGroup encodes a group as the JSON array of [symbol, path, address]
// triples, in entry order.
func MarshalGroup(g AccountGroup) ([]byte, error) {
	triples := make([][3]string, len(g))
	for i, e := range g {
		triples[i] = [3]string{e.Symbol, e.Path, e.Address}
	}
	return json.Marshal(triples)
}

// UnmarshalGroup decodes the JSON triple array produced by MarshalGroup.
func UnmarshalGroup(data []byte) (AccountGroup, error) {
	var triples [][]string
	if err := json.Unmarshal(data, &triples); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGroupShape, err)
	}
	g := make(AccountGroup, len(triples))
	for i, t := range triples {
		if len(t) != 3 {
			return nil, ErrGroupShape
		}
		g[i] = AccountEntry{Symbol: t[0], Path: t[1], Address: t[2]}
	}
	return g, nil
}

// EncodeData builds the wire line for one data record. The payload is hex
// encoded as-is; whether it is plaintext JSON or ciphertext is the caller's
// business. When enumerated is false the index field is omitted entirely.
func EncodeData(payload []byte, index uint64, enumerated bool) string {
	if !enumerated {
		return hex.EncodeToString(payload)
	}
	return fmt.Sprintf("%5d:%s", index, hex.EncodeToString(payload))
}

// EncodeNonce builds the wire line for the bootstrap nonce record.
func EncodeNonce(ciphertext []byte) string {
	return NonceTag + ":" + hex.EncodeToString(ciphertext)
}

// Decode parses one wire line. It returns Kind KindInvalid for anything that
// is not a record: wrong field count, non-decimal index, odd or non-hex
// payload. Handshake chatter and corrupted lines land here.
func Decode(line string) Line {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Line{}
	}

	head, tail, found := strings.Cut(line, ":")
	if !found {
		// Bare hex payload, enumeration disabled.
		payload, err := decodeHex(line)
		if err != nil {
			return Line{}
		}
		return Line{Kind: KindData, Payload: payload}
	}

	payload, err := decodeHex(tail)
	if err != nil {
		return Line{}
	}

	if head == NonceTag {
		return Line{Kind: KindNonce, Payload: payload}
	}

	index, err := strconv.ParseUint(strings.TrimSpace(head), 10, 64)
	if err != nil {
		return Line{}
	}
	return Line{Kind: KindData, Index: index, HasIndex: true, Payload: payload}
}

// decodeHex rejects upper-case digits so that a record is byte-for-byte
// canonical on the wire.
func decodeHex(s string) ([]byte, error) {
	if s == "" || strings.ToLower(s) != s {
		return nil, errNotCanonicalHex
	}
	return hex.DecodeString(s)
}
