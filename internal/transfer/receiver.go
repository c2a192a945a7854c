package transfer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/coldstream-io/coldstream/internal/crypto"
	"github.com/coldstream-io/coldstream/internal/link"
	"github.com/coldstream-io/coldstream/internal/observability"
	"github.com/coldstream-io/coldstream/internal/record"
)

// Drop reasons, used as metric labels and log fields.
const (
	dropMalformed    = "malformed"
	dropAuth         = "auth_failed"
	dropUnindexed    = "unindexed"
	dropNoSession    = "no_session_nonce"
	dropDuplicate    = "duplicate"
	dropForeignNonce = "foreign_nonce"
)

// Received is one decoded, authenticated account group and its position in
// the sender's sequence. HasIndex is false only in plaintext sessions with
// enumeration disabled; Index is then the local arrival ordinal.
type Received struct {
	Index    uint64
	HasIndex bool
	Group    record.AccountGroup
}

// Receiver turns the raw line stream from a link into a lazy sequence of
// Received values. Malformed lines, unauthenticated records, handshake
// chatter and retransmitted duplicates are dropped silently; the consumer
// only ever sees records that authenticated (or, in plaintext mode, parsed)
// cleanly.
//
// The sequence is finite only if the link reaches end-of-stream. A link
// read fault surfaces as an error so the caller can reopen the transport
// and Attach the new link; the session nonce and index bookkeeping survive
// the swap, which is what makes the receiver restartable per physical
// reconnect without being restartable across a whole process lifetime.
type Receiver struct {
	session *Session
	br      *bufio.Reader
	log     *observability.Logger
	metrics *observability.Metrics

	// last is the highest yielded index in the current nonce epoch, -1
	// before the first. Retransmits land at or below it and are dropped.
	last int64

	// arrival numbers unenumerated plaintext records in arrival order.
	arrival uint64
}

// NewReceiver wires a receiver loop over an already-open link. The session
// must come from NewRecvSession.
func NewReceiver(session *Session, lnk link.Link, log *observability.Logger, metrics *observability.Metrics) *Receiver {
	if log == nil {
		log = observability.Nop()
	}
	r := &Receiver{
		session: session,
		br:      bufio.NewReader(lnk),
		log:     log.WithSession(session.ID.String()),
		metrics: metrics,
		last:    -1,
	}
	return r
}

// Attach swaps in a freshly reopened link after a fault, keeping the
// recovered session nonce and the duplicate-suppression highwater.
func (r *Receiver) Attach(lnk link.Link) {
	r.br = bufio.NewReader(lnk)
}

// Next blocks until the next valid record arrives and returns it. It
// returns io.EOF at end-of-stream and a wrapped read error on link
// trouble; every other oddity on the wire is dropped and skipped.
//
// There is no presence gate on this side: the flow-control handshake is
// the sender's to poll, and a blocking read on an idle link is the wait.
// Reading unconditionally also lets bytes buffered before a disconnect
// drain instead of being stranded behind a dead handshake.
func (r *Receiver) Next() (Received, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			if err == io.EOF {
				return Received{}, io.EOF
			}
			return Received{}, fmt.Errorf("transfer: link read: %w", err)
		}

		if rec, ok := r.consume(line); ok {
			return rec, nil
		}
	}
}

// Run drains the receiver through fn until end-of-stream, a link fault, a
// consumer error or context cancellation.
func (r *Receiver) Run(ctx context.Context, fn func(Received) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// consume applies the receive algorithm to one raw line. ok is false when
// the line was dropped or was a bootstrap record.
func (r *Receiver) consume(line string) (Received, bool) {
	decoded := record.Decode(line)
	switch decoded.Kind {
	case record.KindInvalid:
		r.drop(dropMalformed)
		return Received{}, false
	case record.KindNonce:
		r.consumeNonce(decoded)
		return Received{}, false
	}
	return r.consumeData(decoded)
}

// consumeNonce recovers or replaces the session nonce. The bootstrap
// ciphertext is sealed under the all-zero nonce; anything that fails to
// authenticate as a 12-byte nonce is line noise. A sender that reconnected
// re-emits the identical bootstrap record, which is ignored here; a
// genuinely different nonce means a brand-new sender session and is treated
// as an explicit resynchronization: adopt it and restart index expectation
// at zero.
func (r *Receiver) consumeNonce(decoded record.Line) {
	if !r.session.Encrypted() {
		r.drop(dropForeignNonce)
		return
	}
	nonce, err := r.session.Cipher.Open(crypto.ZeroNonce(), decoded.Payload)
	if err != nil || len(nonce) != crypto.NonceSize {
		r.drop(dropAuth)
		return
	}
	switch {
	case r.session.Nonce == nil:
		r.session.Nonce = nonce
		r.log.Info("session nonce recovered")
	case bytes.Equal(r.session.Nonce, nonce):
		// Same session, reconnected sender. Nothing to do.
	default:
		r.session.Nonce = nonce
		r.last = -1
		r.log.Resync()
	}
}

func (r *Receiver) consumeData(decoded record.Line) (Received, bool) {
	payload := decoded.Payload

	if r.session.Encrypted() {
		if !decoded.HasIndex {
			r.drop(dropUnindexed)
			return Received{}, false
		}
		if r.session.Nonce == nil {
			// Joined mid-session before any bootstrap record; nothing can
			// authenticate yet.
			r.drop(dropNoSession)
			return Received{}, false
		}
		nonce := crypto.AddNonce(r.session.Nonce, decoded.Index)
		start := time.Now()
		plaintext, err := r.session.Cipher.Open(nonce, payload)
		if r.metrics != nil {
			r.metrics.CryptoOpDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			r.drop(dropAuth)
			return Received{}, false
		}
		payload = plaintext
	}

	group, err := record.UnmarshalGroup(payload)
	if err != nil {
		r.drop(dropMalformed)
		return Received{}, false
	}

	rec := Received{Group: group}
	if decoded.HasIndex {
		if int64(decoded.Index) <= r.last {
			r.drop(dropDuplicate)
			return Received{}, false
		}
		r.last = int64(decoded.Index)
		rec.Index = decoded.Index
		rec.HasIndex = true
	} else {
		rec.Index = r.arrival
		r.arrival++
	}

	if r.metrics != nil {
		r.metrics.RecordReceived(len(payload))
	}
	return rec, true
}

// readLine returns one newline-terminated line, or the unterminated tail of
// the stream right before EOF.
func (r *Receiver) readLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if line != "" {
		return line, nil
	}
	return "", err
}

func (r *Receiver) drop(reason string) {
	r.log.RecordDropped(reason)
	if r.metrics != nil {
		r.metrics.RecordDropped(reason)
	}
}
