package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/coldstream-io/coldstream/internal/crypto"
	"github.com/coldstream-io/coldstream/internal/link"
	"github.com/coldstream-io/coldstream/internal/observability"
	"github.com/coldstream-io/coldstream/internal/record"
)

const (
	// DefaultBackoff is the pause between reconnect attempts after a link
	// fault or a failed open.
	DefaultBackoff = time.Second

	// DefaultPollInterval is how often the loops re-sample the health
	// predicates while waiting for presence or clearness.
	DefaultPollInterval = 50 * time.Millisecond
)

// errLinkFault marks recoverable transport trouble: open failures, loss of
// presence, write errors. The sender reconnects and retries indefinitely;
// everything not wrapped in it is programmer error and fatal.
var errLinkFault = errors.New("transfer: link fault")

// senderState is the sender's position in its connection lifecycle.
type senderState int

const (
	stateIdle senderState = iota
	stateAwaitPeer
	stateStreaming
	stateFaulted
)

// pending is the record currently in flight: built once, retried verbatim
// across reconnects until a write is confirmed against a healthy link.
type pending struct {
	index uint64
	line  string
}

// Sender drains a Producer into the link, one record per line, surviving
// transient disconnects without skipping or duplicating a record.
//
// Lifecycle per physical connection: open the transport and assert local
// readiness (Idle -> AwaitPeer), wait for presence (-> Streaming), emit the
// bootstrap nonce record when encrypting, then stream data records, gating
// each write on clearness and confirming it against presence. Any fault
// closes the link, backs off and reconnects (-> Faulted -> AwaitPeer); the
// producer cursor only ever advances past a confirmed write.
type Sender struct {
	session  *Session
	opener   link.Opener
	producer Producer
	log      *observability.Logger
	metrics  *observability.Metrics

	backoff time.Duration
	poll    time.Duration

	state      senderState
	next       uint64
	inFlight   *pending
	reconnects int
	sent       uint64
}

// SenderOption adjusts loop timing.
type SenderOption func(*Sender)

// WithBackoff overrides the reconnect backoff.
func WithBackoff(d time.Duration) SenderOption {
	return func(s *Sender) { s.backoff = d }
}

// WithPollInterval overrides the health sampling cadence.
func WithPollInterval(d time.Duration) SenderOption {
	return func(s *Sender) { s.poll = d }
}

// NewSender wires a sender loop. The session must come from NewSendSession;
// logger and metrics may be observability.Nop()/nil respectively.
func NewSender(session *Session, opener link.Opener, producer Producer, log *observability.Logger, metrics *observability.Metrics, opts ...SenderOption) (*Sender, error) {
	if session.Encrypted() && !session.Enumerate {
		return nil, ErrCodecInvariant
	}
	if log == nil {
		log = observability.Nop()
	}
	s := &Sender{
		session:  session,
		opener:   opener,
		producer: producer,
		log:      log.WithSession(session.ID.String()),
		metrics:  metrics,
		backoff:  DefaultBackoff,
		poll:     DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run blocks until the producer is exhausted and the last record is
// confirmed written (nil), the context is cancelled, or a non-retryable
// codec/cipher fault occurs. Link trouble is never returned: it is retried
// with backoff forever, since the counterparty may simply not be connected
// yet.
func (s *Sender) Run(ctx context.Context) error {
	start := time.Now()
	s.log.SessionStarted(s.session.ID.String(), s.session.Encrypted(), s.session.Enumerate)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.state = stateIdle
		lnk, err := s.opener.Open()
		if err != nil {
			s.log.Error(err, "transport open failed, will retry")
			if !s.sleep(ctx, s.backoff) {
				return ctx.Err()
			}
			continue
		}

		err = s.stream(ctx, lnk)
		lnk.Close()
		s.setPresent(false)

		switch {
		case err == nil:
			s.log.TransferCompleted(s.session.ID.String(), s.sent, s.reconnects, time.Since(start))
			return nil
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, errLinkFault):
			s.state = stateFaulted
			s.reconnects++
			if s.metrics != nil {
				s.metrics.ReconnectsTotal.Inc()
			}
			if s.inFlight != nil {
				s.log.LinkLost(err, s.inFlight.index)
			} else {
				s.log.LinkLost(err, s.next)
			}
			if !s.sleep(ctx, s.backoff) {
				return ctx.Err()
			}
		default:
			// Codec or cipher trouble is a bug, not weather.
			return err
		}
	}
}

// stream runs one physical connection to completion: nil means the producer
// is exhausted and everything is confirmed written.
func (s *Sender) stream(ctx context.Context, lnk link.Link) error {
	s.state = stateAwaitPeer
	if err := s.awaitPresent(ctx, lnk); err != nil {
		return err
	}
	s.state = stateStreaming
	s.log.PeerPresent(s.reconnects + 1)
	s.setPresent(true)

	// A record left in flight by the previous connection is about to be
	// re-attempted verbatim.
	if s.inFlight != nil && s.metrics != nil {
		s.metrics.SendRetriesTotal.Inc()
	}

	// Bootstrap nonce record, once per physical connection, always first.
	if s.session.Encrypted() {
		line, err := s.session.sealedNonceRecord()
		if err != nil {
			return err
		}
		if err := s.writeConfirmed(ctx, lnk, line); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.inFlight == nil {
			group, err := s.producer.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("transfer: producer: %w", err)
			}
			line, err := s.buildLine(group)
			if err != nil {
				return err
			}
			s.inFlight = &pending{index: s.next, line: line}
		}

		if err := s.writeConfirmed(ctx, lnk, s.inFlight.line); err != nil {
			return err
		}

		s.log.RecordSent(s.inFlight.index, len(s.inFlight.line)+1)
		if s.metrics != nil {
			s.metrics.RecordSent(len(s.inFlight.line) + 1)
		}
		s.inFlight = nil
		s.next++
		s.sent++
	}
}

// buildLine serializes and (when encrypting) seals one group. Deterministic
// in the index, so a rebuilt line after a crash-free retry is byte-identical
// to the cached one.
func (s *Sender) buildLine(group record.AccountGroup) (string, error) {
	payload, err := record.MarshalGroup(group)
	if err != nil {
		return "", fmt.Errorf("transfer: encode group %d: %w", s.next, err)
	}
	if s.session.Encrypted() {
		nonce := crypto.AddNonce(s.session.Nonce, s.next)
		start := time.Now()
		payload, err = s.session.Cipher.Seal(nonce, payload)
		if err != nil {
			return "", fmt.Errorf("transfer: seal record %d: %w", s.next, err)
		}
		if s.metrics != nil {
			s.metrics.CryptoOpDuration.Observe(time.Since(start).Seconds())
		}
	}
	return record.EncodeData(payload, s.next, s.session.Enumerate), nil
}

// writeConfirmed blocks until the peer is clear, writes one line and then
// re-samples presence. A record counts as transmitted only if the link was
// healthy before, during and after the write; otherwise the caller gets a
// link fault and the record stays in flight.
func (s *Sender) writeConfirmed(ctx context.Context, lnk link.Link, line string) error {
	if err := s.awaitClear(ctx, lnk); err != nil {
		return err
	}
	if _, err := lnk.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("%w: write: %v", errLinkFault, err)
	}
	if !lnk.Present() {
		return fmt.Errorf("%w: presence lost before write was confirmed", errLinkFault)
	}
	return nil
}

// awaitPresent polls the handshake until both directions are ready. It may
// block indefinitely; the counterparty simply is not there yet.
func (s *Sender) awaitPresent(ctx context.Context, lnk link.Link) error {
	for !lnk.Present() {
		if !s.sleep(ctx, s.poll) {
			return ctx.Err()
		}
	}
	return nil
}

// awaitClear polls for clear-to-send. Losing presence while waiting is a
// link fault, not a longer wait.
func (s *Sender) awaitClear(ctx context.Context, lnk link.Link) error {
	for !lnk.Clear() {
		if !lnk.Present() {
			return fmt.Errorf("%w: presence lost while awaiting clear-to-send", errLinkFault)
		}
		if !s.sleep(ctx, s.poll) {
			return ctx.Err()
		}
	}
	return nil
}

func (s *Sender) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Sender) setPresent(present bool) {
	if s.metrics != nil {
		s.metrics.SetLinkPresent(present)
	}
}
