package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger for one process.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{logger: logger}
}

// Nop returns a logger that discards everything. Transport loops take a
// logger unconditionally; tests pass this one.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// WithSession adds session_id context to the logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{logger: l.logger.With().Str("session_id", sessionID).Logger()}
}

// WithDevice adds the link device context to the logger.
func (l *Logger) WithDevice(device string) *Logger {
	return &Logger{logger: l.logger.With().Str("device", device).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

// SessionStarted logs the opening of a fresh sending session.
func (l *Logger) SessionStarted(sessionID string, encrypted, enumerated bool) {
	l.logger.Info().
		Str("session_id", sessionID).
		Bool("encrypted", encrypted).
		Bool("enumerated", enumerated).
		Msg("transfer session started")
}

// PeerPresent logs the readiness handshake completing.
func (l *Logger) PeerPresent(attempt int) {
	l.logger.Info().
		Int("connect_attempt", attempt).
		Msg("peer present, link up")
}

// LinkLost logs loss of presence or clearness mid-operation.
func (l *Logger) LinkLost(err error, index uint64) {
	l.logger.Warn().
		Err(err).
		Uint64("record_index", index).
		Msg("link unhealthy, suspending transmission")
}

// RecordSent logs one confirmed record write.
func (l *Logger) RecordSent(index uint64, bytes int) {
	l.logger.Debug().
		Uint64("record_index", index).
		Int("bytes", bytes).
		Msg("record written against healthy link")
}

// RecordDropped logs a record the receiver discarded.
func (l *Logger) RecordDropped(reason string) {
	l.logger.Debug().
		Str("reason", reason).
		Msg("record dropped")
}

// Resync logs the receiver adopting a fresh session nonce mid-stream.
func (l *Logger) Resync() {
	l.logger.Warn().Msg("second nonce record observed, resynchronizing session")
}

// TransferCompleted logs normal sender exit.
func (l *Logger) TransferCompleted(sessionID string, records uint64, reconnects int, duration time.Duration) {
	l.logger.Info().
		Str("session_id", sessionID).
		Uint64("records", records).
		Int("reconnects", reconnects).
		Float64("duration_seconds", duration.Seconds()).
		Msg("transfer completed, producer exhausted")
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
