package link

import "io"

// StreamLink wraps any plain byte stream (a file, a pipe, a socket) as a
// Link. Streams carry no modem signalling, so the peer is considered present
// and clear for as long as the stream lives.
type StreamLink struct {
	r       io.Reader
	w       io.Writer
	closers []io.Closer
}

// FromStream builds a StreamLink over a combined read/write stream.
func FromStream(rw io.ReadWriter) *StreamLink {
	l := &StreamLink{r: rw, w: rw}
	if c, ok := rw.(io.Closer); ok {
		l.closers = append(l.closers, c)
	}
	return l
}

// FromPair builds a StreamLink over separate read and write halves. Either
// half may be nil for a one-directional process (a receiver reading a file,
// a sender writing one).
func FromPair(r io.Reader, w io.Writer) *StreamLink {
	l := &StreamLink{r: r, w: w}
	if c, ok := r.(io.Closer); ok {
		l.closers = append(l.closers, c)
	}
	if c, ok := w.(io.Closer); ok {
		l.closers = append(l.closers, c)
	}
	return l
}

func (l *StreamLink) Read(p []byte) (int, error) {
	if l.r == nil {
		return 0, io.EOF
	}
	return l.r.Read(p)
}

func (l *StreamLink) Write(p []byte) (int, error) {
	if l.w == nil {
		return 0, io.ErrClosedPipe
	}
	return l.w.Write(p)
}

// Close closes whichever halves are closable, each exactly once.
func (l *StreamLink) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}

func (l *StreamLink) Present() bool { return true }

func (l *StreamLink) Clear() bool { return true }
