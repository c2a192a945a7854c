package link

import (
	"github.com/coldstream-io/coldstream/internal/ratelimit"
)

// paceBurst is the write budget available at once: comfortably above one
// record line, comfortably below a serial driver's buffer.
const paceBurst = 4096

// Paced wraps a Link and throttles writes to a sustained byte rate,
// protecting a slow serial device from being flooded faster than its UART
// drains.
type Paced struct {
	Link
	pacer *ratelimit.Pacer
}

// WithPacing wraps l so writes never exceed bytesPerSecond sustained.
func WithPacing(l Link, bytesPerSecond float64) *Paced {
	return &Paced{Link: l, pacer: ratelimit.NewPacer(bytesPerSecond, paceBurst)}
}

// PacedOpener wraps every link an Opener produces. A non-positive rate
// passes the opener through untouched.
func PacedOpener(o Opener, bytesPerSecond float64) Opener {
	if bytesPerSecond <= 0 {
		return o
	}
	return OpenerFunc(func() (Link, error) {
		l, err := o.Open()
		if err != nil {
			return nil, err
		}
		return WithPacing(l, bytesPerSecond), nil
	})
}

func (p *Paced) Write(b []byte) (int, error) {
	p.pacer.Wait(len(b))
	return p.Link.Write(b)
}
