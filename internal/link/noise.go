package link

import (
	"math/rand"
	"time"
)

// hexAlphabet is what corrupted bytes are substituted from, so injected
// noise looks like plausible line garbage rather than binary junk.
const hexAlphabet = "0123456789abcdef"

// Noisy wraps a Link and corrupts a fraction of the bytes it writes, for
// exercising the receiver's tolerance to a dirty cable. Corruption lives
// here at the adapter boundary, never in the codec, so production wiring
// simply omits the wrapper. Record framing (CR/LF) is left alone; real line
// noise between records already reaches the receiver as unparseable lines.
type Noisy struct {
	Link
	rate float64
	rng  *rand.Rand
}

// WithNoise wraps l so that each written non-framing byte is replaced, with
// probability rate, by a random hex character. A nil rng gets a time-seeded
// one; tests pass their own for reproducibility.
func WithNoise(l Link, rate float64, rng *rand.Rand) *Noisy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Noisy{Link: l, rate: rate, rng: rng}
}

// NoisyOpener wraps every link an Opener produces. Rate zero passes the
// opener through untouched.
func NoisyOpener(o Opener, rate float64) Opener {
	if rate <= 0 {
		return o
	}
	return OpenerFunc(func() (Link, error) {
		l, err := o.Open()
		if err != nil {
			return nil, err
		}
		return WithNoise(l, rate, nil), nil
	})
}

func (n *Noisy) Write(p []byte) (int, error) {
	if n.rate <= 0 {
		return n.Link.Write(p)
	}
	dirty := make([]byte, len(p))
	copy(dirty, p)
	for i, b := range dirty {
		if b == '\n' || b == '\r' {
			continue
		}
		if n.rng.Float64() < n.rate {
			dirty[i] = hexAlphabet[n.rng.Intn(len(hexAlphabet))]
		}
	}
	return n.Link.Write(dirty)
}
