// Package ratelimit paces byte output toward a fixed budget. The sender
// uses it to keep line-rate writes from overrunning a serial device whose
// UART buffer is far smaller than an OS pipe.
package ratelimit

import (
	"sync"
	"time"
)

// Pacer is a token bucket denominated in bytes.
type Pacer struct {
	mu         sync.Mutex
	perSecond  float64
	burst      float64
	available  float64
	lastRefill time.Time
}

// NewPacer builds a pacer allowing perSecond bytes sustained and burst
// bytes at once. burst values below one write's worth make Wait spin, so
// callers size it to at least their largest line.
func NewPacer(perSecond float64, burst int) *Pacer {
	return &Pacer{
		perSecond:  perSecond,
		burst:      float64(burst),
		available:  float64(burst),
		lastRefill: time.Now(),
	}
}

func (p *Pacer) refillLocked(now time.Time) {
	elapsed := now.Sub(p.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	p.available += elapsed * p.perSecond
	if p.available > p.burst {
		p.available = p.burst
	}
	p.lastRefill = now
}

// take consumes n bytes of budget if available.
func (p *Pacer) take(n int) (ok bool, wait time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.refillLocked(now)
	need := float64(n)
	if p.available >= need {
		p.available -= need
		return true, 0
	}
	deficit := need - p.available
	return false, time.Duration(deficit / p.perSecond * float64(time.Second))
}

// Wait blocks until n bytes of budget are available, then consumes them.
func (p *Pacer) Wait(n int) {
	for {
		ok, wait := p.take(n)
		if ok {
			return
		}
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		time.Sleep(wait)
	}
}
