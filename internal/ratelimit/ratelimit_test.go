package ratelimit

import (
	"testing"
	"time"
)

func TestBurstPassesImmediately(t *testing.T) {
	p := NewPacer(100, 1000)
	start := time.Now()
	p.Wait(1000)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst-sized Wait took %v", elapsed)
	}
}

func TestSustainedRateThrottles(t *testing.T) {
	// 10 KB/s with a 100-byte burst: 500 further bytes need ~50ms.
	p := NewPacer(10_000, 100)
	p.Wait(100)

	start := time.Now()
	p.Wait(500)
	elapsed := time.Since(start)
	if elapsed < 25*time.Millisecond {
		t.Errorf("Wait(500) returned after %v, expected throttling", elapsed)
	}
}

func TestRefillCapsAtBurst(t *testing.T) {
	// 1 KB/s, 10-byte burst. Sleeping 30ms would bank 30 bytes if the
	// budget were uncapped; capped, the second Wait(10) must refill.
	p := NewPacer(1000, 10)
	time.Sleep(30 * time.Millisecond)
	start := time.Now()
	p.Wait(10)
	p.Wait(10)
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("two Wait(10) calls returned after %v, budget was not capped", elapsed)
	}
}
