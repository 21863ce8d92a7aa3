package client

import (
	"testing"
	"time"
)

func TestPollBackoffGrowsBounded(t *testing.T) {
	b := newPollBackoff(10 * time.Second)

	prevMax := time.Duration(0)
	for i := 0; i < 20; i++ {
		got := b.Next(false)
		if got > time.Duration(float64(activeMaxInterval)*(1+pollJitterFrac)) {
			t.Fatalf("streak %d: interval %s exceeds active cap (+jitter)", i, got)
		}
		if got <= 0 {
			t.Fatalf("streak %d: non-positive interval %s", i, got)
		}
		if got > prevMax {
			prevMax = got
		}
		b.RecordNotModified()
	}

	// After 20 misses the interval must have saturated near the cap.
	if prevMax < activeMaxInterval/2 {
		t.Fatalf("interval never approached the cap: max seen %s", prevMax)
	}
}

func TestPollBackoffIdleCap(t *testing.T) {
	b := newPollBackoff(30 * time.Second)
	for i := 0; i < 30; i++ {
		b.RecordNotModified()
	}

	got := b.Next(true)
	if got > time.Duration(float64(idleMaxInterval)*(1+pollJitterFrac)) {
		t.Fatalf("idle interval %s exceeds idle cap (+jitter)", got)
	}
	if got < time.Duration(float64(idleMaxInterval)*(1-pollJitterFrac)) {
		t.Fatalf("saturated idle interval %s below cap (-jitter)", got)
	}
}

func TestPollBackoffReset(t *testing.T) {
	b := newPollBackoff(10 * time.Second)
	for i := 0; i < 10; i++ {
		b.RecordNotModified()
	}
	b.Reset()

	got := b.Next(false)
	if got > time.Duration(float64(10*time.Second)*(1+pollJitterFrac)) {
		t.Fatalf("reset interval %s, want ~base", got)
	}
}

func TestRetryDelaySchedule(t *testing.T) {
	// 2 * 1.5^k capped at 30s, before jitter.
	for k := 0; k < 15; k++ {
		got := retryDelay(k)
		if got > time.Duration(float64(30*time.Second)*(1+pollJitterFrac)) {
			t.Fatalf("attempt %d: delay %s exceeds cap (+jitter)", k, got)
		}
		if got <= 0 {
			t.Fatalf("attempt %d: non-positive delay", k)
		}
	}

	// Early attempts stay short.
	if got := retryDelay(0); got > 3*time.Second {
		t.Fatalf("first retry %s, want ~2s", got)
	}
}

func TestWSReconnectDelay(t *testing.T) {
	if got := wsReconnectDelay(0); got > 2*time.Second {
		t.Fatalf("first reconnect %s, want ~1s", got)
	}
	for k := 0; k < 12; k++ {
		if got := wsReconnectDelay(k); got > time.Duration(float64(60*time.Second)*(1+pollJitterFrac)) {
			t.Fatalf("attempt %d: delay %s exceeds 60s cap (+jitter)", k, got)
		}
	}
}

func TestBoundaryRefreshDelayRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		got := boundaryRefreshDelay(123)
		min := 1*time.Second + time.Duration(123%30)*time.Second
		max := 15*time.Second + time.Duration(123%30)*time.Second
		if got < min || got > max {
			t.Fatalf("delay %s outside [%s, %s]", got, min, max)
		}
	}
}
