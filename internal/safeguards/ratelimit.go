// Package safeguards is the Safeguards component (M2): rate limiting,
// resource throttling, storage budget accounting, circuit breaking, and
// canary promotion, all expressed as gates that return an explicit
// domain.GateResult rather than an error a caller must interpret.
package safeguards

import (
	"sync"
	"time"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/querystats"
)

// TokenBucket is an adaptive rate limiter: its refill rate adapts to the
// rolling p95 write latency the adapter reports, via Reservoir from the
// query stats package, so the executor backs off automatically as the
// database gets busier rather than only on a fixed schedule.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	baseRefill float64 // tokens/sec at zero observed latency pressure
	lastRefill time.Time

	latencyP95 *querystats.Reservoir
}

// NewTokenBucket creates a bucket with the given capacity and base refill
// rate (tokens per second).
func NewTokenBucket(capacity, baseRefill float64) *TokenBucket {
	return &TokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		baseRefill: baseRefill,
		lastRefill: time.Now(),
		latencyP95: querystats.NewReservoir(256),
	}
}

// ObserveLatency feeds a write latency sample used to adapt the refill
// rate: higher observed p95 latency slows the refill rate, since it
// signals the database is already under write pressure.
func (b *TokenBucket) ObserveLatency(ms float64) {
	b.latencyP95.Add(ms)
}

// refillRate scales baseRefill down as observed p95 latency climbs past
// 50ms, floored at 10% of the base rate so the bucket never fully stalls.
func (b *TokenBucket) refillRate() float64 {
	p95 := b.latencyP95.Percentile(95)
	if p95 <= 50 {
		return b.baseRefill
	}
	factor := 50.0 / p95
	if factor < 0.1 {
		factor = 0.1
	}
	return b.baseRefill * factor
}

// Allow attempts to withdraw one token, returning an Allow or Defer
// GateResult.
func (b *TokenBucket) Allow() domain.GateResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate()
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}

	if b.tokens < 1 {
		return domain.GateResult{Outcome: domain.GateDefer, Reason: "rate limiter bucket empty"}
	}
	b.tokens--
	return domain.GateResult{Outcome: domain.GateAllow}
}
