// Package planner is the Planner Client (L5): a thin wrapper over
// dbadapter's EXPLAIN support that tracks per-fingerprint reliability and
// falls back to a row-count heuristic when the planner itself cannot be
// trusted for a given statement shape.
package planner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eyeinthesky6/indexpilot/internal/dbadapter"
	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/telemetry"
)

// unreliableCooldown is how long a fingerprint is skipped after repeated
// EXPLAIN failures, before the planner is tried again.
const unreliableCooldown = 10 * time.Minute

// unreliableThreshold is how many consecutive failures put a fingerprint
// into cooldown.
const unreliableThreshold = 3

// Explainer is the subset of dbadapter.Adapter the planner client needs.
type Explainer interface {
	Explain(ctx context.Context, sql string, paramTypes string) (dbadapter.Plan, error)
	RowEstimate(ctx context.Context, table string) (int64, error)
}

type reliability struct {
	consecutiveFailures int
	cooldownUntil       time.Time
}

// Client wraps an Explainer with cooldown tracking and a fallback
// estimate for statements whose fingerprint is currently unreliable.
type Client struct {
	db Explainer

	mu          sync.Mutex
	reliability map[domain.QueryFingerprint]*reliability
}

// New creates a Client.
func New(db Explainer) *Client {
	return &Client{
		db:          db,
		reliability: make(map[domain.QueryFingerprint]*reliability),
	}
}

// Estimate is the planner client's per-statement cost opinion: either a
// real EXPLAIN-derived cost, or — when the fingerprint is in cooldown or
// this EXPLAIN failed — a row-count heuristic.
type Estimate struct {
	TotalCost   float64
	FromPlanner bool
}

// EstimateCost returns a cost estimate for sql, targeting table for the
// fallback heuristic. fp identifies the statement shape for cooldown
// tracking.
func (c *Client) EstimateCost(ctx context.Context, fp domain.QueryFingerprint, sql, table, paramTypes string) (Estimate, error) {
	if c.inCooldown(fp) {
		return c.fallback(ctx, table)
	}

	plan, err := c.db.Explain(ctx, sql, paramTypes)
	if err != nil {
		c.recordFailure(fp)
		telemetry.PlannerFailuresTotal.WithLabelValues(fmt.Sprintf("%v", c.inCooldown(fp))).Inc()
		return c.fallback(ctx, table)
	}

	c.recordSuccess(fp)
	return Estimate{TotalCost: plan.TotalCost(), FromPlanner: true}, nil
}

func (c *Client) fallback(ctx context.Context, table string) (Estimate, error) {
	rows, err := c.db.RowEstimate(ctx, table)
	if err != nil {
		return Estimate{}, fmt.Errorf("estimating cost via row-count fallback for %s: %w", table, err)
	}
	// A full scan's cost roughly scales with row count; this heuristic
	// stands in for a real plan whenever EXPLAIN failed or was skipped.
	return Estimate{TotalCost: float64(rows), FromPlanner: false}, nil
}

func (c *Client) inCooldown(fp domain.QueryFingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reliability[fp]
	if !ok {
		return false
	}
	return time.Now().Before(r.cooldownUntil)
}

func (c *Client) recordFailure(fp domain.QueryFingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reliability[fp]
	if !ok {
		r = &reliability{}
		c.reliability[fp] = r
	}
	r.consecutiveFailures++
	if r.consecutiveFailures >= unreliableThreshold {
		r.cooldownUntil = time.Now().Add(unreliableCooldown)
	}
}

func (c *Client) recordSuccess(fp domain.QueryFingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reliability, fp)
}
