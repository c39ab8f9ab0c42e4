package querystats

import (
	"context"
	"log/slog"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreAggregatesSamples(t *testing.T) {
	s := New(testLogger(), Options{BufferSize: 16})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	fp := domain.QueryFingerprint("select * from orders where tenant_id = ?")
	for i := 0; i < 10; i++ {
		ok := s.Offer(domain.QuerySample{
			Tenant:      "t1",
			Fingerprint: fp,
			Duration:    50 * time.Millisecond,
			Timestamp:   time.Now(),
			ParamHash:   uint64(i),
		})
		require.True(t, ok)
	}

	require.Eventually(t, func() bool {
		stat, ok := s.Stat("t1", fp)
		return ok && stat.Count == 10
	}, time.Second, time.Millisecond)
}

func TestStoreOfferDropsWhenFull(t *testing.T) {
	s := New(testLogger(), Options{BufferSize: 1})
	// no Run() consumer, so the channel fills immediately
	first := s.Offer(domain.QuerySample{Tenant: "t1", RawSQL: "select 1", Timestamp: time.Now()})
	second := s.Offer(domain.QuerySample{Tenant: "t1", RawSQL: "select 1", Timestamp: time.Now()})
	assert.True(t, first)
	assert.False(t, second)
}

func TestStoreClassificationDefaultsSustained(t *testing.T) {
	s := New(testLogger(), Options{})
	assert.Equal(t, domain.ClassSustained, s.Classification("t1", "unknown-fp"))
}

func TestStoreAllReturnsEverything(t *testing.T) {
	s := New(testLogger(), Options{BufferSize: 16})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Offer(domain.QuerySample{Tenant: "t1", Fingerprint: "fp-a", Timestamp: time.Now()})
	s.Offer(domain.QuerySample{Tenant: "t1", Fingerprint: "fp-b", Timestamp: time.Now()})

	require.Eventually(t, func() bool {
		return len(s.All()) == 2
	}, time.Second, time.Millisecond)
}
