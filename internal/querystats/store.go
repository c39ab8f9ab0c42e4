// Package querystats is the Query Stats Store (L4): it ingests observed
// query executions, fingerprints and aggregates them, and exposes rolling
// statistics the decision engine scores candidates against.
package querystats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/telemetry"
)

// ewmaAlpha weights how quickly EWMADurationMS tracks recent samples
// versus history.
const ewmaAlpha = 0.2

type aggregate struct {
	tenant      domain.TenantID
	fingerprint domain.QueryFingerprint
	count       int64
	ewmaMS      float64
	reservoir   *Reservoir
	cardinality *CardinalityEstimator
	columns     map[string]domain.ColumnRef
	firstSeen   time.Time
	lastSeen    time.Time
	dayBuckets  []int64 // index 0 = oldest tracked day
	bucketDay   int64   // unix day number of dayBuckets' last entry
}

func newAggregate(tenant domain.TenantID, fp domain.QueryFingerprint) *aggregate {
	return &aggregate{
		tenant:      tenant,
		fingerprint: fp,
		reservoir:   NewReservoir(512),
		cardinality: NewCardinalityEstimator(),
		columns:     make(map[string]domain.ColumnRef),
	}
}

func (a *aggregate) rollBucket(day int64) {
	if a.bucketDay == 0 {
		a.dayBuckets = []int64{0}
		a.bucketDay = day
		return
	}
	for a.bucketDay < day {
		a.dayBuckets = append(a.dayBuckets, 0)
		a.bucketDay++
		if len(a.dayBuckets) > spikeBucketWindow*2 {
			a.dayBuckets = a.dayBuckets[1:]
		}
	}
}

func (a *aggregate) observe(sample domain.QuerySample, refs []domain.ColumnRef) {
	a.count++
	durMS := float64(sample.Duration.Microseconds()) / 1000.0

	if a.count == 1 {
		a.ewmaMS = durMS
		a.firstSeen = sample.Timestamp
	} else {
		a.ewmaMS = ewmaAlpha*durMS + (1-ewmaAlpha)*a.ewmaMS
	}
	a.lastSeen = sample.Timestamp
	a.reservoir.Add(durMS)
	a.cardinality.AddHash(sample.ParamHash)

	for _, r := range refs {
		a.columns[r.Table+"."+r.Col+"#"+string(r.Role)] = r
	}

	day := sample.Timestamp.Unix() / 86400
	a.rollBucket(day)
	if n := len(a.dayBuckets); n > 0 {
		a.dayBuckets[n-1]++
	}
}

func (a *aggregate) snapshot() domain.QueryStat {
	cols := make([]domain.ColumnRef, 0, len(a.columns))
	for _, c := range a.columns {
		cols = append(cols, c)
	}
	buckets := make([]int64, len(a.dayBuckets))
	copy(buckets, a.dayBuckets)

	return domain.QueryStat{
		Tenant:           a.tenant,
		Fingerprint:      a.fingerprint,
		Count:            a.count,
		EWMADurationMS:   a.ewmaMS,
		P95MS:            a.reservoir.Percentile(95),
		P99MS:            a.reservoir.Percentile(99),
		DistinctParamEst: a.cardinality.Estimate(),
		ColumnsRead:      cols,
		FirstSeen:        a.firstSeen,
		LastSeen:         a.lastSeen,
		BucketCounts:     buckets,
	}
}

// TableResolver maps a fingerprinted statement back to the primary table
// it targets, so ExtractColumnRefs can resolve unqualified column names.
// Most callers derive this from the raw SQL's FROM clause before ingest.
type TableResolver func(rawSQL string) string

// Store aggregates QuerySamples into per-(tenant,fingerprint) QueryStats.
// Samples reach the aggregates only through the ingest channel drained by
// Run; mu guards the aggregate map against concurrent readers (Stat, All).
type Store struct {
	log    *slog.Logger
	ingest chan domain.QuerySample

	resolveTable TableResolver
	spikeParams  SpikeParams

	mu    sync.RWMutex
	stats map[string]*aggregate // key: tenant + "\x00" + fingerprint
}

// Options configures a Store.
type Options struct {
	BufferSize   int
	ResolveTable TableResolver

	// SpikeParams overrides the spike-vs-sustained classifier's K-of-N and
	// multiplier thresholds. Zero value uses DefaultSpikeParams.
	SpikeParams SpikeParams
}

// New creates a Store with a bounded ingest channel. Samples offered after
// the buffer is full are dropped and counted, rather than applying
// backpressure to the query path that is feeding samples in.
func New(log *slog.Logger, opts Options) *Store {
	size := opts.BufferSize
	if size <= 0 {
		size = 4096
	}
	resolve := opts.ResolveTable
	if resolve == nil {
		resolve = func(string) string { return "" }
	}
	spikeParams := opts.SpikeParams
	if spikeParams == (SpikeParams{}) {
		spikeParams = DefaultSpikeParams
	}

	s := &Store{
		log:          log,
		ingest:       make(chan domain.QuerySample, size),
		resolveTable: resolve,
		spikeParams:  spikeParams,
		stats:        make(map[string]*aggregate),
	}
	return s
}

// Offer submits a sample for ingestion without blocking. It returns false
// and increments the drop counter if the ingest buffer is full.
func (s *Store) Offer(sample domain.QuerySample) bool {
	select {
	case s.ingest <- sample:
		return true
	default:
		telemetry.IngestDroppedTotal.Inc()
		return false
	}
}

// Run drains the ingest channel until ctx is canceled, aggregating samples
// into per-fingerprint statistics. It is the Store's single writer
// goroutine.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-s.ingest:
			if !ok {
				return
			}
			s.apply(sample)
		}
	}
}

func (s *Store) apply(sample domain.QuerySample) {
	fp := sample.Fingerprint
	if fp == "" {
		fp = Fingerprint(sample.RawSQL)
	}

	key := string(sample.Tenant) + "\x00" + string(fp)

	s.mu.Lock()
	agg, ok := s.stats[key]
	if !ok {
		agg = newAggregate(sample.Tenant, fp)
		s.stats[key] = agg
	}
	s.mu.Unlock()

	table := s.resolveTable(sample.RawSQL)
	refs := ExtractColumnRefs(sample.RawSQL, table)
	agg.observe(sample, refs)
}

// Stat returns the current snapshot for (tenant, fingerprint), if any
// samples have been observed.
func (s *Store) Stat(tenant domain.TenantID, fp domain.QueryFingerprint) (domain.QueryStat, bool) {
	key := string(tenant) + "\x00" + string(fp)
	s.mu.RLock()
	agg, ok := s.stats[key]
	s.mu.RUnlock()
	if !ok {
		return domain.QueryStat{}, false
	}
	return agg.snapshot(), true
}

// All returns a snapshot of every tracked (tenant, fingerprint) pair. The
// decision engine calls this once per decision cycle.
func (s *Store) All() []domain.QueryStat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.QueryStat, 0, len(s.stats))
	for _, agg := range s.stats {
		out = append(out, agg.snapshot())
	}
	return out
}

// Classification returns the spike-vs-sustained verdict for (tenant, fp).
func (s *Store) Classification(tenant domain.TenantID, fp domain.QueryFingerprint) domain.Classification {
	stat, ok := s.Stat(tenant, fp)
	if !ok {
		return domain.ClassSustained
	}
	return ClassifyWithParams(stat.BucketCounts, s.spikeParams)
}
