package safeguards

import (
	"sync"
	"time"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/telemetry"
)

// breakerState is the three-state circuit breaker state machine.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) gaugeValue() float64 { return float64(s) }

const (
	failureThreshold   = 5
	openCooldown       = 5 * time.Minute
	halfOpenMaxProbes  = 1
)

type breaker struct {
	mu           sync.Mutex
	state        breakerState
	failures     int
	openedAt     time.Time
	probesInFlight int
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(b.openedAt) >= openCooldown {
			b.state = stateHalfOpen
			b.probesInFlight = 0
			return b.tryProbeLocked()
		}
		return false
	case stateHalfOpen:
		return b.tryProbeLocked()
	}
	return false
}

func (b *breaker) tryProbeLocked() bool {
	if b.probesInFlight >= halfOpenMaxProbes {
		return false
	}
	b.probesInFlight++
	return true
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = stateClosed
	b.probesInFlight = 0
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.state = stateOpen
		b.openedAt = time.Now()
		b.probesInFlight = 0
		return
	}

	b.failures++
	if b.failures >= failureThreshold {
		b.state = stateOpen
		b.openedAt = time.Now()
	}
}

// CircuitBreaker tracks failures both per-table and per-error-kind
// simultaneously, so both "this table is misbehaving" and "this class of
// error is systemic" are recorded. The two are checked separately: Allow
// consults only the table's breaker and AllowErrorKind only the
// error-kind's breaker; neither combines the two.
type CircuitBreaker struct {
	mu         sync.Mutex
	byTable    map[string]*breaker
	byErrKind  map[domain.ErrorKind]*breaker
}

// NewCircuitBreaker creates an empty dual-tracked breaker.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		byTable:   make(map[string]*breaker),
		byErrKind: make(map[domain.ErrorKind]*breaker),
	}
}

func (cb *CircuitBreaker) tableBreaker(table string) *breaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	b, ok := cb.byTable[table]
	if !ok {
		b = &breaker{}
		cb.byTable[table] = b
	}
	return b
}

func (cb *CircuitBreaker) errKindBreaker(kind domain.ErrorKind) *breaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	b, ok := cb.byErrKind[kind]
	if !ok {
		b = &breaker{}
		cb.byErrKind[kind] = b
	}
	return b
}

// Allow checks whether an action against table may proceed.
func (cb *CircuitBreaker) Allow(table string) domain.GateResult {
	tb := cb.tableBreaker(table)
	if !tb.allow() {
		return domain.GateResult{Outcome: domain.GateDeny, Reason: "circuit breaker open for table " + table}
	}
	telemetry.CircuitBreakerState.WithLabelValues("table:" + table).Set(tb.stateSnapshot().gaugeValue())
	return domain.GateResult{Outcome: domain.GateAllow}
}

func (b *breaker) stateSnapshot() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordOutcome reports the result of an action against table, classified
// by errKind when it failed (zero value when it succeeded). Both the
// per-table and per-error-kind breakers are updated.
func (cb *CircuitBreaker) RecordOutcome(table string, errKind domain.ErrorKind, success bool) {
	tb := cb.tableBreaker(table)
	if success {
		tb.recordSuccess()
	} else {
		tb.recordFailure()
	}
	telemetry.CircuitBreakerState.WithLabelValues("table:" + table).Set(tb.stateSnapshot().gaugeValue())

	if errKind == "" {
		return
	}
	eb := cb.errKindBreaker(errKind)
	if success {
		eb.recordSuccess()
	} else {
		eb.recordFailure()
	}
	telemetry.CircuitBreakerState.WithLabelValues("error_kind:" + string(errKind)).Set(eb.stateSnapshot().gaugeValue())
}

// AllowErrorKind checks whether the error-kind breaker permits a retry of
// an action that previously failed with kind.
func (cb *CircuitBreaker) AllowErrorKind(kind domain.ErrorKind) domain.GateResult {
	eb := cb.errKindBreaker(kind)
	if !eb.allow() {
		return domain.GateResult{Outcome: domain.GateDeny, Reason: "circuit breaker open for error kind " + string(kind)}
	}
	return domain.GateResult{Outcome: domain.GateAllow}
}
