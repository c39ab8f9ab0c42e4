// Package executor is the Executor (M3): it drives one index candidate
// through the PROPOSED -> GATED -> BUILDING -> VALIDATING -> COMMITTED
// state machine, with DEFERRED, FAILED_INVALID, and ROLLED_BACK side
// exits.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// Builder is the subset of dbadapter the executor needs to create and
// validate indexes.
type Builder interface {
	CreateIndexConcurrently(ctx context.Context, spec BuildSpec) error
	DropIndexConcurrently(ctx context.Context, name string) error
	IsIndexValid(ctx context.Context, name string) (bool, error)
}

// BuildSpec is the executor's view of what to build, independent of
// dbadapter's own spec type, so the executor package does not import
// dbadapter's DDL internals directly.
type BuildSpec struct {
	Name       string
	Table      string
	Columns    []string
	Expression string
	Predicate  string
	Method     domain.IndexMethod
}

// Gate is a safeguard check the executor must pass before building.
type Gate interface {
	Check(ctx context.Context, candidate domain.IndexCandidate) (domain.GateResult, error)
}

// Recorder persists state transitions and build outcomes to the mutation
// log.
type Recorder interface {
	Append(ctx context.Context, m domain.Mutation) (int64, error)
}

// Validator confirms a freshly built index is actually chosen by the
// planner for its motivating query shape.
type Validator interface {
	UsesIndex(ctx context.Context, indexName, sampleSQL string) (bool, error)
}

// Executor drives candidates through the build state machine.
type Executor struct {
	builder   Builder
	gates     []Gate
	recorder  Recorder
	validator Validator
	log       *slog.Logger

	maxElapsed time.Duration
}

// Options configures an Executor.
type Options struct {
	MaxElapsed time.Duration
}

// New creates an Executor.
func New(builder Builder, gates []Gate, recorder Recorder, validator Validator, log *slog.Logger, opts Options) *Executor {
	maxElapsed := opts.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = 10 * time.Minute
	}
	return &Executor{
		builder:    builder,
		gates:      gates,
		recorder:   recorder,
		validator:  validator,
		log:        log,
		maxElapsed: maxElapsed,
	}
}

// Outcome is the terminal result of running one candidate through the
// state machine.
type Outcome struct {
	FinalState domain.ExecState
	IndexName  string
	MID        int64
	Reason     string
}

// Run drives candidate through PROPOSED -> GATED -> BUILDING -> VALIDATING
// -> COMMITTED. Not every transition gets its own record: the Recorder
// receives PROPOSE, then DEFERRED, CREATE_FAILED or CREATE for the outcome.
func (e *Executor) Run(ctx context.Context, candidate domain.IndexCandidate, sampleSQL string) (Outcome, error) {
	indexName := BuildIndexName(candidate.Table, candidate.Columns)

	mid, err := e.record(ctx, candidate, domain.ActionPropose, indexName, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("recording propose for %s: %w", indexName, err)
	}

	for _, g := range e.gates {
		result, err := g.Check(ctx, candidate)
		if err != nil {
			return e.deferOutcome(ctx, candidate, indexName, mid, fmt.Sprintf("gate error: %v", err))
		}
		switch result.Outcome {
		case domain.GateDeny:
			return e.deferOutcome(ctx, candidate, indexName, mid, result.Reason)
		case domain.GateDefer:
			return e.deferOutcome(ctx, candidate, indexName, mid, result.Reason)
		}
	}

	if err := e.build(ctx, candidate, indexName); err != nil {
		_, _ = e.record(ctx, candidate, domain.ActionCreateFailed, indexName, &mid)
		return Outcome{FinalState: domain.StateFailed, IndexName: indexName, MID: mid, Reason: err.Error()}, nil
	}

	valid, err := e.builder.IsIndexValid(ctx, indexName)
	if err != nil || !valid {
		_ = e.builder.DropIndexConcurrently(ctx, indexName)
		_, _ = e.record(ctx, candidate, domain.ActionCreateFailed, indexName, &mid)
		return Outcome{FinalState: domain.StateFailed, IndexName: indexName, MID: mid, Reason: "index left invalid after build"}, nil
	}

	if e.validator != nil && sampleSQL != "" {
		used, err := e.validator.UsesIndex(ctx, indexName, sampleSQL)
		if err == nil && !used {
			e.log.Warn("built index not selected by planner for motivating query", "index", indexName)
		}
	}

	finalMID, err := e.record(ctx, candidate, domain.ActionCreate, indexName, &mid)
	if err != nil {
		return Outcome{}, fmt.Errorf("recording commit for %s: %w", indexName, err)
	}

	return Outcome{FinalState: domain.StateCommitted, IndexName: indexName, MID: finalMID}, nil
}

// deferOutcome records a gate-denied or gate-deferred candidate under
// ActionDeferred, carrying the gate's own reason (budget exceeded, rate
// limited, circuit open, outside maintenance window, ...). This is
// distinct from ActionSpikeSuppress, which is reserved for candidates
// never proposed to the Executor in the first place because their
// motivating fingerprint classified as a load spike.
func (e *Executor) deferOutcome(ctx context.Context, candidate domain.IndexCandidate, indexName string, proposeMID int64, reason string) (Outcome, error) {
	_, _ = e.record(ctx, candidate, domain.ActionDeferred, indexName, &proposeMID)
	return Outcome{FinalState: domain.StateDeferred, IndexName: indexName, MID: proposeMID, Reason: reason}, nil
}

// build runs the actual DDL with exponential backoff retry, bounded by
// e.maxElapsed, since a CREATE INDEX CONCURRENTLY can transiently fail
// (e.g. on a concurrent DDL lock) without being a permanent failure.
func (e *Executor) build(ctx context.Context, candidate domain.IndexCandidate, indexName string) error {
	spec := BuildSpec{
		Name:       indexName,
		Table:      candidate.Table,
		Columns:    candidate.Columns,
		Expression: candidate.Expression,
		Predicate:  candidate.Predicate,
		Method:     candidate.Method,
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = e.maxElapsed

	operation := func() error {
		return e.builder.CreateIndexConcurrently(ctx, spec)
	}

	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

func (e *Executor) record(ctx context.Context, candidate domain.IndexCandidate, action domain.MutationAction, indexName string, prevMID *int64) (int64, error) {
	return e.recorder.Append(ctx, domain.Mutation{
		Tenant:    candidate.Tenant,
		Action:    action,
		Table:     candidate.Table,
		Index:     indexName,
		Rationale: candidate.Rationale.ToJSON(),
		PrevMID:   prevMID,
	})
}

// Rollback reverses a committed mutation by dropping its index, recording
// a ROLLBACK mutation linked back to the original.
func (e *Executor) Rollback(ctx context.Context, original domain.Mutation) (Outcome, error) {
	if err := e.builder.DropIndexConcurrently(ctx, original.Index); err != nil {
		return Outcome{}, fmt.Errorf("dropping index %s for rollback: %w", original.Index, err)
	}

	mid := original.MID
	newMID, err := e.recorder.Append(ctx, domain.Mutation{
		Tenant:  original.Tenant,
		Action:  domain.ActionRollback,
		Table:   original.Table,
		Index:   original.Index,
		PrevMID: &mid,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("recording rollback for %s: %w", original.Index, err)
	}

	return Outcome{FinalState: domain.StateRolledBack, IndexName: original.Index, MID: newMID}, nil
}
