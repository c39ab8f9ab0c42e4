package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/executor"
)

// ErrSystemBypass is returned when a rollback is refused because system
// bypass (read-only mode) is active, so callers can distinguish a denial
// from any other failure.
var ErrSystemBypass = errors.New("rollback refused: system bypass is active")

// Store is the subset of the mutation log this component needs: looking
// up the mutation being reversed and checking it has not already been
// rolled back.
type Store interface {
	Get(ctx context.Context, mid int64) (domain.Mutation, error)
	HasRollback(ctx context.Context, mid int64) (bool, error)
}

// Executor is the subset of the executor this component needs to reverse
// a committed mutation.
type Executor interface {
	Rollback(ctx context.Context, original domain.Mutation) (executor.Outcome, error)
}

// Outcome is the result of a rollback operation.
type Outcome = executor.Outcome

// Notifier posts a one-line summary of an automatic rollback to an
// operator channel. Optional: a nil Notifier is a silent no-op.
type Notifier interface {
	NotifyRollback(ctx context.Context, original domain.Mutation, reason string) error
}

// Manager is the Rollback & Bypass component (M5).
type Manager struct {
	store    Store
	executor Executor
	notifier Notifier
	bypass   *BypassSet
	log      *slog.Logger
}

// New creates a Manager.
func New(store Store, executor Executor, notifier Notifier, bypass *BypassSet, log *slog.Logger) *Manager {
	return &Manager{store: store, executor: executor, notifier: notifier, bypass: bypass, log: log}
}

// Rollback reverses the mutation referenced by mid: it must be a CREATE or
// REBUILD with no ROLLBACK record already pointing back to it. System
// bypass (read-only mode) blocks even a rollback, since it is itself a DDL
// operation.
func (m *Manager) Rollback(ctx context.Context, mid int64, reason string) (Outcome, error) {
	if m.bypass.SystemBypass() {
		return Outcome{}, fmt.Errorf("rollback of mutation %d: %w", mid, ErrSystemBypass)
	}

	original, err := m.store.Get(ctx, mid)
	if err != nil {
		return Outcome{}, fmt.Errorf("looking up mutation %d: %w", mid, err)
	}

	if original.Action != domain.ActionCreate && original.Action != domain.ActionRebuild {
		return Outcome{}, fmt.Errorf("mutation %d is a %s, not a CREATE or REBUILD; nothing to roll back", mid, original.Action)
	}

	already, err := m.store.HasRollback(ctx, mid)
	if err != nil {
		return Outcome{}, fmt.Errorf("checking prior rollback of %d: %w", mid, err)
	}
	if already {
		return Outcome{}, fmt.Errorf("mutation %d has already been rolled back", mid)
	}

	outcome, err := m.executor.Rollback(ctx, original)
	if err != nil {
		return Outcome{}, fmt.Errorf("rolling back mutation %d: %w", mid, err)
	}

	if reason != "" && m.notifier != nil {
		if notifyErr := m.notifier.NotifyRollback(ctx, original, reason); notifyErr != nil {
			m.log.Warn("rollback notification failed", "mid", mid, "error", notifyErr)
		}
	}

	m.log.Info("rolled back mutation", "mid", mid, "index", original.Index, "reason", reason)
	return outcome, nil
}
