package rollback

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/executor"
)

type fakeStore struct {
	mutations   map[int64]domain.Mutation
	rolledBack  map[int64]bool
}

func (f *fakeStore) Get(ctx context.Context, mid int64) (domain.Mutation, error) {
	m, ok := f.mutations[mid]
	if !ok {
		return domain.Mutation{}, assert.AnError
	}
	return m, nil
}

func (f *fakeStore) HasRollback(ctx context.Context, mid int64) (bool, error) {
	return f.rolledBack[mid], nil
}

type fakeExecutor struct {
	called domain.Mutation
}

func (f *fakeExecutor) Rollback(ctx context.Context, original domain.Mutation) (executor.Outcome, error) {
	f.called = original
	return executor.Outcome{FinalState: domain.StateRolledBack, IndexName: original.Index, MID: original.MID + 1}, nil
}

type fakeNotifier struct {
	reason string
}

func (f *fakeNotifier) NotifyRollback(ctx context.Context, original domain.Mutation, reason string) error {
	f.reason = reason
	return nil
}

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRollbackReversesCreate(t *testing.T) {
	store := &fakeStore{mutations: map[int64]domain.Mutation{
		1: {MID: 1, Action: domain.ActionCreate, Table: "orders", Index: "idx_orders_tenant_id"},
	}, rolledBack: map[int64]bool{}}
	exec := &fakeExecutor{}
	bypass := NewBypassSet()

	mgr := New(store, exec, nil, bypass, testLog())
	outcome, err := mgr.Rollback(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRolledBack, outcome.FinalState)
	assert.Equal(t, "idx_orders_tenant_id", exec.called.Index)
}

func TestRollbackRefusesNonCreateMutation(t *testing.T) {
	store := &fakeStore{mutations: map[int64]domain.Mutation{
		1: {MID: 1, Action: domain.ActionDrop, Table: "orders", Index: "idx_orders_tenant_id"},
	}, rolledBack: map[int64]bool{}}
	mgr := New(store, &fakeExecutor{}, nil, NewBypassSet(), testLog())

	_, err := mgr.Rollback(context.Background(), 1, "")
	assert.Error(t, err)
}

func TestRollbackRefusesAlreadyRolledBack(t *testing.T) {
	store := &fakeStore{mutations: map[int64]domain.Mutation{
		1: {MID: 1, Action: domain.ActionCreate, Table: "orders", Index: "idx_a"},
	}, rolledBack: map[int64]bool{1: true}}
	mgr := New(store, &fakeExecutor{}, nil, NewBypassSet(), testLog())

	_, err := mgr.Rollback(context.Background(), 1, "")
	assert.Error(t, err)
}

func TestRollbackRefusedUnderSystemBypass(t *testing.T) {
	bypass := NewBypassSet()
	bypass.Set(LevelSystem, "")
	mgr := New(&fakeStore{mutations: map[int64]domain.Mutation{}}, &fakeExecutor{}, nil, bypass, testLog())

	_, err := mgr.Rollback(context.Background(), 1, "")
	assert.Error(t, err)
}

func TestRollbackNotifiesWhenReasonGiven(t *testing.T) {
	store := &fakeStore{mutations: map[int64]domain.Mutation{
		1: {MID: 1, Action: domain.ActionCreate, Table: "orders", Index: "idx_a"},
	}, rolledBack: map[int64]bool{}}
	notifier := &fakeNotifier{}
	mgr := New(store, &fakeExecutor{}, notifier, NewBypassSet(), testLog())

	_, err := mgr.Rollback(context.Background(), 1, "regression detected")
	require.NoError(t, err)
	assert.Equal(t, "regression detected", notifier.reason)
}
