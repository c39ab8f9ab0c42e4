// Package maintenance is the Maintenance Loop (M4): a set of independently
// disablable subtasks that keep the live index cache, statistics, and
// on-disk index health current.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
	"github.com/eyeinthesky6/indexpilot/internal/safeguards"
)

// unusedScanThreshold is the scan count below which a live index is
// flagged as a candidate for the unused-index report.
const unusedScanThreshold = 1

// daysUnused is how long an index must have gone without a scan, on top of
// failing unusedScanThreshold, before it is flagged as unused. An index
// that is rarely scanned but was just used recently (e.g. a monthly report
// query) is not yet stale enough to drop.
const daysUnused = 30 * 24 * time.Hour

// bloatRebuildThreshold is the bloat ratio above which the bloat/rebuild
// subtask schedules a REINDEX CONCURRENTLY.
const bloatRebuildThreshold = 0.3

// hangingBuildAge is how long an index may sit INVALID before the
// hanging-build reaper cancels and drops it.
const hangingBuildAge = 2 * time.Hour

// DB is the subset of dbadapter the maintenance loop needs.
type DB interface {
	IntrospectIndexes(ctx context.Context) ([]domain.LiveIndex, error)
	EstimateBloatRatio(ctx context.Context, table, indexName string) (float64, error)
	ReindexConcurrently(ctx context.Context, name string) error
	Analyze(ctx context.Context, table string) error
	IsIndexValid(ctx context.Context, name string) (bool, error)
	DropIndexConcurrently(ctx context.Context, name string) error
}

// Recorder persists maintenance actions to the mutation log.
type Recorder interface {
	Append(ctx context.Context, m domain.Mutation) (int64, error)
}

// TaskConfig independently enables or disables each subtask.
type TaskConfig struct {
	IntegritySweep     bool
	UnusedIndexReport  bool
	RedundancyReport   bool
	BloatRebuild       bool
	StatsRefresh       bool
	HangingBuildReaper bool
	HealthReport       bool
}

// DefaultTaskConfig enables every subtask.
func DefaultTaskConfig() TaskConfig {
	return TaskConfig{true, true, true, true, true, true, true}
}

// Loop runs the maintenance subtasks on a schedule gated by a
// MaintenanceWindow.
type Loop struct {
	db       DB
	recorder Recorder
	window   safeguards.MaintenanceWindow
	cfg      TaskConfig
	log      *slog.Logger
}

// New creates a Loop.
func New(db DB, recorder Recorder, window safeguards.MaintenanceWindow, cfg TaskConfig, log *slog.Logger) *Loop {
	return &Loop{db: db, recorder: recorder, window: window, cfg: cfg, log: log}
}

// Report summarizes one maintenance pass, returned to the Read API's
// /health endpoint.
type Report struct {
	RanAt          time.Time
	UnusedIndexes  []domain.LiveIndex
	RedundantPairs [][2]domain.LiveIndex
	RebuiltIndexes []string
	ReapedIndexes  []string
	Errors         []string
}

// Run executes every enabled subtask once. Disruptive tasks (bloat
// rebuild, hanging-build reap) are skipped outside the maintenance window;
// read-only tasks (unused/redundancy/health reports) run regardless.
func (l *Loop) Run(ctx context.Context) Report {
	report := Report{RanAt: time.Now()}

	indexes, err := l.db.IntrospectIndexes(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("introspecting indexes: %v", err))
		return report
	}

	if l.cfg.UnusedIndexReport {
		report.UnusedIndexes = unusedIndexes(indexes)
	}
	if l.cfg.RedundancyReport {
		report.RedundantPairs = redundantPairs(indexes)
	}

	inWindow := l.window.Open(time.Now()).Outcome == domain.GateAllow

	if l.cfg.BloatRebuild && inWindow {
		rebuilt := l.runBloatRebuild(ctx, indexes)
		report.RebuiltIndexes = rebuilt
	}

	if l.cfg.HangingBuildReaper && inWindow {
		reaped := l.runHangingBuildReap(ctx, indexes)
		report.ReapedIndexes = reaped
	}

	if l.cfg.StatsRefresh && inWindow {
		l.runStatsRefresh(ctx, indexes)
	}

	if l.cfg.IntegritySweep {
		if errs := l.runIntegritySweep(ctx, indexes); len(errs) > 0 {
			report.Errors = append(report.Errors, errs...)
		}
	}

	return report
}

func (l *Loop) runBloatRebuild(ctx context.Context, indexes []domain.LiveIndex) []string {
	var rebuilt []string
	for _, idx := range indexes {
		ratio, err := l.db.EstimateBloatRatio(ctx, idx.Table, idx.Name)
		if err != nil {
			l.log.Warn("estimating bloat ratio failed", "index", idx.Name, "error", err)
			continue
		}
		if ratio < bloatRebuildThreshold {
			continue
		}
		if err := l.db.ReindexConcurrently(ctx, idx.Name); err != nil {
			l.log.Error("reindex concurrently failed", "index", idx.Name, "error", err)
			continue
		}
		_, _ = l.recorder.Append(ctx, domain.Mutation{Action: domain.ActionRebuild, Table: idx.Table, Index: idx.Name})
		rebuilt = append(rebuilt, idx.Name)
	}
	return rebuilt
}

func (l *Loop) runHangingBuildReap(ctx context.Context, indexes []domain.LiveIndex) []string {
	var reaped []string
	for _, idx := range indexes {
		if idx.Valid {
			continue
		}
		if time.Since(idx.LastUsed) < hangingBuildAge && !idx.LastUsed.IsZero() {
			continue
		}
		if err := l.db.DropIndexConcurrently(ctx, idx.Name); err != nil {
			l.log.Error("dropping hanging build failed", "index", idx.Name, "error", err)
			continue
		}
		_, _ = l.recorder.Append(ctx, domain.Mutation{Action: domain.ActionRebuildFailed, Table: idx.Table, Index: idx.Name})
		reaped = append(reaped, idx.Name)
	}
	return reaped
}

func (l *Loop) runStatsRefresh(ctx context.Context, indexes []domain.LiveIndex) {
	seen := make(map[string]bool)
	for _, idx := range indexes {
		if seen[idx.Table] {
			continue
		}
		seen[idx.Table] = true
		if err := l.db.Analyze(ctx, idx.Table); err != nil {
			l.log.Warn("analyze failed", "table", idx.Table, "error", err)
		}
	}
}

func (l *Loop) runIntegritySweep(ctx context.Context, indexes []domain.LiveIndex) []string {
	var errs []string
	for _, idx := range indexes {
		valid, err := l.db.IsIndexValid(ctx, idx.Name)
		if err != nil {
			errs = append(errs, fmt.Sprintf("checking validity of %s: %v", idx.Name, err))
			continue
		}
		if !valid && idx.Valid {
			errs = append(errs, fmt.Sprintf("index %s became invalid since last snapshot", idx.Name))
		}
	}
	return errs
}

// unusedIndexes flags indexes that are both rarely scanned and stale: scan
// count below unusedScanThreshold AND not scanned within daysUnused. An
// index that is rarely scanned but was used recently is left alone, since
// a single threshold on scan count can't distinguish "never needed" from
// "needed once a quarter".
func unusedIndexes(indexes []domain.LiveIndex) []domain.LiveIndex {
	var out []domain.LiveIndex
	for _, idx := range indexes {
		if idx.ScanCount >= unusedScanThreshold {
			continue
		}
		if !idx.LastUsed.IsZero() && time.Since(idx.LastUsed) < daysUnused {
			continue
		}
		out = append(out, idx)
	}
	return out
}

// redundantPairs finds indexes on the same table where one's column list
// is a strict prefix of the other's with a matching predicate. Unlike the
// decision engine's pruneRedundant, two indexes with identical column
// lists are not reported as a pair.
func redundantPairs(indexes []domain.LiveIndex) [][2]domain.LiveIndex {
	byTable := make(map[string][]domain.LiveIndex)
	for _, idx := range indexes {
		byTable[idx.Table] = append(byTable[idx.Table], idx)
	}

	var pairs [][2]domain.LiveIndex
	for _, group := range byTable {
		for i := range group {
			for j := range group {
				if i == j {
					continue
				}
				if isPrefixOf(group[i].Columns, group[j].Columns) && group[i].Predicate == group[j].Predicate {
					pairs = append(pairs, [2]domain.LiveIndex{group[i], group[j]})
				}
			}
		}
	}
	return pairs
}

func isPrefixOf(shorter, longer []string) bool {
	if len(shorter) == 0 || len(shorter) >= len(longer) {
		return false
	}
	for i, c := range shorter {
		if longer[i] != c {
			return false
		}
	}
	return true
}
