package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/eyeinthesky6/indexpilot/internal/app"
	"github.com/eyeinthesky6/indexpilot/internal/config"
	"github.com/eyeinthesky6/indexpilot/internal/platform"
	"github.com/eyeinthesky6/indexpilot/internal/rollback"
	"github.com/eyeinthesky6/indexpilot/internal/runtime"
)

// Exit codes, as spec'd for the CLI surface.
const (
	exitOK               = 0
	exitBypassOrGateDeny = 2
	exitPlannerDown      = 3
	exitPermission       = 4
	exitDBConnectivity   = 5
	exitBug              = 64
)

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(exitBug)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(exitBug)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.Exit(dispatch(ctx, cfg, args[0], args[1:]))
}

func usage() {
	fmt.Fprintln(os.Stderr, `indexpilot <subcommand> [args]

Subcommands:
  daemon                 run the scheduler and Read API until terminated
  init                    bootstrap metadata tables; idempotent
  analyze                 force one Decision Engine pass
  maintain                force one Maintenance Loop pass
  report                  emit health and mutation summary
  rollback <mid> [reason] reverse a mutation
  bypass set|unset <level> <name>
                          toggle a bypass level (feature|component|system|startup)`)
}

func dispatch(ctx context.Context, cfg *config.Config, cmd string, args []string) int {
	logger := slog.Default()

	switch cmd {
	case "daemon":
		cfg.Mode = "daemon"
		return runApp(ctx, cfg)
	case "analyze":
		cfg.Mode = "analyze"
		return runApp(ctx, cfg)
	case "maintain":
		cfg.Mode = "maintain"
		return runApp(ctx, cfg)
	case "init":
		return runInit(cfg, logger)
	case "report":
		return runReport(ctx, cfg, logger)
	case "rollback":
		return runRollback(ctx, cfg, logger, args)
	case "bypass":
		return runBypass(ctx, cfg, logger, args)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown subcommand %q\n", cmd)
		usage()
		return exitBug
	}
}

func runApp(ctx context.Context, cfg *config.Config) int {
	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		return exitBug
	}
	return exitOK
}

// runInit applies global migrations, which are themselves idempotent
// (standard numbered-migration semantics), so repeated invocations are safe.
func runInit(cfg *config.Config, logger *slog.Logger) int {
	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		logger.Error("init failed", "error", err)
		return exitDBConnectivity
	}
	logger.Info("metadata tables bootstrapped")
	return exitOK
}

type reportView struct {
	GeneratedAt time.Time             `json:"generated_at"`
	LiveIndexes int                   `json:"live_index_count"`
	Mutations   []reportMutationEntry `json:"recent_mutations"`
}

type reportMutationEntry struct {
	MID    int64  `json:"mid"`
	Action string `json:"action"`
	Table  string `json:"table"`
	Index  string `json:"index"`
}

func runReport(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	rt, err := runtime.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("connecting for report", "error", err)
		return exitDBConnectivity
	}
	defer rt.Close()

	indexes, err := rt.DB.IntrospectIndexes(ctx)
	if err != nil {
		logger.Error("introspecting indexes", "error", err)
		return exitDBConnectivity
	}

	recent, err := rt.MutationsSource().Since(ctx, 0, 20)
	if err != nil {
		logger.Error("reading recent mutations", "error", err)
		return exitDBConnectivity
	}

	view := reportView{GeneratedAt: time.Now(), LiveIndexes: len(indexes)}
	for _, m := range recent {
		view.Mutations = append(view.Mutations, reportMutationEntry{
			MID: m.MID, Action: string(m.Action), Table: m.Table, Index: m.Index,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		logger.Error("encoding report", "error", err)
		return exitBug
	}
	return exitOK
}

func runRollback(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "error: rollback requires a mutation id")
		return exitBug
	}
	mid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid mutation id %q\n", args[0])
		return exitBug
	}
	reason := ""
	if len(args) > 1 {
		reason = args[1]
	}

	rt, err := runtime.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("connecting for rollback", "error", err)
		return exitDBConnectivity
	}
	defer rt.Close()
	rt.Start(ctx)

	outcome, err := rt.Rollback.Rollback(ctx, mid, reason)
	if err != nil {
		if errors.Is(err, rollback.ErrSystemBypass) {
			logger.Error("rollback denied", "error", err)
			return exitBypassOrGateDeny
		}
		logger.Error("rollback failed", "error", err)
		return exitBug
	}

	logger.Info("rollback complete", "mid", mid, "index", outcome.IndexName, "final_state", outcome.FinalState)
	return exitOK
}

func runBypass(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "error: bypass requires set|unset <level> [name]")
		return exitBug
	}
	action, levelArg := args[0], args[1]
	name := ""
	if len(args) > 2 {
		name = args[2]
	}

	level, err := rollback.ParseLevel(levelArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitBug
	}

	rt, err := runtime.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("connecting for bypass toggle", "error", err)
		return exitDBConnectivity
	}
	defer rt.Close()

	switch action {
	case "set":
		rt.Bypass.Set(level, name)
	case "unset":
		rt.Bypass.Unset(level, name)
	default:
		fmt.Fprintf(os.Stderr, "error: unknown bypass action %q (want set|unset)\n", action)
		return exitBug
	}

	// The bypass toggle only applies to the Runtime this process just
	// constructed: a running daemon holds its own BypassSet in memory and
	// isn't reachable from here, since this daemon has no control-plane
	// RPC. Operators toggle a live daemon's bypass via INDEXPILOT_BYPASS_MODE
	// and a restart, or a future Read API write endpoint.
	logger.Info("bypass toggle applied to this invocation only; restart the daemon with INDEXPILOT_BYPASS_MODE to persist it",
		"action", action, "level", level, "name", name)
	return exitOK
}
