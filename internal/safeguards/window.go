package safeguards

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// MaintenanceWindow is a daily wall-clock interval, in the server's local
// time, during which disruptive maintenance operations (REINDEX, bulk
// VACUUM) are permitted. An empty window means maintenance may run at any
// time.
type MaintenanceWindow struct {
	startMinute int // minutes since midnight
	endMinute   int
}

// ParseWindow parses a "HH:MM-HH:MM" spec. An empty spec yields a window
// that is always open.
func ParseWindow(spec string) (MaintenanceWindow, error) {
	if spec == "" {
		return MaintenanceWindow{startMinute: 0, endMinute: 24 * 60}, nil
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return MaintenanceWindow{}, fmt.Errorf("invalid maintenance window %q: expected HH:MM-HH:MM", spec)
	}

	start, err := parseClock(parts[0])
	if err != nil {
		return MaintenanceWindow{}, fmt.Errorf("invalid maintenance window start %q: %w", parts[0], err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return MaintenanceWindow{}, fmt.Errorf("invalid maintenance window end %q: %w", parts[1], err)
	}

	return MaintenanceWindow{startMinute: start, endMinute: end}, nil
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// Open reports whether now falls inside the window. Windows that wrap past
// midnight (start > end) are supported.
func (w MaintenanceWindow) Open(now time.Time) domain.GateResult {
	minute := now.Hour()*60 + now.Minute()

	var inWindow bool
	if w.startMinute <= w.endMinute {
		inWindow = minute >= w.startMinute && minute < w.endMinute
	} else {
		inWindow = minute >= w.startMinute || minute < w.endMinute
	}

	if !inWindow {
		return domain.GateResult{Outcome: domain.GateDefer, Reason: "outside maintenance window"}
	}
	return domain.GateResult{Outcome: domain.GateAllow}
}
