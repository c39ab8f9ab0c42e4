package safeguards

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/eyeinthesky6/indexpilot/internal/domain"
)

// cpuThreshold is the host CPU utilization percentage above which new
// builds are deferred.
const cpuThreshold = 75.0

// WriteLatencyProbe measures current database write latency, used
// alongside host CPU to decide whether it is safe to start a new build.
type WriteLatencyProbe interface {
	ProbeWriteLatencyMS(ctx context.Context) (float64, error)
}

// writeLatencyThresholdMS is the write-latency ceiling above which new
// builds are deferred, independent of CPU.
const writeLatencyThresholdMS = 200.0

// ResourceThrottle gates new build starts on host CPU and database write
// latency.
type ResourceThrottle struct {
	probe WriteLatencyProbe
}

// NewResourceThrottle creates a ResourceThrottle.
func NewResourceThrottle(probe WriteLatencyProbe) *ResourceThrottle {
	return &ResourceThrottle{probe: probe}
}

// Check samples host CPU and database write latency and returns a gate
// verdict for starting a new index build.
func (t *ResourceThrottle) Check(ctx context.Context) (domain.GateResult, error) {
	percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return domain.GateResult{}, fmt.Errorf("sampling host cpu: %w", err)
	}
	if len(percents) > 0 && percents[0] > cpuThreshold {
		return domain.GateResult{Outcome: domain.GateDefer, Reason: fmt.Sprintf("host cpu at %.1f%%", percents[0])}, nil
	}

	latency, err := t.probe.ProbeWriteLatencyMS(ctx)
	if err != nil {
		return domain.GateResult{}, fmt.Errorf("probing write latency: %w", err)
	}
	if latency > writeLatencyThresholdMS {
		return domain.GateResult{Outcome: domain.GateDefer, Reason: fmt.Sprintf("write latency at %.1fms", latency)}, nil
	}

	return domain.GateResult{Outcome: domain.GateAllow}, nil
}
