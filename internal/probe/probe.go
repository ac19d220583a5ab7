// Package probe issues single reachability checks against robot addresses.
package probe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// NoLatency is the latency value recorded when none could be measured.
const NoLatency = -1

// Probe methods accepted by New.
const (
	MethodICMP = "icmp"
	MethodExec = "exec"
)

// Result is the outcome of one probe.
type Result struct {
	Reachable  bool
	LatencyMs  int
	HasLatency bool
}

// Latency returns the measured latency, or NoLatency when the target was
// unreachable or the latency could not be determined.
func (r Result) Latency() int {
	if !r.Reachable || !r.HasLatency {
		return NoLatency
	}
	return r.LatencyMs
}

// Unreachable is the result every probe failure folds into.
func Unreachable() Result {
	return Result{LatencyMs: NoLatency}
}

// Reachable builds a successful result with a measured latency.
func Reachable(latencyMs int) Result {
	return Result{Reachable: true, LatencyMs: latencyMs, HasLatency: true}
}

// Prober checks whether an address answers within its timeout. Failures are
// reported as an unreachable Result, never as an error.
type Prober interface {
	Probe(ctx context.Context, address string) Result
}

// New returns the prober for the named method. The system ping tool is the
// default because it needs no socket privileges.
func New(method string, timeout time.Duration, logger *zap.Logger) (Prober, error) {
	switch method {
	case MethodExec, "":
		return NewExecProber(timeout, logger), nil
	case MethodICMP:
		return NewICMPProber(timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", method)
	}
}
