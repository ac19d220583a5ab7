package probe

import (
	"context"
	"math"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ Prober = (*ICMPProber)(nil)

// ICMPProber sends a single ICMP echo via pro-bing. On Linux it needs
// net.ipv4.ping_group_range to cover the process group; otherwise every
// probe fails with a socket permission error, which is logged.
type ICMPProber struct {
	timeout  time.Duration
	failures *failureLog
}

// NewICMPProber creates an ICMP prober with the given per-probe timeout.
func NewICMPProber(timeout time.Duration, logger *zap.Logger) *ICMPProber {
	return &ICMPProber{timeout: timeout, failures: newFailureLog(logger)}
}

// Probe pings address once. Setup and socket errors are logged and reported
// as unreachable; a plain missing reply is not an error.
func (p *ICMPProber) Probe(ctx context.Context, address string) Result {
	pinger, err := probing.NewPinger(address)
	if err != nil {
		p.failures.failed(MethodICMP, address, err)
		return Unreachable()
	}

	pinger.Count = 1
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	// Run pinger in a goroutine for context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		if runErr != nil {
			p.failures.failed(MethodICMP, address, runErr)
			return Unreachable()
		}
		p.failures.succeeded(address)
		stats := pinger.Statistics()
		if stats.PacketsRecv == 0 {
			return Unreachable()
		}
		return Reachable(roundMillis(stats.AvgRtt))

	case <-ctx.Done():
		pinger.Stop()
		return Unreachable()
	}
}

func roundMillis(d time.Duration) int {
	return int(math.Round(float64(d) / float64(time.Millisecond)))
}
