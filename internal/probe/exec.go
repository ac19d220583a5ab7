package probe

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ioBudget is added on top of the echo timeout to bound the whole ping
// process, including start-up and output.
const ioBudget = 2 * time.Second

// Compile-time interface guard.
var _ Prober = (*ExecProber)(nil)

// CommandRunner runs an external command and returns its standard output.
// A non-nil error covers both start failures and non-zero exit codes.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ExecProber shells out to the operating system's ping tool.
type ExecProber struct {
	timeout  time.Duration
	goos     string
	run      CommandRunner
	failures *failureLog
}

// NewExecProber creates a prober that invokes the system ping command.
func NewExecProber(timeout time.Duration, logger *zap.Logger) *ExecProber {
	return &ExecProber{
		timeout:  timeout,
		goos:     runtime.GOOS,
		run:      runCommand,
		failures: newFailureLog(logger),
	}
}

// WithRunner replaces the command runner. Used by tests.
func (p *ExecProber) WithRunner(run CommandRunner) *ExecProber {
	p.run = run
	return p
}

// Probe runs a single ping against address and parses its latency.
func (p *ExecProber) Probe(ctx context.Context, address string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout+ioBudget)
	defer cancel()

	out, err := p.run(ctx, "ping", p.args(address)...)
	if err != nil {
		// A non-zero exit is how ping reports a silent host. Anything else
		// (ping missing, not executable) is a setup problem worth logging.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) && ctx.Err() == nil {
			p.failures.failed(MethodExec, address, err)
		}
		return Unreachable()
	}
	p.failures.succeeded(address)

	latency, ok := ExtractLatency(string(out))
	if !ok {
		return Result{Reachable: true, LatencyMs: NoLatency}
	}
	return Reachable(latency)
}

func (p *ExecProber) args(address string) []string {
	millis := strconv.FormatInt(p.timeout.Milliseconds(), 10)
	switch p.goos {
	case "windows":
		return []string{"-n", "1", "-w", millis, address}
	case "darwin", "freebsd", "dragonfly":
		// BSD ping takes -W in milliseconds.
		return []string{"-c", "1", "-W", millis, address}
	}
	secs := int(p.timeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return []string{"-c", "1", "-W", strconv.Itoa(secs), address}
}
