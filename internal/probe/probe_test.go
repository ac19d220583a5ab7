package probe

import (
	"context"
	"errors"
	"os/exec"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/HerbHall/amrwatch/internal/testutil"
)

// fakeRunner records the command it was asked to run and replays a canned
// output and error.
type fakeRunner struct {
	out  string
	err  error
	name string
	args []string
	ctx  context.Context
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.ctx = ctx
	f.name = name
	f.args = args
	return []byte(f.out), f.err
}

func TestResultLatency(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   int
	}{
		{"reachable with latency", Reachable(7), 7},
		{"reachable without latency", Result{Reachable: true, LatencyMs: NoLatency}, NoLatency},
		{"unreachable", Unreachable(), NoLatency},
		{"unreachable ignores stale latency", Result{LatencyMs: 12, HasLatency: true}, NoLatency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Latency(); got != tt.want {
				t.Errorf("Latency() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExecProber_Success(t *testing.T) {
	f := &fakeRunner{out: "64 bytes from 10.0.0.1: icmp_seq=1 ttl=64 time=6.24 ms\n"}
	p := NewExecProber(time.Second, zap.NewNop()).WithRunner(f.run)

	got := p.Probe(context.Background(), "10.0.0.1")
	if want := Reachable(6); got != want {
		t.Errorf("Probe() = %+v, want %+v", got, want)
	}
	if f.name != "ping" {
		t.Errorf("command = %q, want ping", f.name)
	}
	if _, ok := f.ctx.Deadline(); !ok {
		t.Error("command context has no deadline")
	}
}

func TestExecProber_UnparseableLatency(t *testing.T) {
	f := &fakeRunner{out: "PING 10.0.0.1: reply received\n"}
	p := NewExecProber(time.Second, zap.NewNop()).WithRunner(f.run)

	got := p.Probe(context.Background(), "10.0.0.1")
	if !got.Reachable {
		t.Fatal("Reachable = false, want true when latency cannot be parsed")
	}
	if got.HasLatency {
		t.Error("HasLatency = true, want false")
	}
	if got.Latency() != NoLatency {
		t.Errorf("Latency() = %d, want %d", got.Latency(), NoLatency)
	}
}

func TestExecProber_FailureIsUnreachable(t *testing.T) {
	f := &fakeRunner{out: "Request timed out.", err: errors.New("exit status 1")}
	p := NewExecProber(time.Second, zap.NewNop()).WithRunner(f.run)

	if got := p.Probe(context.Background(), "10.0.0.1"); got != Unreachable() {
		t.Errorf("Probe() = %+v, want %+v", got, Unreachable())
	}
}

func TestExecProber_Args(t *testing.T) {
	tests := []struct {
		goos    string
		timeout time.Duration
		want    []string
	}{
		{"windows", time.Second, []string{"-n", "1", "-w", "1000", "10.0.0.1"}},
		{"linux", time.Second, []string{"-c", "1", "-W", "1", "10.0.0.1"}},
		{"linux", 300 * time.Millisecond, []string{"-c", "1", "-W", "1", "10.0.0.1"}},
		{"darwin", time.Second, []string{"-c", "1", "-W", "1000", "10.0.0.1"}},
		{"freebsd", 1500 * time.Millisecond, []string{"-c", "1", "-W", "1500", "10.0.0.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.timeout.String(), func(t *testing.T) {
			f := &fakeRunner{}
			p := NewExecProber(tt.timeout, zap.NewNop()).WithRunner(f.run)
			p.goos = tt.goos
			p.Probe(context.Background(), "10.0.0.1")
			if !reflect.DeepEqual(f.args, tt.want) {
				t.Errorf("args = %v, want %v", f.args, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		method  string
		want    any
		wantErr bool
	}{
		{MethodICMP, &ICMPProber{}, false},
		{"", &ExecProber{}, false},
		{MethodExec, &ExecProber{}, false},
		{"carrier-pigeon", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			p, err := New(tt.method, time.Second, zap.NewNop())
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if reflect.TypeOf(p) != reflect.TypeOf(tt.want) {
				t.Errorf("New(%q) = %T, want %T", tt.method, p, tt.want)
			}
		})
	}
}

func TestICMPProber_InvalidAddressIsLogged(t *testing.T) {
	logger, logs := testutil.ObservedLogger(zapcore.DebugLevel)
	p := NewICMPProber(100*time.Millisecond, logger)

	// Resolution fails before any packet is sent.
	for range 2 {
		if got := p.Probe(context.Background(), "invalid host name.invalid"); got != Unreachable() {
			t.Errorf("Probe() = %+v, want %+v", got, Unreachable())
		}
	}

	warns := logs.FilterMessage("probe error").AllUntimed()
	if len(warns) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warns))
	}
	if got := warns[0].ContextMap()["address"]; got != "invalid host name.invalid" {
		t.Errorf("address field = %v", got)
	}
	if n := logs.FilterMessage("probe error repeated").Len(); n != 1 {
		t.Errorf("repeated = %d, want 1", n)
	}
}

func TestExecProber_SetupErrorIsLogged(t *testing.T) {
	logger, logs := testutil.ObservedLogger(zapcore.DebugLevel)
	f := &fakeRunner{err: exec.ErrNotFound}
	p := NewExecProber(time.Second, logger).WithRunner(f.run)

	if got := p.Probe(context.Background(), "10.0.0.1"); got != Unreachable() {
		t.Errorf("Probe() = %+v, want %+v", got, Unreachable())
	}
	if n := logs.FilterLevelExact(zapcore.WarnLevel).Len(); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
}

func TestExecProber_NonZeroExitIsNotLogged(t *testing.T) {
	logger, logs := testutil.ObservedLogger(zapcore.DebugLevel)
	f := &fakeRunner{out: "Request timed out.", err: &exec.ExitError{}}
	p := NewExecProber(time.Second, logger).WithRunner(f.run)

	if got := p.Probe(context.Background(), "10.0.0.1"); got != Unreachable() {
		t.Errorf("Probe() = %+v, want %+v", got, Unreachable())
	}
	if logs.Len() != 0 {
		t.Errorf("logged %d entries for a silent host, want 0", logs.Len())
	}
}

func TestFailureLog(t *testing.T) {
	logger, logs := testutil.ObservedLogger(zapcore.DebugLevel)
	f := newFailureLog(logger)
	denied := errors.New("socket: permission denied")

	f.failed(MethodICMP, "10.0.0.1", denied)
	f.failed(MethodICMP, "10.0.0.1", denied)
	f.failed(MethodICMP, "10.0.0.2", denied)
	f.failed(MethodICMP, "10.0.0.1", errors.New("no route to host"))
	f.succeeded("10.0.0.1")
	f.failed(MethodICMP, "10.0.0.1", denied)

	if n := logs.FilterLevelExact(zapcore.WarnLevel).Len(); n != 4 {
		t.Errorf("warnings = %d, want 4", n)
	}
	if n := logs.FilterLevelExact(zapcore.DebugLevel).Len(); n != 1 {
		t.Errorf("debug entries = %d, want 1", n)
	}
}
