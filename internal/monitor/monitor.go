// Package monitor runs the polling loop that probes every robot, tracks its
// state, logs transitions and publishes status updates.
package monitor

import (
	"context"
	"time"

	"github.com/HerbHall/amrwatch/internal/event"
	"github.com/HerbHall/amrwatch/internal/eventlog"
	"github.com/HerbHall/amrwatch/internal/notify"
	"github.com/HerbHall/amrwatch/internal/probe"
	"github.com/HerbHall/amrwatch/internal/tracker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source identifies events published by the monitor.
const Source = "monitor"

// EventLogger persists transitions.
type EventLogger interface {
	Append(ctx context.Context, rec eventlog.Record) error
}

// Publisher delivers events to presentation layers.
type Publisher interface {
	Publish(ctx context.Context, e event.Event) error
}

// Config controls the polling loop.
type Config struct {
	Targets []tracker.Target
	// Interval is the period between poll cycles.
	Interval time.Duration
	// Timeout is the per-probe bound, used to warn about cycle overlap.
	Timeout time.Duration
	// Concurrency is the number of robots probed at once. Values below 2
	// probe sequentially in configuration order.
	Concurrency int
}

// Monitor owns the per-robot state and drives one poll cycle per interval.
type Monitor struct {
	cfg      Config
	prober   probe.Prober
	tracker  *tracker.Tracker
	log      EventLogger
	notifier notify.Notifier
	bus      Publisher
	now      func() time.Time
	logger   *zap.Logger
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithEventLogger sets the transition log. Without one, transitions are
// still published but not persisted.
func WithEventLogger(l EventLogger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithNotifier sets the alert raised on transitions.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a monitor. Every robot starts in the Unknown state.
func New(cfg Config, prober probe.Prober, bus Publisher, logger *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		prober:   prober,
		tracker:  tracker.New(cfg.Targets),
		notifier: notify.Nop{},
		bus:      bus,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tracker exposes the state tracker for read-only snapshots.
func (m *Monitor) Tracker() *tracker.Tracker {
	return m.tracker
}

// Run polls immediately and then once per interval until ctx is cancelled.
// In-flight probes are abandoned on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	if worst := m.worstCycle(); worst >= m.cfg.Interval {
		m.logger.Warn("worst-case poll cycle exceeds the poll interval",
			zap.Duration("worst_cycle", worst),
			zap.Duration("interval", m.cfg.Interval),
			zap.Int("targets", len(m.cfg.Targets)),
		)
	}
	m.logger.Info("monitor started",
		zap.Int("targets", len(m.cfg.Targets)),
		zap.Duration("interval", m.cfg.Interval),
		zap.Duration("timeout", m.cfg.Timeout),
		zap.Int("concurrency", m.concurrency()),
	)

	m.PollOnce(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-ticker.C:
			m.PollOnce(ctx)
		}
	}
}

// PollOnce probes every robot once.
func (m *Monitor) PollOnce(ctx context.Context) {
	started := m.now()

	if n := m.concurrency(); n > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(n)
		for _, target := range m.cfg.Targets {
			g.Go(func() error {
				m.check(gctx, target)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, target := range m.cfg.Targets {
			if ctx.Err() != nil {
				return
			}
			m.check(ctx, target)
		}
	}

	m.publish(ctx, event.TopicCycle, event.CycleEvent{
		Started:  started,
		Duration: m.now().Sub(started),
		Targets:  len(m.cfg.Targets),
	})
}

func (m *Monitor) check(ctx context.Context, target tracker.Target) {
	began := m.now()
	res := m.prober.Probe(ctx, target.Address)
	at := m.now()

	m.publish(ctx, event.TopicStatus, event.StatusUpdate{
		Name:      target.Name,
		Address:   target.Address,
		Status:    tracker.StateOf(res.Reachable).String(),
		LatencyMs: res.Latency(),
		CheckedAt: at,
		Duration:  at.Sub(began),
	})

	tr, ok := m.tracker.Observe(target, res, at)
	if !ok {
		return
	}

	m.publish(ctx, event.TopicTransition, event.Transition{
		Name:      tr.Target.Name,
		Address:   tr.Target.Address,
		From:      tr.From.String(),
		To:        tr.To.String(),
		LatencyMs: tr.LatencyMs,
		At:        tr.At,
		Initial:   tr.Initial(),
	})
	m.record(ctx, tr)

	// The first observation of a robot is logged but never alerts.
	if !tr.Initial() {
		m.notifier.Notify()
	}
}

func (m *Monitor) record(ctx context.Context, tr tracker.Transition) {
	if m.log == nil {
		return
	}
	err := m.log.Append(ctx, eventlog.Record{
		Name:      tr.Target.Name,
		Address:   tr.Target.Address,
		Event:     tr.To.String(),
		Timestamp: tr.At,
		LatencyMs: tr.LatencyMs,
	})
	if err == nil {
		return
	}

	m.logger.Error("status event lost",
		zap.String("robot", tr.Target.Name),
		zap.String("event", tr.To.String()),
		zap.Error(err),
	)
	m.publish(ctx, event.TopicLogFailure, event.LogFailureEvent{
		Name: tr.Target.Name,
		Err:  err.Error(),
	})
}

func (m *Monitor) publish(ctx context.Context, topic string, payload any) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, event.Event{
		Topic:     topic,
		Source:    Source,
		Timestamp: m.now(),
		Payload:   payload,
	}); err != nil {
		m.logger.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (m *Monitor) concurrency() int {
	if m.cfg.Concurrency < 1 {
		return 1
	}
	return m.cfg.Concurrency
}

// worstCycle is the longest a poll cycle can take when every probe times
// out.
func (m *Monitor) worstCycle() time.Duration {
	n := len(m.cfg.Targets)
	c := m.concurrency()
	rounds := (n + c - 1) / c
	return time.Duration(rounds) * m.cfg.Timeout
}
