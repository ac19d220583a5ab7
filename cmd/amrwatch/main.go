package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/amrwatch/internal/config"
	"github.com/HerbHall/amrwatch/internal/console"
	"github.com/HerbHall/amrwatch/internal/event"
	"github.com/HerbHall/amrwatch/internal/eventlog"
	"github.com/HerbHall/amrwatch/internal/metrics"
	"github.com/HerbHall/amrwatch/internal/monitor"
	"github.com/HerbHall/amrwatch/internal/notify"
	"github.com/HerbHall/amrwatch/internal/probe"
	"github.com/HerbHall/amrwatch/internal/report"
	"github.com/HerbHall/amrwatch/internal/server"
	"github.com/HerbHall/amrwatch/internal/status"
	"github.com/HerbHall/amrwatch/internal/store"
	"github.com/HerbHall/amrwatch/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "report":
			os.Exit(runReport(os.Args[2:], os.Stdout, os.Stderr))
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Logs go to stderr; stdout carries the status table.
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("monitor stopped", zap.Error(err))
	}
	logger.Info("AMRWatch stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	prober, err := probe.New(cfg.Monitor.Method, cfg.Monitor.Timeout, logger.Named("probe"))
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger, os.Stdout, prober)
	if err != nil {
		return err
	}
	defer a.close()

	return a.monitor.Run(ctx)
}

// app is the wired monitor with its presentation layers.
type app struct {
	bus     *event.Bus
	board   *status.Board
	monitor *monitor.Monitor
	closers []func()
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, stdout io.Writer, prober probe.Prober) (_ *app, err error) {
	startedAt := time.Now()
	targets := cfg.TrackerTargets()

	logger.Info("AMRWatch starting",
		zap.String("version", version.Short()),
		zap.Int("targets", len(targets)),
		zap.Duration("interval", cfg.Monitor.Interval),
		zap.String("method", cfg.Monitor.Method),
	)

	a := &app{
		bus:   event.NewBus(logger),
		board: status.NewBoard(targets, startedAt),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.closers = append(a.closers, a.board.Attach(a.bus))
	a.closers = append(a.closers, console.New(a.board, stdout, logger).Attach(a.bus))

	collector := metrics.New()
	a.closers = append(a.closers, collector.Attach(a.bus))

	opts := []monitor.Option{monitor.WithNotifier(notifier(cfg, stdout, logger))}

	evlog, err := eventlog.Create(eventlog.Options{
		Dir:        cfg.Log.Dir,
		StartedAt:  startedAt,
		PID:        os.Getpid(),
		Attempts:   cfg.Log.Attempts,
		RetryDelay: cfg.Log.RetryDelay,
	}, logger)
	if err != nil {
		// The monitor keeps running without a log; the board shows the banner.
		logger.Error("status log unavailable", zap.Error(err))
		publish(ctx, a.bus, event.TopicLogFailure, event.LogFailureEvent{Fatal: true, Err: err.Error()})
	} else {
		publish(ctx, a.bus, event.TopicLogFile, event.LogFileEvent{Path: evlog.Path(), Fallback: evlog.Fallback()})
		opts = append(opts, monitor.WithEventLogger(evlog))
	}

	a.monitor = monitor.New(monitor.Config{
		Targets:     targets,
		Interval:    cfg.Monitor.Interval,
		Timeout:     cfg.Monitor.Timeout,
		Concurrency: cfg.Monitor.Concurrency,
	}, prober, a.bus, logger, opts...)

	srvOpts := []server.Option{server.WithStates(a.monitor.Tracker())}
	if cfg.Store.Path != "" {
		db, err := store.New(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.closers = append(a.closers, func() { db.Close() })

		events, err := store.NewEventStore(ctx, db, logger)
		if err != nil {
			return nil, fmt.Errorf("init event store: %w", err)
		}
		a.closers = append(a.closers, a.bus.Subscribe(event.TopicTransition, events.HandleTransition))
		srvOpts = append(srvOpts, server.WithEvents(events))
		logger.Info("event mirror enabled", zap.String("path", cfg.Store.Path), zap.String("run_id", events.RunID()))
	}

	if cfg.Server.Addr != "" {
		srvOpts = append(srvOpts, server.WithMetrics(collector.Registry()))
		srv := server.New(cfg.Server.Addr, a.board, a.bus, logger, srvOpts...)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("server error", zap.Error(err))
			}
		}()
		a.closers = append(a.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
		})
		logger.Info("HTTP API ready", zap.String("addr", cfg.Server.Addr))
	}

	return a, nil
}

func notifier(cfg *config.Config, w io.Writer, logger *zap.Logger) notify.Notifier {
	if !cfg.Alert.Beep {
		return notify.Nop{}
	}
	return notify.NewBell(w, logger)
}

func publish(ctx context.Context, bus *event.Bus, topic string, payload any) {
	_ = bus.Publish(ctx, event.Event{
		Topic:     topic,
		Source:    monitor.Source,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func runReport(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "table", "output format: table or csv")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: amrwatch report [--format table|csv] status_log.csv...")
		return 2
	}

	recs, err := report.Load(fs.Args(), time.Local)
	if err != nil {
		fmt.Fprintln(stderr, "report:", err)
		return 1
	}
	if err := report.Write(stdout, *format, recs); err != nil {
		fmt.Fprintln(stderr, "report:", err)
		return 1
	}
	return 0
}
