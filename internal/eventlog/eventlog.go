// Package eventlog appends robot state transitions to a CSV status log.
package eventlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnavailable is returned when neither the primary nor the fallback
	// log file could be created.
	ErrUnavailable = errors.New("status log unavailable")

	// ErrWriteFailed is returned when a record could not be appended.
	ErrWriteFailed = errors.New("status log write failed")
)

// Defaults applied when Options leaves a field unset.
const (
	DefaultAttempts   = 3
	DefaultRetryDelay = time.Second
)

// OpenFunc opens a file for writing. It mirrors os.OpenFile.
type OpenFunc func(name string, flag int, perm os.FileMode) (io.WriteCloser, error)

func openFile(name string, flag int, perm os.FileMode) (io.WriteCloser, error) {
	return os.OpenFile(name, flag, perm)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options configures a Logger.
type Options struct {
	// Dir is the directory the log file is created in.
	Dir string
	// StartedAt is encoded in the file name.
	StartedAt time.Time
	// PID distinguishes the fallback file name.
	PID int
	// Attempts bounds the writes tried per record.
	Attempts int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration

	open  OpenFunc
	sleep SleepFunc
}

// Option customizes Options.
type Option func(*Options)

// WithOpenFunc replaces the file opener.
func WithOpenFunc(open OpenFunc) Option {
	return func(o *Options) { o.open = open }
}

// WithSleepFunc replaces the wait between attempts.
func WithSleepFunc(s SleepFunc) Option {
	return func(o *Options) { o.sleep = s }
}

// FileName returns the primary log file name for a run started at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("status_log_%s.csv", t.Format("20060102_150405"))
}

// FallbackFileName returns the alternate log file name used when the
// primary name cannot be created.
func FallbackFileName(t time.Time, pid int) string {
	return fmt.Sprintf("status_log_%s_%d.csv", t.Format("20060102_150405"), pid)
}

// Logger appends records to a CSV status log. It is safe for concurrent use;
// writes are serialized.
type Logger struct {
	mu       sync.Mutex
	path     string
	fallback bool
	attempts int
	delay    time.Duration
	open     OpenFunc
	sleep    SleepFunc
	logger   *zap.Logger
}

// Create creates the status log and writes its header. When the primary
// file cannot be created it tries the fallback name once; if that fails too
// the returned error wraps ErrUnavailable.
func Create(opts Options, logger *zap.Logger, options ...Option) (*Logger, error) {
	for _, apply := range options {
		apply(&opts)
	}
	if opts.Attempts < 1 {
		opts.Attempts = DefaultAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.open == nil {
		opts.open = openFile
	}
	if opts.sleep == nil {
		opts.sleep = sleep
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	if opts.PID == 0 {
		opts.PID = os.Getpid()
	}

	l := &Logger{
		attempts: opts.Attempts,
		delay:    opts.RetryDelay,
		open:     opts.open,
		sleep:    opts.sleep,
		logger:   logger,
	}

	primary := filepath.Join(opts.Dir, FileName(opts.StartedAt))
	err := l.writeHeader(primary)
	if err == nil {
		l.path = primary
		logger.Info("created status log", zap.String("path", primary))
		return l, nil
	}
	logger.Error("cannot create status log, using fallback name",
		zap.String("path", primary),
		zap.Error(err),
	)

	fallback := filepath.Join(opts.Dir, FallbackFileName(opts.StartedAt, opts.PID))
	if ferr := l.writeHeader(fallback); ferr != nil {
		logger.Error("cannot create fallback status log",
			zap.String("path", fallback),
			zap.Error(ferr),
		)
		return nil, fmt.Errorf("%w: %s: %v; %s: %v", ErrUnavailable, primary, err, fallback, ferr)
	}
	l.path = fallback
	l.fallback = true
	logger.Info("created fallback status log", zap.String("path", fallback))
	return l, nil
}

// Path returns the file the log is written to.
func (l *Logger) Path() string {
	return l.path
}

// Fallback reports whether the fallback file name is in use.
func (l *Logger) Fallback() bool {
	return l.fallback
}

// Append writes one record. Transient failures (the file being locked or
// busy) are retried up to the configured number of attempts with a fixed
// delay between them; any other failure is returned at once. The returned
// error wraps ErrWriteFailed.
func (l *Logger) Append(ctx context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	for attempt := 1; attempt <= l.attempts; attempt++ {
		err = l.writeRow(os.O_APPEND|os.O_CREATE|os.O_WRONLY, l.path, rec.row())
		if err == nil {
			l.logger.Info("status event logged",
				zap.String("robot", rec.Name),
				zap.String("ip", rec.Address),
				zap.String("event", rec.Event),
				zap.Int("latency_ms", rec.LatencyMs),
			)
			return nil
		}

		if !isTransient(err) {
			l.logger.Error("unexpected error logging status event",
				zap.String("robot", rec.Name),
				zap.Error(err),
			)
			return fmt.Errorf("%w: %s: %v", ErrWriteFailed, rec.Name, err)
		}

		if attempt == l.attempts {
			break
		}
		l.logger.Warn("status log busy, retrying",
			zap.String("robot", rec.Name),
			zap.Int("attempt", attempt),
			zap.Int("attempts", l.attempts),
			zap.Error(err),
		)
		if serr := l.sleep(ctx, l.delay); serr != nil {
			return fmt.Errorf("%w: %s: %v", ErrWriteFailed, rec.Name, serr)
		}
	}

	l.logger.Error("failed to log status event",
		zap.String("robot", rec.Name),
		zap.Int("attempts", l.attempts),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrWriteFailed, rec.Name, l.attempts, err)
}

func (l *Logger) writeHeader(path string) error {
	return l.writeRow(os.O_CREATE|os.O_TRUNC|os.O_WRONLY, path, Header())
}

func (l *Logger) writeRow(flag int, path string, row []string) (err error) {
	f, err := l.open(path, flag, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// isTransient reports whether err indicates contention for the file rather
// than a permanent failure.
func isTransient(err error) bool {
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	for _, target := range lockErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
