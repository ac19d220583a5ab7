// Package notify plays local alerts when a robot changes state.
package notify

import (
	"io"

	"go.uber.org/zap"
)

// Notifier raises a best-effort alert. Implementations must not panic or
// block for long, and swallow their own failures.
type Notifier interface {
	Notify()
}

// Compile-time interface guards.
var (
	_ Notifier = (*Bell)(nil)
	_ Notifier = Nop{}
	_ Notifier = Func(nil)
)

// Bell rings the terminal bell by writing BEL to a writer.
type Bell struct {
	w      io.Writer
	logger *zap.Logger
}

// NewBell returns a Bell writing to w (usually os.Stdout).
func NewBell(w io.Writer, logger *zap.Logger) *Bell {
	return &Bell{w: w, logger: logger}
}

// Notify writes the bell character. Errors and panics are swallowed.
func (b *Bell) Notify() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Debug("bell panicked", zap.Any("panic", r))
		}
	}()
	if _, err := io.WriteString(b.w, "\a"); err != nil {
		b.logger.Debug("bell failed", zap.Error(err))
	}
}

// Nop discards alerts.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify() {}

// Func adapts a plain function to Notifier.
type Func func()

// Notify calls f, ignoring a nil f.
func (f Func) Notify() {
	if f != nil {
		f()
	}
}
