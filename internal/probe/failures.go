package probe

import (
	"sync"

	"go.uber.org/zap"
)

// failureLog reports probe errors per address. An error is logged at warn
// level when it first appears for an address and at debug level while it
// repeats, so a dead robot does not flood the log every poll.
type failureLog struct {
	logger *zap.Logger
	mu     sync.Mutex
	last   map[string]string
}

func newFailureLog(logger *zap.Logger) *failureLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &failureLog{logger: logger, last: make(map[string]string)}
}

func (f *failureLog) failed(method, address string, err error) {
	msg := err.Error()

	f.mu.Lock()
	prev, seen := f.last[address]
	f.last[address] = msg
	f.mu.Unlock()

	fields := []zap.Field{
		zap.String("method", method),
		zap.String("address", address),
		zap.Error(err),
	}
	if seen && prev == msg {
		f.logger.Debug("probe error repeated", fields...)
		return
	}
	f.logger.Warn("probe error", fields...)
}

func (f *failureLog) succeeded(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.last, address)
}
