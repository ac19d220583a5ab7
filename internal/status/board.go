// Package status keeps the latest per-robot status for presentation layers.
package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/amrwatch/internal/event"
	"github.com/HerbHall/amrwatch/internal/tracker"
)

// Initializing is shown for robots that have not been probed yet.
const Initializing = "Initializing..."

// Row is one line of the status table.
type Row struct {
	Name      string    `json:"name"`
	Address   string    `json:"ip"`
	Status    string    `json:"status"`
	LatencyMs int       `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
}

// Latency formats the latency column, "N/A" when absent.
func (r Row) Latency() string {
	if r.LatencyMs < 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d", r.LatencyMs)
}

// Snapshot is a consistent view of the board.
type Snapshot struct {
	StartedAt time.Time `json:"started_at"`
	LogFile   string    `json:"log_file"`
	Message   string    `json:"message"`
	Rows      []Row     `json:"robots"`
}

// Board is fed from the event bus and read by renderers. It is safe for
// concurrent use.
type Board struct {
	mu        sync.RWMutex
	order     []string
	rows      map[string]*Row
	startedAt time.Time
	logFile   string
	message   string
}

// NewBoard returns a board listing targets in configuration order.
func NewBoard(targets []tracker.Target, startedAt time.Time) *Board {
	b := &Board{
		rows:      make(map[string]*Row, len(targets)),
		startedAt: startedAt,
		message:   "Monitoring started at " + startedAt.Format("2006-01-02 15:04:05"),
	}
	for _, t := range targets {
		b.order = append(b.order, t.Name)
		b.rows[t.Name] = &Row{Name: t.Name, Address: t.Address, Status: Initializing, LatencyMs: -1}
	}
	return b
}

// Attach subscribes the board to the bus topics it renders. The returned
// function unsubscribes.
func (b *Board) Attach(bus *event.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(event.TopicStatus, b.Handle),
		bus.Subscribe(event.TopicLogFile, b.Handle),
		bus.Subscribe(event.TopicLogFailure, b.Handle),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handle applies one event to the board.
func (b *Board) Handle(_ context.Context, e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch p := e.Payload.(type) {
	case event.StatusUpdate:
		row, ok := b.rows[p.Name]
		if !ok {
			row = &Row{Name: p.Name}
			b.rows[p.Name] = row
			b.order = append(b.order, p.Name)
		}
		row.Address = p.Address
		row.Status = p.Status
		row.LatencyMs = p.LatencyMs
		row.CheckedAt = p.CheckedAt
	case event.LogFileEvent:
		b.logFile = p.Path
	case event.LogFailureEvent:
		if p.Fatal {
			b.message = "FATAL ERROR: Cannot create log file - " + p.Err
		} else {
			b.message = fmt.Sprintf("ERROR: Failed to log event for %s - %s", p.Name, p.Err)
		}
	}
}

// Snapshot returns a copy of the board.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows := make([]Row, 0, len(b.order))
	for _, name := range b.order {
		rows = append(rows, *b.rows[name])
	}
	return Snapshot{
		StartedAt: b.startedAt,
		LogFile:   b.logFile,
		Message:   b.message,
		Rows:      rows,
	}
}
