// Package console renders the robot status table on a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/HerbHall/amrwatch/internal/event"
	"github.com/HerbHall/amrwatch/internal/status"
	"go.uber.org/zap"
)

// Renderer prints the board after every poll cycle.
type Renderer struct {
	mu     sync.Mutex
	board  *status.Board
	w      io.Writer
	logger *zap.Logger
}

// New returns a renderer writing to w.
func New(board *status.Board, w io.Writer, logger *zap.Logger) *Renderer {
	return &Renderer{board: board, w: w, logger: logger}
}

// Attach redraws the table at the end of every cycle.
func (r *Renderer) Attach(bus *event.Bus) func() {
	return bus.Subscribe(event.TopicCycle, func(context.Context, event.Event) {
		if err := r.Render(); err != nil {
			r.logger.Debug("render status table", zap.Error(err))
		}
	})
}

// Render writes the current table.
func (r *Renderer) Render() error {
	snap := r.board.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := fmt.Fprintln(r.w, snap.Message); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Robot\tIP\tStatus\tTime(ms)")
	for _, row := range snap.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Name, row.Address, row.Status, row.Latency())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(r.w, "Log file: %s\n\n", snap.LogFile)
	return err
}
