package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/amrwatch/internal/event"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// componentEvents names the event schema in the _migrations table.
const componentEvents = "events"

func eventMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "create status_events table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE status_events (
						id         INTEGER PRIMARY KEY AUTOINCREMENT,
						run_id     TEXT     NOT NULL,
						robot      TEXT     NOT NULL,
						ip         TEXT     NOT NULL,
						event      TEXT     NOT NULL,
						at         DATETIME NOT NULL,
						latency_ms INTEGER  NOT NULL,
						initial    INTEGER  NOT NULL DEFAULT 0
					)
				`)
				if err != nil {
					return err
				}
				_, err = tx.Exec(`CREATE INDEX idx_status_events_robot_at ON status_events(robot, at)`)
				return err
			},
		},
	}
}

// StoredEvent is a transition as persisted in the mirror.
type StoredEvent struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Robot     string    `json:"name"`
	IP        string    `json:"ip"`
	Event     string    `json:"event"`
	At        time.Time `json:"at"`
	LatencyMs int       `json:"latency_ms"`
	Initial   bool      `json:"initial"`
}

// EventStore records transitions of one monitor run.
type EventStore struct {
	db     *SQLiteStore
	runID  string
	logger *zap.Logger
}

// NewEventStore applies the event schema and returns a store tagging every
// row with a fresh run ID.
func NewEventStore(ctx context.Context, db *SQLiteStore, logger *zap.Logger) (*EventStore, error) {
	if err := db.Migrate(ctx, componentEvents, eventMigrations()); err != nil {
		return nil, err
	}
	return &EventStore{db: db, runID: uuid.NewString(), logger: logger}, nil
}

// RunID identifies the rows written by this process.
func (s *EventStore) RunID() string {
	return s.runID
}

// InsertEvent stores one transition.
func (s *EventStore) InsertEvent(ctx context.Context, tr event.Transition) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO status_events (run_id, robot, ip, event, at, latency_ms, initial)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.runID, tr.Name, tr.Address, tr.To, tr.At.UTC(), tr.LatencyMs, tr.Initial,
	)
	if err != nil {
		return fmt.Errorf("insert status event: %w", err)
	}
	return nil
}

// ListEvents returns the stored transitions of robot (all robots when robot
// is empty), oldest first.
func (s *EventStore) ListEvents(ctx context.Context, robot string) ([]StoredEvent, error) {
	query := `SELECT id, run_id, robot, ip, event, at, latency_ms, initial FROM status_events`
	var args []any
	if robot != "" {
		query += ` WHERE robot = ?`
		args = append(args, robot)
	}
	query += ` ORDER BY at, id`

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Robot, &e.IP, &e.Event, &e.At, &e.LatencyMs, &e.Initial); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HandleTransition is an event.Handler that mirrors transitions. Failures
// are logged; the CSV log stays authoritative.
func (s *EventStore) HandleTransition(ctx context.Context, e event.Event) {
	tr, ok := e.Payload.(event.Transition)
	if !ok {
		s.logger.Warn("unexpected payload type for transition event")
		return
	}
	if err := s.InsertEvent(ctx, tr); err != nil {
		s.logger.Warn("failed to mirror status event",
			zap.String("robot", tr.Name),
			zap.Error(err),
		)
	}
}
