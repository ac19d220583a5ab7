package event

import "time"

// Topics published by the monitor.
const (
	// TopicStatus carries a StatusUpdate for every probe, transition or not.
	TopicStatus = "monitor.status"
	// TopicTransition carries a Transition whenever a robot changes state.
	TopicTransition = "monitor.transition"
	// TopicLogFile carries a LogFileEvent when the status log is opened.
	TopicLogFile = "monitor.logfile"
	// TopicLogFailure carries a LogFailureEvent when logging fails.
	TopicLogFailure = "monitor.logfailure"
	// TopicCycle carries a CycleEvent after every poll cycle.
	TopicCycle = "monitor.cycle"
)

// StatusUpdate is the latest probe outcome for one robot.
type StatusUpdate struct {
	Name      string        `json:"name"`
	Address   string        `json:"ip"`
	Status    string        `json:"status"`
	LatencyMs int           `json:"latency_ms"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"-"`
}

// HasLatency reports whether a latency was measured.
func (s StatusUpdate) HasLatency() bool {
	return s.LatencyMs >= 0
}

// Transition is published when a robot's state changes.
type Transition struct {
	Name      string    `json:"name"`
	Address   string    `json:"ip"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	LatencyMs int       `json:"latency_ms"`
	At        time.Time `json:"at"`
	Initial   bool      `json:"initial"`
}

// LogFileEvent announces the file the status log is written to.
type LogFileEvent struct {
	Path     string `json:"path"`
	Fallback bool   `json:"fallback"`
}

// LogFailureEvent reports a status log failure. Fatal means the log is
// unavailable for the rest of the run.
type LogFailureEvent struct {
	Name  string `json:"name,omitempty"`
	Fatal bool   `json:"fatal"`
	Err   string `json:"error"`
}

// CycleEvent marks the end of one poll over every robot.
type CycleEvent struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Targets  int           `json:"targets"`
}
