// Package report computes robot downtime from status logs.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/HerbHall/amrwatch/internal/eventlog"
)

// Downtime is one interval between an Offline event and the Online event
// that follows it.
type Downtime struct {
	Robot    string
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// Summary aggregates one robot's downtime and latency.
type Summary struct {
	Robot         string
	Downtimes     int
	TotalDowntime time.Duration
	Longest       time.Duration
	// Latency statistics over Online events with a measured latency.
	LatencySamples int
	MinLatencyMs   int
	MaxLatencyMs   int
	AvgLatencyMs   float64
}

// Load reads and merges the records of one or more log files.
func Load(paths []string, loc *time.Location) ([]eventlog.Record, error) {
	var all []eventlog.Record
	for _, p := range paths {
		recs, err := loadFile(p, loc)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}

func loadFile(path string, loc *time.Location) ([]eventlog.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	recs, err := eventlog.ReadRecords(f, loc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return recs, nil
}

// sortRecords orders records by robot, then timestamp. Records with equal
// keys keep their file order.
func sortRecords(recs []eventlog.Record) []eventlog.Record {
	out := make([]eventlog.Record, len(recs))
	copy(out, recs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Downtimes pairs every Offline record with an immediately following Online
// record of the same robot. An Offline record with no Online after it (the
// robot was still down when the log ended) yields no interval.
func Downtimes(recs []eventlog.Record) []Downtime {
	sorted := sortRecords(recs)

	var out []Downtime
	for i := 0; i+1 < len(sorted); i++ {
		cur, next := sorted[i], sorted[i+1]
		if cur.Name != next.Name {
			continue
		}
		if cur.Event == eventlog.EventOffline && next.Event == eventlog.EventOnline {
			out = append(out, Downtime{
				Robot:    cur.Name,
				Start:    cur.Timestamp,
				End:      next.Timestamp,
				Duration: next.Timestamp.Sub(cur.Timestamp),
			})
		}
	}
	return out
}

// Summarize aggregates downtime intervals and online latency per robot.
// Every robot present in recs gets a summary, sorted by name.
func Summarize(recs []eventlog.Record) []Summary {
	byRobot := make(map[string]*Summary)
	get := func(name string) *Summary {
		s, ok := byRobot[name]
		if !ok {
			s = &Summary{Robot: name}
			byRobot[name] = s
		}
		return s
	}

	latencySum := make(map[string]int)
	for _, r := range recs {
		s := get(r.Name)
		if r.Event != eventlog.EventOnline || r.LatencyMs < 0 {
			continue
		}
		if s.LatencySamples == 0 || r.LatencyMs < s.MinLatencyMs {
			s.MinLatencyMs = r.LatencyMs
		}
		if r.LatencyMs > s.MaxLatencyMs {
			s.MaxLatencyMs = r.LatencyMs
		}
		s.LatencySamples++
		latencySum[r.Name] += r.LatencyMs
	}

	for _, d := range Downtimes(recs) {
		s := get(d.Robot)
		s.Downtimes++
		s.TotalDowntime += d.Duration
		if d.Duration > s.Longest {
			s.Longest = d.Duration
		}
	}

	out := make([]Summary, 0, len(byRobot))
	for name, s := range byRobot {
		if s.LatencySamples > 0 {
			s.AvgLatencyMs = float64(latencySum[name]) / float64(s.LatencySamples)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Robot < out[j].Robot })
	return out
}

// Write renders the report in the given format ("table" or "csv").
func Write(w io.Writer, format string, recs []eventlog.Record) error {
	switch format {
	case "table", "":
		return writeTable(w, Summarize(recs), Downtimes(recs))
	case "csv":
		return writeCSV(w, Downtimes(recs))
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
