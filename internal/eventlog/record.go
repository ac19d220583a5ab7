package eventlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// TimestampLayout is the layout of the Timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Event names written to the Event column.
const (
	EventOnline  = "Online"
	EventOffline = "Offline"
)

// Header returns the CSV column headers.
func Header() []string {
	return []string{"Robot_Name", "IP", "Event", "Timestamp", "Latency (ms)"}
}

// columnCount is the number of columns in the log format.
const columnCount = 5

// Record is one transition as persisted in the log.
type Record struct {
	Name      string
	Address   string
	Event     string
	Timestamp time.Time
	LatencyMs int
}

// row converts a record to a CSV row (matching Header order).
func (r Record) row() []string {
	return []string{
		r.Name,
		r.Address,
		r.Event,
		r.Timestamp.Format(TimestampLayout),
		strconv.Itoa(r.LatencyMs),
	}
}

// parseRow parses a CSV row into a Record. Timestamps are interpreted in loc.
func parseRow(row []string, loc *time.Location) (Record, error) {
	if len(row) < columnCount {
		return Record{}, fmt.Errorf("expected %d columns, got %d", columnCount, len(row))
	}
	r := row[:columnCount]

	ts, err := time.ParseInLocation(TimestampLayout, r[3], loc)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	latency, err := strconv.Atoi(r[4])
	if err != nil {
		return Record{}, fmt.Errorf("invalid latency: %w", err)
	}
	switch r[2] {
	case EventOnline, EventOffline:
	default:
		return Record{}, fmt.Errorf("invalid event %q", r[2])
	}

	return Record{
		Name:      r[0],
		Address:   r[1],
		Event:     r[2],
		Timestamp: ts,
		LatencyMs: latency,
	}, nil
}

// ReadRecords parses a status log. The header row is required; timestamps
// are interpreted in loc (time.Local when nil).
func ReadRecords(rd io.Reader, loc *time.Location) ([]Record, error) {
	if loc == nil {
		loc = time.Local
	}

	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty log: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < columnCount || header[0] != Header()[0] {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var out []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := parseRow(row, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
