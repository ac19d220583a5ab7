package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/HerbHall/amrwatch/internal/eventlog"
)

// minutes formats a duration in minutes with one decimal.
func minutes(d float64) string {
	return strconv.FormatFloat(d, 'f', 1, 64)
}

func writeTable(w io.Writer, summaries []Summary, downtimes []Downtime) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Robot\tDowntimes\tTotal (min)\tLongest (min)\tLatency min/avg/max (ms)")
	for _, s := range summaries {
		latency := "N/A"
		if s.LatencySamples > 0 {
			latency = fmt.Sprintf("%d/%.1f/%d", s.MinLatencyMs, s.AvgLatencyMs, s.MaxLatencyMs)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			s.Robot, s.Downtimes,
			minutes(s.TotalDowntime.Minutes()), minutes(s.Longest.Minutes()),
			latency)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(downtimes) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Robot\tStart\tEnd\tDuration (min)")
	for _, d := range downtimes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			d.Robot,
			d.Start.Format(eventlog.TimestampLayout),
			d.End.Format(eventlog.TimestampLayout),
			minutes(d.Duration.Minutes()))
	}
	return tw.Flush()
}

func writeCSV(w io.Writer, downtimes []Downtime) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Robot_Name", "Start", "End", "Duration"}); err != nil {
		return err
	}
	for _, d := range downtimes {
		if err := cw.Write([]string{
			d.Robot,
			d.Start.Format(eventlog.TimestampLayout),
			d.End.Format(eventlog.TimestampLayout),
			strconv.FormatFloat(d.Duration.Minutes(), 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
