package probe

import (
	"math"
	"regexp"
	"strconv"
)

// latencyPattern matches the round-trip token printed by the ping tools on
// Windows ("time=7ms", "time<1ms") and on Linux/macOS ("time=6.24 ms").
var latencyPattern = regexp.MustCompile(`time[=<>](\d+(?:\.\d+)?)\s?ms`)

// ExtractLatency parses the round-trip latency in whole milliseconds out of
// ping output. Fractional values are rounded to the nearest integer. It
// returns (-1, false) when no latency token is present.
func ExtractLatency(output string) (int, bool) {
	m := latencyPattern.FindStringSubmatch(output)
	if m == nil {
		return NoLatency, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return NoLatency, false
	}
	return int(math.Round(v)), true
}
