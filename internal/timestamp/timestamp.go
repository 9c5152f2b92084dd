package timestamp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// products landing this many ulps below a millisecond boundary are taken
// as the boundary itself (3725.678*1000 may come out as 3725677.99999...)
const boundaryULPs = 4

// renders seconds as HH:MM:SS.mmm, truncating to whole milliseconds.
// Hours are not wrapped, so 100h renders as "100:00:00.000".
func Format(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		panic(fmt.Sprintf("timestamp: cannot format %v seconds", seconds))
	}

	total := truncateMillis(seconds)

	hours := total / 3_600_000
	minutes := (total / 60_000) % 60
	secs := (total / 1000) % 60
	millis := total % 1000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}

// Parse is the inverse of Format.
func Parse(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q: expected HH:MM:SS.mmm", s)
	}

	secParts := strings.Split(parts[2], ".")
	if len(secParts) != 2 || len(secParts[1]) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q: expected HH:MM:SS.mmm", s)
	}

	fields := []string{parts[0], parts[1], secParts[0], secParts[1]}
	values := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q: bad field %q", s, f)
		}
		values[i] = v
	}

	if values[1] > 59 || values[2] > 59 {
		return 0, fmt.Errorf("invalid timestamp %q: minutes and seconds must be below 60", s)
	}

	total := values[0]*3_600_000 + values[1]*60_000 + values[2]*1000 + values[3]
	return float64(total) / 1000, nil
}

func truncateMillis(seconds float64) int64 {
	ms := seconds * 1000
	floor := math.Floor(ms)
	ulp := math.Nextafter(ms, math.Inf(1)) - ms
	if floor+1-ms <= boundaryULPs*ulp {
		floor++
	}
	return int64(floor)
}
