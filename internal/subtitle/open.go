package subtitle

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Open parses a subtitle file, picking the parser from its extension.
func Open(path string) (*Subtitle, error) {
	format, ok := FormatFromExtension(path)
	if !ok {
		return nil, fmt.Errorf("unsupported subtitle format: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()

	return Parse(file, format)
}

// Parse reads a subtitle track of the given format.
func Parse(r io.Reader, format Format) (*Subtitle, error) {
	var (
		entries []Entry
		err     error
	)

	switch format {
	case FormatSRT:
		entries, err = parseSRT(r)
	case FormatVTT:
		entries, err = parseVTT(r)
	case FormatASS:
		entries, err = parseASS(r)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	return &Subtitle{
		Entries: entries,
		Format:  string(format),
	}, nil
}

// parses "[HH:]MM:SS<sep>fff" where fff is a fraction of a second of any
// width (3 digits for SRT/VTT, 2 for ASS)
func parseClock(s string, sep string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	whole, frac, ok := strings.Cut(s, sep)
	if !ok {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	parts := strings.Split(whole, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}

	var units [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		units[i] = v
	}

	fraction, err := strconv.Atoi(frac)
	if err != nil || fraction < 0 || len(frac) == 0 || len(frac) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	for i := len(frac); i < 3; i++ {
		fraction *= 10
	}

	return time.Duration(units[0])*time.Hour +
		time.Duration(units[1])*time.Minute +
		time.Duration(units[2])*time.Second +
		time.Duration(fraction)*time.Millisecond, nil
}
