package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

func parseSRT(r io.Reader) ([]Entry, error) {
	var (
		entries   []Entry
		current   *Entry
		timed     bool
		textLines []string
		lineNum   int
	)

	flush := func() {
		if current != nil && timed && len(textLines) > 0 {
			current.Text = strings.Join(textLines, "\n")
			entries = append(entries, *current)
		}
		current = nil
		timed = false
		textLines = nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		lineNum++
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}

		if current == nil {
			current = &Entry{Index: len(entries) + 1}
			if _, err := strconv.Atoi(trimmed); err == nil {
				continue
			}
		}

		if !timed {
			if !strings.Contains(trimmed, "-->") {
				return nil, fmt.Errorf("line %d: expected timestamp line, got %q", lineNum, trimmed)
			}
			start, end, err := parseArrow(trimmed, ",")
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			current.StartTime = start
			current.EndTime = end
			timed = true
			continue
		}

		textLines = append(textLines, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading SRT file: %w", err)
	}

	return entries, nil
}

// parses "start --> end" with optional trailing cue settings
func parseArrow(line, sep string) (startTime, endTime time.Duration, err error) {
	left, right, ok := strings.Cut(line, "-->")
	if !ok {
		return 0, 0, fmt.Errorf("missing --> in %q", line)
	}

	fields := strings.Fields(right)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("missing end timestamp in %q", line)
	}

	if startTime, err = parseClock(left, sep); err != nil {
		return 0, 0, fmt.Errorf("invalid start timestamp: %w", err)
	}
	if endTime, err = parseClock(fields[0], sep); err != nil {
		return 0, 0, fmt.Errorf("invalid end timestamp: %w", err)
	}
	return startTime, endTime, nil
}
