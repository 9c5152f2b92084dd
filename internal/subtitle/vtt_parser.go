package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

func parseVTT(r io.Reader) ([]Entry, error) {
	var (
		entries   []Entry
		current   *Entry
		textLines []string
		lineNum   int
		skipBlock bool
	)

	flush := func() {
		if current != nil && len(textLines) > 0 {
			current.Text = strings.Join(textLines, "\n")
			entries = append(entries, *current)
		}
		current = nil
		textLines = nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		lineNum++
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
			if !strings.HasPrefix(strings.TrimSpace(line), "WEBVTT") {
				return nil, fmt.Errorf("missing WEBVTT header")
			}
			skipBlock = true
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			skipBlock = false
			continue
		}
		if skipBlock {
			continue
		}

		if current == nil &&
			(strings.HasPrefix(trimmed, "NOTE") ||
				strings.HasPrefix(trimmed, "STYLE") ||
				strings.HasPrefix(trimmed, "REGION")) {
			skipBlock = true
			continue
		}

		if strings.Contains(trimmed, "-->") && (current == nil || len(textLines) == 0) {
			start, end, err := parseArrow(trimmed, ".")
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			current = &Entry{
				Index:     len(entries) + 1,
				StartTime: start,
				EndTime:   end,
			}
			continue
		}

		// cue identifiers precede the timing line and are not text
		if current == nil {
			continue
		}

		textLines = append(textLines, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading VTT file: %w", err)
	}

	return entries, nil
}
