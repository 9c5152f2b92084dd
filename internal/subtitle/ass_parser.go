package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var assOverrideTags = regexp.MustCompile(`\{[^}]*\}`)

// reads the Dialogue lines of the [Events] section; override tags are
// stripped and \N line breaks become newlines
func parseASS(r io.Reader) ([]Entry, error) {
	var (
		entries  []Entry
		inEvents bool
		columns  []string
		lineNum  int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		lineNum++
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			inEvents = strings.EqualFold(trimmed, "[Events]")
			continue
		}
		if !inEvents {
			continue
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}

		switch strings.TrimSpace(key) {
		case "Format":
			columns = strings.Split(value, ",")
			for i := range columns {
				columns[i] = strings.ToLower(strings.TrimSpace(columns[i]))
			}
		case "Dialogue":
			if columns == nil {
				return nil, fmt.Errorf("line %d: Dialogue before Format line", lineNum)
			}
			entry, err := parseDialogue(value, columns)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			entry.Index = len(entries) + 1
			entries = append(entries, entry)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ASS file: %w", err)
	}

	return entries, nil
}

func parseDialogue(value string, columns []string) (Entry, error) {
	// the Text column is last and may itself contain commas
	fields := strings.SplitN(strings.TrimSpace(value), ",", len(columns))
	if len(fields) < len(columns) {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", len(columns), len(fields))
	}

	var entry Entry
	for i, col := range columns {
		var err error
		switch col {
		case "start":
			entry.StartTime, err = parseClock(fields[i], ".")
		case "end":
			entry.EndTime, err = parseClock(fields[i], ".")
		case "text":
			text := assOverrideTags.ReplaceAllString(fields[i], "")
			text = strings.ReplaceAll(text, `\N`, "\n")
			entry.Text = strings.ReplaceAll(text, `\n`, "\n")
		}
		if err != nil {
			return Entry{}, fmt.Errorf("%s: %w", col, err)
		}
	}

	return entry, nil
}
