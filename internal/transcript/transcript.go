package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mgpai22/whispers/internal/cue"
	"github.com/mgpai22/whispers/internal/subtitle"
)

var ErrWrite = errors.New("write failed")

// one transcribed cue; field order is the on-disk order
type LineResult struct {
	LineNumber  int      `json:"line_number"`
	StartTimeMS int64    `json:"start_time_ms"`
	EndTimeMS   int64    `json:"end_time_ms"`
	Segments    []string `json:"segments"`
}

// NewLineResult starts an empty result for c; Segments is never nil.
func NewLineResult(c cue.TimeCue) LineResult {
	return LineResult{
		LineNumber:  c.LineNumber,
		StartTimeMS: c.StartTimeMS,
		EndTimeMS:   c.EndTimeMS,
		Segments:    []string{},
	}
}

// Text joins the segments into one display line.
func (l LineResult) Text() string {
	parts := make([]string, 0, len(l.Segments))
	for _, s := range l.Segments {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Write stores lines at path. An empty path discards the transcript. Paths
// ending in a subtitle extension are rendered as subtitles, one entry per
// line; anything else gets the JSON array form, indented with four spaces.
// The JSON form is written to a temporary file and renamed into place.
func Write(path string, lines []LineResult) error {
	if path == "" {
		return nil
	}

	if format, ok := subtitle.FormatFromExtension(path); ok {
		if err := writeSubtitle(path, format, lines); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
		}
		return nil
	}

	data, err := Encode(lines)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	return nil
}

// Encode renders lines as the JSON transcript document.
func Encode(lines []LineResult) ([]byte, error) {
	out := make([]LineResult, len(lines))
	for i, l := range lines {
		if l.Segments == nil {
			l.Segments = []string{}
		}
		out[i] = l
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Read loads a JSON transcript written by Write.
func Read(path string) ([]LineResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("transcript %s: %w", path, cue.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var lines []LineResult
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", cue.ErrMalformedInput, err)
	}
	if lines == nil {
		return nil, fmt.Errorf("%w: expected a JSON array of lines", cue.ErrMalformedInput)
	}
	return lines, nil
}

// Preflight checks that path can be written before any recognition time is
// spent on a run whose output would then be lost. It creates missing parent
// directories.
func Preflight(path string) error {
	if path == "" {
		return nil
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrWrite, path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	probe, err := os.CreateTemp(dir, ".whispers-preflight-*")
	if err != nil {
		return fmt.Errorf("%w: %s is not writable: %v", ErrWrite, dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func writeSubtitle(path string, format subtitle.Format, lines []LineResult) error {
	writer, err := subtitle.NewWriter(format)
	if err != nil {
		return err
	}
	return writer.Write(ToSubtitle(lines), path)
}

// ToSubtitle turns each line with text into one subtitle entry spanning the
// line's cue.
func ToSubtitle(lines []LineResult) *subtitle.Subtitle {
	sub := &subtitle.Subtitle{}
	for _, l := range lines {
		text := l.Text()
		if text == "" {
			continue
		}
		sub.Entries = append(sub.Entries, subtitle.Entry{
			Index:     len(sub.Entries) + 1,
			StartTime: time.Duration(l.StartTimeMS) * time.Millisecond,
			EndTime:   time.Duration(l.EndTimeMS) * time.Millisecond,
			Text:      text,
		})
	}
	return sub
}
