package cue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mgpai22/whispers/internal/subtitle"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrMalformedInput = errors.New("malformed input")
)

// one labeled time range to transcribe independently
type TimeCue struct {
	LineNumber  int   `json:"line_number"`
	StartTimeMS int64 `json:"start_time_ms"`
	EndTimeMS   int64 `json:"end_time_ms"`
}

// clip bounds in seconds, the unit the recognition engines expect
type ClipRange struct {
	Start float64
	End   float64
}

// Clip converts the millisecond bounds to seconds without rounding or clamping.
func (c TimeCue) Clip() ClipRange {
	return ClipRange{
		Start: float64(c.StartTimeMS) / 1000,
		End:   float64(c.EndTimeMS) / 1000,
	}
}

// on-disk shape; pointers detect missing fields, and the legacy start_time /
// end_time keys are still accepted
type rawCue struct {
	LineNumber  *int   `json:"line_number"`
	StartTimeMS *int64 `json:"start_time_ms"`
	EndTimeMS   *int64 `json:"end_time_ms"`
	StartTime   *int64 `json:"start_time"`
	EndTime     *int64 `json:"end_time"`
}

// Load reads the timing file in file order. Subtitle files (.srt, .vtt,
// .ass, .ssa) are accepted directly; anything else is decoded as a JSON
// array of cues.
func Load(path string) ([]TimeCue, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("timing file %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat timing file: %w", err)
	}

	if _, ok := subtitle.FormatFromExtension(path); ok {
		return LoadSubtitle(path)
	}
	return LoadJSON(path)
}

func LoadJSON(path string) ([]TimeCue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("timing file %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read timing file: %w", err)
	}

	return DecodeJSON(data)
}

// DecodeJSON parses a JSON array of cue objects.
func DecodeJSON(data []byte) ([]TimeCue, error) {
	var raw []rawCue
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: expected a JSON array of cues", ErrMalformedInput)
	}

	cues := make([]TimeCue, 0, len(raw))
	for i, r := range raw {
		start := firstSet(r.StartTimeMS, r.StartTime)
		end := firstSet(r.EndTimeMS, r.EndTime)

		switch {
		case r.LineNumber == nil:
			return nil, fmt.Errorf("%w: cue %d: missing line_number", ErrMalformedInput, i)
		case start == nil:
			return nil, fmt.Errorf("%w: cue %d: missing start_time_ms", ErrMalformedInput, i)
		case end == nil:
			return nil, fmt.Errorf("%w: cue %d: missing end_time_ms", ErrMalformedInput, i)
		}

		cues = append(cues, TimeCue{
			LineNumber:  *r.LineNumber,
			StartTimeMS: *start,
			EndTimeMS:   *end,
		})
	}

	return cues, nil
}

// LoadSubtitle derives one cue per subtitle entry, numbered from 1.
func LoadSubtitle(path string) ([]TimeCue, error) {
	sub, err := subtitle.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("timing file %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	return FromSubtitle(sub), nil
}

func FromSubtitle(sub *subtitle.Subtitle) []TimeCue {
	cues := make([]TimeCue, len(sub.Entries))
	for i, e := range sub.Entries {
		cues[i] = TimeCue{
			LineNumber:  e.Index,
			StartTimeMS: e.StartTime.Milliseconds(),
			EndTimeMS:   e.EndTime.Milliseconds(),
		}
	}
	return cues
}

// Save writes cues as an indented JSON array, the format Load reads back.
func Save(path string, cues []TimeCue) error {
	if cues == nil {
		cues = []TimeCue{}
	}
	data, err := json.MarshalIndent(cues, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Duration of the clip.
func (c TimeCue) Duration() time.Duration {
	return time.Duration(c.EndTimeMS-c.StartTimeMS) * time.Millisecond
}

func firstSet(values ...*int64) *int64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
