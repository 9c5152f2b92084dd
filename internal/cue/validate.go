package cue

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Validate reports every ordering and bounds problem in one error: negative
// bounds, reversed ranges, cues out of chronological order, overlapping cues
// and, when audioDuration is positive, cues ending past the audio. Load never
// calls it; the caller opts in.
func Validate(cues []TimeCue, audioDuration time.Duration) error {
	var result *multierror.Error

	limitMS := audioDuration.Milliseconds()
	for i, c := range cues {
		if c.StartTimeMS < 0 || c.EndTimeMS < 0 {
			result = multierror.Append(result, fmt.Errorf("line %d: negative bounds %d-%d", c.LineNumber, c.StartTimeMS, c.EndTimeMS))
		}
		if c.Duration() < 0 {
			result = multierror.Append(result, fmt.Errorf("line %d: ends at %dms before it starts at %dms", c.LineNumber, c.EndTimeMS, c.StartTimeMS))
		}
		if limitMS > 0 && c.EndTimeMS > limitMS {
			result = multierror.Append(result, fmt.Errorf("line %d: ends at %dms past audio end %dms", c.LineNumber, c.EndTimeMS, limitMS))
		}

		if i == 0 {
			continue
		}
		prev := cues[i-1]
		if c.StartTimeMS < prev.StartTimeMS {
			result = multierror.Append(result, fmt.Errorf("line %d: starts before preceding line %d", c.LineNumber, prev.LineNumber))
		} else if c.StartTimeMS < prev.EndTimeMS {
			result = multierror.Append(result, fmt.Errorf("line %d: overlaps preceding line %d", c.LineNumber, prev.LineNumber))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return nil
}
