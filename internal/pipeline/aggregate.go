package pipeline

import (
	"fmt"
	"io"
	"math"

	"github.com/mgpai22/whispers/internal/cue"
	"github.com/mgpai22/whispers/internal/engine"
	"github.com/mgpai22/whispers/internal/timestamp"
	"github.com/mgpai22/whispers/internal/transcript"
)

// aggregate drains stream into the result for c, keeping segment text
// verbatim and in emission order, and echoes each segment to progress.
// The stream is always closed.
func aggregate(c cue.TimeCue, stream engine.SegmentStream, progress io.Writer) (transcript.LineResult, error) {
	defer stream.Close()

	line := transcript.NewLineResult(c)
	for stream.Next() {
		seg := stream.Segment()
		fmt.Fprintf(progress, "[%s -> %s] %s\n", clock(seg.Start), clock(seg.End), seg.Text)
		line.Segments = append(line.Segments, seg.Text)
	}
	if err := stream.Err(); err != nil {
		return transcript.LineResult{}, err
	}
	return line, nil
}

// progress display only; a misbehaving engine must not panic the formatter
func clock(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	return timestamp.Format(seconds)
}
