package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mgpai22/whispers/internal/audio"
	"github.com/mgpai22/whispers/internal/cue"
)

// ClipExtractor cuts [start, end) seconds of audio into outputPath.
type ClipExtractor func(ctx context.Context, inputPath, outputPath string, start, end float64) error

// FFmpegExtractor cuts clips to 16 kHz mono WAV with ffmpeg.
func FFmpegExtractor(ctx context.Context, inputPath, outputPath string, start, end float64) error {
	return audio.ExtractClip(ctx, inputPath, outputPath, start, end, audio.DefaultClipOptions())
}

// CutClip writes the clip to a temporary WAV file for backends that need
// the audio uploaded. The returned cleanup removes it.
func CutClip(
	ctx context.Context,
	extract ClipExtractor,
	audioPath string,
	clip cue.ClipRange,
) (string, func(), error) {
	dir, err := os.MkdirTemp("", "whispers-clip-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, "clip.wav")
	if err := extract(ctx, audioPath, path, clip.Start, clip.End); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// Shift moves clip-relative segment times onto the file timeline.
func Shift(segments []Segment, offset float64) []Segment {
	shifted := make([]Segment, len(segments))
	for i, s := range segments {
		shifted[i] = Segment{Text: s.Text, Start: s.Start + offset, End: s.End + offset}
	}
	return shifted
}
