package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/mgpai22/whispers/internal/ffmpeg"
)

// settings for the clips sent to request/response recognition APIs
type ClipOptions struct {
	SampleRate int // Sample rate in Hz
	Channels   int // Number of channels (1=mono, 2=stereo)
}

// 16 kHz mono PCM, what Whisper-family models consume natively
func DefaultClipOptions() ClipOptions {
	return ClipOptions{
		SampleRate: 16000,
		Channels:   1,
	}
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// duration of an audio/video file
func GetDuration(ctx context.Context, filePath string) (time.Duration, error) {
	if _, err := os.Stat(filePath); err != nil {
		return 0, fmt.Errorf("audio file: %w", err)
	}

	ffprobePath, err := ffmpegbin.FFprobePath()
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		filePath,
	)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeDuration(out.Bytes())
}

func parseProbeDuration(data []byte) (time.Duration, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", probe.Format.Duration, err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// ExtractClip cuts [start, end) seconds out of inputPath into a WAV file.
func ExtractClip(
	ctx context.Context,
	inputPath, outputPath string,
	start, end float64,
	opts ClipOptions,
) error {
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	if end <= start {
		return fmt.Errorf("empty clip %.3f-%.3f", start, end)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ffmpegPath, err := ffmpegbin.FFmpegPath()
	if err != nil {
		return err
	}

	if err := clipCommand(ctx, ffmpegPath, inputPath, outputPath, start, end, opts).Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("clip extraction cancelled: %w", ctxErr)
		}
		return fmt.Errorf("clip extraction failed: %w", err)
	}

	return nil
}

// ffmpeg invocation bound to ctx, so cancelling kills a running cut
func clipCommand(
	ctx context.Context,
	ffmpegPath, inputPath, outputPath string,
	start, end float64,
	opts ClipOptions,
) *exec.Cmd {
	stream := ffmpeg.Input(inputPath, clipInputArgs(start, end)).
		Output(outputPath, clipOutputArgs(opts))
	stream.Context = ctx

	return stream.OverWriteOutput().
		SetFfmpegPath(ffmpegPath).
		Compile()
}

func clipInputArgs(start, end float64) ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"ss": strconv.FormatFloat(start, 'f', 3, 64),
		"t":  strconv.FormatFloat(end-start, 'f', 3, 64),
	}
}

func clipOutputArgs(opts ClipOptions) ffmpeg.KwArgs {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	return ffmpeg.KwArgs{
		"vn":     "",              // No video
		"ar":     opts.SampleRate, // Sample rate
		"ac":     opts.Channels,   // Channels
		"acodec": "pcm_s16le",
	}
}

// checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v", ".mpeg", ".mpg", ".3gp":
		return true
	}
	return false
}

// checks if the file is an audio file based on extension
func IsAudioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".wav", ".aac", ".flac", ".ogg", ".opus", ".m4a", ".wma", ".aiff":
		return true
	}
	return false
}

// checks if the file is either audio or video
func IsMediaFile(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}
