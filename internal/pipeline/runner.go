package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mgpai22/whispers/internal/cue"
	"github.com/mgpai22/whispers/internal/engine"
	"github.com/mgpai22/whispers/internal/logging"
	"github.com/mgpai22/whispers/internal/transcript"
)

// EngineLoader builds the recognition engine once per run.
type EngineLoader func(ctx context.Context) (engine.Engine, error)

// DurationProber reports the length of the audio, for strict validation.
type DurationProber func(ctx context.Context, path string) (time.Duration, error)

type Options struct {
	AudioPath      string
	TimestampsPath string
	// empty discards the transcript after the run
	OutputPath string

	// shown in the "Loading whisper" progress line
	ModelName  string
	LoadEngine EngineLoader
	Params     engine.Params

	// remove the timing file after a successful run
	RemoveTimestamps bool

	// reject unordered, overlapping or out-of-range cues before loading
	// the engine; ProbeDuration is optional
	Strict        bool
	ProbeDuration DurationProber

	// receives the human-readable progress lines; nil discards them
	Progress io.Writer
	Logger   *logging.Logger
}

// Runner drives one transcription run through its states, strictly one
// clip at a time. A Runner is single use.
type Runner struct {
	opts  Options
	state State
	log   *logging.Logger

	// OnTransition, if set, is called on every state change.
	OnTransition func(from, to State)
}

func NewRunner(opts Options) *Runner {
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Runner{
		opts: opts,
		log:  log.Named("pipeline"),
	}
}

func (r *Runner) State() State {
	return r.state
}

func (r *Runner) transition(to State) {
	from := r.state
	if !validTransition(from, to) {
		panic(fmt.Sprintf("pipeline: invalid transition %s -> %s", from, to))
	}
	r.state = to
	r.log.Debugw("state changed", "from", from.String(), "to", to.String())
	if r.OnTransition != nil {
		r.OnTransition(from, to)
	}
}

func (r *Runner) fail(err error) error {
	r.transition(State{Phase: Failed})
	return err
}

// Run executes the whole pipeline and returns the transcript that was
// written. Any error aborts the run: no transcript is written and the
// timing file is left in place.
func (r *Runner) Run(ctx context.Context) ([]transcript.LineResult, error) {
	if r.state.Phase != Idle {
		return nil, fmt.Errorf("runner already used (state %s)", r.state)
	}
	if r.opts.LoadEngine == nil {
		return nil, fmt.Errorf("no engine loader configured")
	}

	r.transition(State{Phase: LoadingCues})
	cues, err := r.loadCues(ctx)
	if err != nil {
		return nil, r.fail(err)
	}

	r.transition(State{Phase: LoadingEngine})
	fmt.Fprintf(r.opts.Progress, "Loading whisper '%s'...\n", r.opts.ModelName)
	eng, err := r.opts.LoadEngine(ctx)
	if err != nil {
		if !errors.Is(err, ErrEngineLoad) {
			err = fmt.Errorf("%w: %v", ErrEngineLoad, err)
		}
		return nil, r.fail(err)
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			r.log.Warnw("failed to close engine", "error", cerr)
		}
	}()

	fmt.Fprintf(r.opts.Progress, "Transcribing: %s\n", r.opts.AudioPath)
	lines := make([]transcript.LineResult, 0, len(cues))
	for i, c := range cues {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(fmt.Errorf("transcription cancelled: %w", err))
		}

		r.transition(State{Phase: ProcessingClip, Clip: i})
		line, err := r.processClip(ctx, eng, c)
		if err != nil {
			return nil, r.fail(err)
		}
		lines = append(lines, line)
	}

	r.transition(State{Phase: Writing})
	if err := transcript.Write(r.opts.OutputPath, lines); err != nil {
		return nil, r.fail(err)
	}
	if r.opts.OutputPath != "" {
		r.log.Infow("transcript written", "path", r.opts.OutputPath, "lines", len(lines))
	}

	if err := Cleanup(r.opts.TimestampsPath, r.opts.RemoveTimestamps); err != nil {
		// the transcript is already safe; a leftover timing file is not worth failing for
		r.log.Warnw("timing file not removed", "path", r.opts.TimestampsPath, "error", err)
	}

	r.transition(State{Phase: Done})
	return lines, nil
}

func (r *Runner) loadCues(ctx context.Context) ([]cue.TimeCue, error) {
	fmt.Fprintln(r.opts.Progress, "Extrapolating clips from timestamps...")

	cues, err := cue.Load(r.opts.TimestampsPath)
	if err != nil {
		return nil, err
	}
	r.log.Infow("cues loaded", "path", r.opts.TimestampsPath, "count", len(cues))

	if _, err := os.Stat(r.opts.AudioPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("audio file %s: %w", r.opts.AudioPath, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat audio file: %w", err)
	}

	if r.opts.Strict {
		var duration time.Duration
		if r.opts.ProbeDuration != nil {
			duration, err = r.opts.ProbeDuration(ctx, r.opts.AudioPath)
			if err != nil {
				r.log.Warnw("audio duration unknown, skipping bounds check", "error", err)
				duration = 0
			}
		}
		if err := cue.Validate(cues, duration); err != nil {
			return nil, err
		}
	}

	if err := transcript.Preflight(r.opts.OutputPath); err != nil {
		return nil, err
	}
	return cues, nil
}

func (r *Runner) processClip(ctx context.Context, eng engine.Engine, c cue.TimeCue) (transcript.LineResult, error) {
	clip := c.Clip()
	fmt.Fprintf(r.opts.Progress, "Line %d: %s -> %s\n", c.LineNumber, clock(clip.Start), clock(clip.End))
	r.log.Debugw("transcribing clip", "line", c.LineNumber, "start", clip.Start, "end", clip.End)

	stream, err := eng.Transcribe(ctx, r.opts.AudioPath, clip, r.opts.Params)
	if err != nil {
		return transcript.LineResult{}, recognitionError(c, err)
	}

	line, err := aggregate(c, stream, r.opts.Progress)
	if err != nil {
		return transcript.LineResult{}, recognitionError(c, err)
	}
	r.log.Debugw("clip done", "line", c.LineNumber, "segments", len(line.Segments))
	return line, nil
}

func recognitionError(c cue.TimeCue, err error) error {
	if errors.Is(err, ErrRecognition) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("line %d: %w", c.LineNumber, err)
	}
	return fmt.Errorf("line %d: %w: %v", c.LineNumber, ErrRecognition, err)
}
