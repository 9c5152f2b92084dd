package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mgpai22/whispers/internal/cue"
	"github.com/mgpai22/whispers/internal/engine"
)

const twoCues = `[{"line_number":1,"start_time_ms":0,"end_time_ms":2000},{"line_number":2,"start_time_ms":2000,"end_time_ms":5000}]`

// fakeEngine returns scripted segments per call and records overlap.
type fakeEngine struct {
	script [][]engine.Segment
	// call index whose Transcribe fails, -1 for none
	failCall int
	// call index whose stream fails after its segments, -1 for none
	failStream int

	calls   []cue.ClipRange
	params  []engine.Params
	open    int
	overlap bool
	closed  bool
}

func newFakeEngine(script ...[]engine.Segment) *fakeEngine {
	return &fakeEngine{script: script, failCall: -1, failStream: -1}
}

func (f *fakeEngine) Transcribe(_ context.Context, _ string, clip cue.ClipRange, params engine.Params) (engine.SegmentStream, error) {
	call := len(f.calls)
	f.calls = append(f.calls, clip)
	f.params = append(f.params, params)

	if f.open > 0 {
		f.overlap = true
	}
	if call == f.failCall {
		return nil, errors.New("CUDA out of memory")
	}

	var segs []engine.Segment
	if call < len(f.script) {
		segs = f.script[call]
	}
	f.open++
	return &fakeStream{
		SliceStream: engine.NewSliceStream(segs, func() { f.open-- }),
		fail:        call == f.failStream,
	}, nil
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

type fakeStream struct {
	*engine.SliceStream
	fail bool
	done bool
}

func (s *fakeStream) Next() bool {
	if s.SliceStream.Next() {
		return true
	}
	s.done = true
	return false
}

func (s *fakeStream) Err() error {
	if s.fail && s.done {
		return errors.New("decoder error")
	}
	return nil
}

type fixture struct {
	dir        string
	audio      string
	timestamps string
	output     string
}

func newFixture(t *testing.T, cues string) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:        dir,
		audio:      filepath.Join(dir, "episode.wav"),
		timestamps: filepath.Join(dir, "timestamps.json"),
		output:     filepath.Join(dir, "out.json"),
	}
	if err := os.WriteFile(f.audio, []byte("RIFF"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.timestamps, []byte(cues), 0644); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f fixture) options(eng engine.Engine, progress *bytes.Buffer) Options {
	opts := Options{
		AudioPath:      f.audio,
		TimestampsPath: f.timestamps,
		OutputPath:     f.output,
		ModelName:      "large-v2",
		Params:         engine.DefaultParams(),
		LoadEngine: func(context.Context) (engine.Engine, error) {
			return eng, nil
		},
	}
	if progress != nil {
		opts.Progress = progress
	}
	return opts
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRunTwoCues(t *testing.T) {
	f := newFixture(t, twoCues)
	eng := newFakeEngine(
		[]engine.Segment{{Text: "hello", Start: 0.1, End: 1.5}},
		[]engine.Segment{{Text: "good", Start: 2.2, End: 3.0}, {Text: "morning", Start: 3.1, End: 4.8}},
	)

	var progress bytes.Buffer
	runner := NewRunner(f.options(eng, &progress))

	var states []string
	runner.OnTransition = func(_, to State) {
		states = append(states, to.String())
	}

	lines, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	data, err := os.ReadFile(f.output)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	compact := strings.Join(strings.Fields(string(data)), "")
	want := `[{"line_number":1,"start_time_ms":0,"end_time_ms":2000,"segments":["hello"]},{"line_number":2,"start_time_ms":2000,"end_time_ms":5000,"segments":["good","morning"]}]`
	if compact != want {
		t.Errorf("transcript:\n got %s\nwant %s", compact, want)
	}

	if eng.calls[0] != (cue.ClipRange{Start: 0, End: 2}) || eng.calls[1] != (cue.ClipRange{Start: 2, End: 5}) {
		t.Errorf("clips: got %+v", eng.calls)
	}
	if eng.overlap {
		t.Error("a clip started while the previous stream was open")
	}
	if !eng.closed {
		t.Error("engine was not closed")
	}

	wantStates := "loading-cues,loading-engine,processing-clip[0],processing-clip[1],writing,done"
	if got := strings.Join(states, ","); got != wantStates {
		t.Errorf("states: got %s, want %s", got, wantStates)
	}
	if runner.State().Phase != Done {
		t.Errorf("final state: got %s", runner.State())
	}

	for _, line := range []string{
		"Loading whisper 'large-v2'...",
		"Line 1: 00:00:00.000 -> 00:00:02.000",
		"[00:00:00.100 -> 00:00:01.500] hello",
		"Line 2: 00:00:02.000 -> 00:00:05.000",
		"[00:00:03.100 -> 00:00:04.800] morning",
	} {
		if !strings.Contains(progress.String(), line) {
			t.Errorf("progress missing %q:\n%s", line, progress.String())
		}
	}

	if !exists(f.timestamps) {
		t.Error("timing file removed although cleanup is off")
	}
}

func TestRunForwardsParamsUnchanged(t *testing.T) {
	f := newFixture(t, twoCues)
	eng := newFakeEngine()

	opts := f.options(eng, nil)
	opts.Params.Language = "en"
	opts.Params.VADFilter = true
	if _, err := NewRunner(opts).Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for i, p := range eng.params {
		if p.Language != "en" || !p.VADFilter || p.BeamSize != 10 {
			t.Errorf("call %d params: %+v", i, p)
		}
	}
}

func TestRunEmptyClipSerializesEmptyArray(t *testing.T) {
	f := newFixture(t, `[{"line_number":9,"start_time_ms":100,"end_time_ms":200}]`)

	lines, err := NewRunner(f.options(newFakeEngine(), nil)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if lines[0].Segments == nil || len(lines[0].Segments) != 0 {
		t.Errorf("segments: got %#v", lines[0].Segments)
	}

	data, _ := os.ReadFile(f.output)
	if !strings.Contains(string(data), `"segments": []`) {
		t.Errorf("output:\n%s", data)
	}
}

func TestRunMalformedTimingFile(t *testing.T) {
	f := newFixture(t, `{"not": "an array"}`)
	eng := newFakeEngine()
	loaded := false

	opts := f.options(eng, nil)
	opts.RemoveTimestamps = true
	opts.LoadEngine = func(context.Context) (engine.Engine, error) {
		loaded = true
		return eng, nil
	}

	runner := NewRunner(opts)
	_, err := runner.Run(context.Background())
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("got error %v, want ErrMalformedInput", err)
	}
	if loaded || len(eng.calls) != 0 {
		t.Error("engine must not be loaded or called for a malformed timing file")
	}
	if exists(f.output) {
		t.Error("output must not be written")
	}
	if !exists(f.timestamps) {
		t.Error("timing file must be left untouched on failure")
	}
	if runner.State().Phase != Failed {
		t.Errorf("final state: got %s", runner.State())
	}
}

func TestRunMissingInputs(t *testing.T) {
	f := newFixture(t, twoCues)

	opts := f.options(newFakeEngine(), nil)
	opts.TimestampsPath = filepath.Join(f.dir, "absent.json")
	if _, err := NewRunner(opts).Run(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing timing file: got %v, want ErrNotFound", err)
	}

	opts = f.options(newFakeEngine(), nil)
	opts.AudioPath = filepath.Join(f.dir, "absent.wav")
	if _, err := NewRunner(opts).Run(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing audio: got %v, want ErrNotFound", err)
	}
}

func TestRunEngineLoadFailure(t *testing.T) {
	f := newFixture(t, twoCues)

	opts := f.options(nil, nil)
	opts.LoadEngine = func(context.Context) (engine.Engine, error) {
		return nil, errors.New("unsupported compute type")
	}

	_, err := NewRunner(opts).Run(context.Background())
	if !errors.Is(err, ErrEngineLoad) {
		t.Fatalf("got error %v, want ErrEngineLoad", err)
	}
	if exists(f.output) {
		t.Error("output must not be written")
	}
}

func TestRunRecognitionFailureAborts(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeEngine)
	}{
		{"transcribe call fails", func(e *fakeEngine) { e.failCall = 1 }},
		{"stream fails mid-clip", func(e *fakeEngine) { e.failStream = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, twoCues)
			eng := newFakeEngine(
				[]engine.Segment{{Text: "hello", Start: 0.1, End: 1.5}},
				[]engine.Segment{{Text: "good", Start: 2.2, End: 3.0}},
			)
			tt.setup(eng)

			opts := f.options(eng, nil)
			opts.RemoveTimestamps = true

			runner := NewRunner(opts)
			_, err := runner.Run(context.Background())
			if !errors.Is(err, ErrRecognition) {
				t.Fatalf("got error %v, want ErrRecognition", err)
			}
			if !strings.Contains(err.Error(), "line 2") {
				t.Errorf("error must name the failing line: %v", err)
			}
			if exists(f.output) {
				t.Error("no partial transcript may be written")
			}
			if !exists(f.timestamps) {
				t.Error("timing file must survive a failed run")
			}
			if eng.open != 0 {
				t.Error("stream left open after failure")
			}
			if !eng.closed {
				t.Error("engine was not closed")
			}
		})
	}
}

func TestRunCleanupAfterSuccess(t *testing.T) {
	f := newFixture(t, twoCues)

	opts := f.options(newFakeEngine(), nil)
	opts.RemoveTimestamps = true
	opts.OutputPath = ""

	if _, err := NewRunner(opts).Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if exists(f.timestamps) {
		t.Error("timing file should be removed after a successful run")
	}
	if exists(f.output) {
		t.Error("no output path was configured")
	}
}

func TestRunStrictValidation(t *testing.T) {
	f := newFixture(t, `[{"line_number":1,"start_time_ms":3000,"end_time_ms":1000}]`)
	eng := newFakeEngine()

	opts := f.options(eng, nil)
	if _, err := NewRunner(opts).Run(context.Background()); err != nil {
		t.Fatalf("without strict the cues pass through: %v", err)
	}

	eng = newFakeEngine()
	opts = f.options(eng, nil)
	opts.Strict = true
	opts.ProbeDuration = func(context.Context, string) (time.Duration, error) {
		return 10 * time.Second, nil
	}
	if _, err := NewRunner(opts).Run(context.Background()); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("got error %v, want ErrMalformedInput", err)
	}
	if len(eng.calls) != 0 {
		t.Error("engine called despite validation failure")
	}
}

func TestRunUnwritableOutputFailsBeforeRecognition(t *testing.T) {
	f := newFixture(t, twoCues)
	eng := newFakeEngine()

	opts := f.options(eng, nil)
	opts.OutputPath = f.dir

	_, err := NewRunner(opts).Run(context.Background())
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("got error %v, want ErrWrite", err)
	}
	if len(eng.calls) != 0 {
		t.Error("recognition ran although the output cannot be written")
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, twoCues)
	eng := newFakeEngine()

	ctx, cancel := context.WithCancel(context.Background())
	opts := f.options(eng, nil)
	opts.LoadEngine = func(context.Context) (engine.Engine, error) {
		cancel()
		return eng, nil
	}

	_, err := NewRunner(opts).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got error %v, want context.Canceled", err)
	}
	if len(eng.calls) != 0 {
		t.Error("no clip should start after cancellation")
	}
}

func TestRunnerIsSingleUse(t *testing.T) {
	f := newFixture(t, twoCues)
	runner := NewRunner(f.options(newFakeEngine(), nil))

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := runner.Run(context.Background()); err == nil {
		t.Error("second Run must fail")
	}
}

func TestCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ts.json")
	if err := os.WriteFile(path, []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Cleanup(path, false); err != nil || !exists(path) {
		t.Errorf("disabled cleanup touched the file: %v", err)
	}
	if err := Cleanup(path, true); err != nil || exists(path) {
		t.Errorf("enabled cleanup: err=%v exists=%v", err, exists(path))
	}
	if err := Cleanup(path, true); err != nil {
		t.Errorf("already removed file: %v", err)
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{State{Phase: Idle}, State{Phase: LoadingCues}, true},
		{State{Phase: Idle}, State{Phase: LoadingEngine}, false},
		{State{Phase: LoadingEngine}, State{Phase: ProcessingClip}, true},
		{State{Phase: LoadingEngine}, State{Phase: ProcessingClip, Clip: 1}, false},
		{State{Phase: ProcessingClip, Clip: 0}, State{Phase: ProcessingClip, Clip: 1}, true},
		{State{Phase: ProcessingClip, Clip: 1}, State{Phase: ProcessingClip, Clip: 1}, false},
		{State{Phase: ProcessingClip, Clip: 3}, State{Phase: Writing}, true},
		{State{Phase: LoadingEngine}, State{Phase: Writing}, true},
		{State{Phase: Writing}, State{Phase: Done}, true},
		{State{Phase: LoadingCues}, State{Phase: Failed}, true},
		{State{Phase: Done}, State{Phase: Failed}, false},
		{State{Phase: Failed}, State{Phase: LoadingCues}, false},
	}

	for _, tt := range tests {
		if got := validTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
