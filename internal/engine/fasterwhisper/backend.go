package fasterwhisper

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mgpai22/whispers/internal/cue"
	"github.com/mgpai22/whispers/internal/engine"
)

//go:embed assets/worker.py
var workerScript []byte

// how long Close waits for the worker to exit after stdin is closed
const shutdownGrace = 5 * time.Second

// Config configures the faster-whisper worker process.
type Config struct {
	Model       string
	Device      string
	ComputeType string
	Python      string // interpreter, default $WHISPERS_PYTHON or python3

	// Command replaces the interpreter and embedded script entirely; the
	// model flags are still appended.
	Command []string
	Env     []string
	Stderr  io.Writer
}

// Engine drives one long-lived Python worker that holds the loaded model.
type Engine struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *io.PipeReader
	events     *bufio.Scanner
	scriptPath string
	gate       engine.Gate
	exited     chan struct{}
}

// worker protocol line
type event struct {
	Event   string  `json:"event"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Message string  `json:"message"`
}

type request struct {
	Audio          string        `json:"audio"`
	ClipTimestamps []float64     `json:"clip_timestamps"`
	Params         engine.Params `json:"params"`
}

func init() {
	engine.Register(engine.ProviderFasterWhisper, func(ctx context.Context, opts engine.LoadOptions) (engine.Engine, error) {
		return New(ctx, Config{
			Model:       opts.Model,
			Device:      opts.Device,
			ComputeType: opts.ComputeType,
			Python:      opts.Python,
		})
	})
}

// New starts the worker and blocks until the model is loaded. The worker
// is killed when ctx is cancelled.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", engine.ErrEngineLoad)
	}

	e := &Engine{exited: make(chan struct{})}

	argv := cfg.Command
	if len(argv) == 0 {
		python := cfg.Python
		if python == "" {
			python = os.Getenv("WHISPERS_PYTHON")
		}
		if python == "" {
			python = "python3"
		}

		script, err := os.CreateTemp("", "whispers-worker-*.py")
		if err != nil {
			return nil, fmt.Errorf("%w: write worker script: %v", engine.ErrEngineLoad, err)
		}
		e.scriptPath = script.Name()
		if _, err := script.Write(workerScript); err != nil {
			_ = script.Close()
			e.removeScript()
			return nil, fmt.Errorf("%w: write worker script: %v", engine.ErrEngineLoad, err)
		}
		_ = script.Close()

		argv = []string{python, e.scriptPath}
	}

	args := append(argv[1:len(argv):len(argv)], "--model", cfg.Model)
	if cfg.Device != "" {
		args = append(args, "--device", cfg.Device)
	}
	if cfg.ComputeType != "" {
		args = append(args, "--compute-type", cfg.ComputeType)
	}

	e.cmd = exec.CommandContext(ctx, argv[0], args...)
	e.cmd.Env = append(os.Environ(), cfg.Env...)
	e.cmd.Stderr = cfg.Stderr
	if e.cmd.Stderr == nil {
		e.cmd.Stderr = os.Stderr
	}

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		e.removeScript()
		return nil, fmt.Errorf("%w: %v", engine.ErrEngineLoad, err)
	}
	// an io.Pipe instead of StdoutPipe so Wait never closes the reader
	// before the last events have been consumed
	pr, pw := io.Pipe()
	e.cmd.Stdout = pw
	e.stdin = stdin
	e.stdout = pr
	e.events = bufio.NewScanner(pr)
	e.events.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if err := e.cmd.Start(); err != nil {
		_ = pw.Close()
		e.removeScript()
		return nil, fmt.Errorf("%w: start worker: %v", engine.ErrEngineLoad, err)
	}
	go func() {
		_ = e.cmd.Wait()
		_ = pw.Close()
		close(e.exited)
	}()

	ev, err := e.readEvent()
	switch {
	case err != nil:
		_ = e.Close()
		return nil, fmt.Errorf("%w: worker exited before loading the model: %v", engine.ErrEngineLoad, err)
	case ev.Event == "error":
		_ = e.Close()
		return nil, fmt.Errorf("%w: %s", engine.ErrEngineLoad, ev.Message)
	case ev.Event != "ready":
		_ = e.Close()
		return nil, fmt.Errorf("%w: unexpected worker event %q", engine.ErrEngineLoad, ev.Event)
	}

	return e, nil
}

// Transcribe sends one clip to the worker. Segments are read from the worker
// as they are produced.
func (e *Engine) Transcribe(
	ctx context.Context,
	audioPath string,
	clip cue.ClipRange,
	params engine.Params,
) (engine.SegmentStream, error) {
	if err := e.gate.Acquire(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(audioPath); err != nil {
		e.gate.Release()
		return nil, fmt.Errorf("%w: audio file: %v", engine.ErrRecognition, err)
	}

	line, err := json.Marshal(request{
		Audio:          audioPath,
		ClipTimestamps: []float64{clip.Start, clip.End},
		Params:         params,
	})
	if err != nil {
		e.gate.Release()
		return nil, fmt.Errorf("%w: encode request: %v", engine.ErrRecognition, err)
	}

	if _, err := e.stdin.Write(append(line, '\n')); err != nil {
		e.gate.Release()
		return nil, fmt.Errorf("%w: send request to worker: %v", engine.ErrRecognition, err)
	}

	return &stream{engine: e}, nil
}

// Close stops the worker, killing it if it does not exit in time.
func (e *Engine) Close() error {
	defer e.removeScript()

	if e.stdin != nil {
		_ = e.stdin.Close()
	}
	if e.stdout != nil {
		_ = e.stdout.Close()
	}
	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}

	select {
	case <-e.exited:
	case <-time.After(shutdownGrace):
		_ = e.cmd.Process.Kill()
		<-e.exited
	}
	return nil
}

func (e *Engine) readEvent() (event, error) {
	for e.events.Scan() {
		line := strings.TrimSpace(e.events.Text())
		if !strings.HasPrefix(line, "{") {
			// stray output from native libraries
			continue
		}

		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return event{}, fmt.Errorf("decode worker event: %w", err)
		}
		return ev, nil
	}

	if err := e.events.Err(); err != nil {
		return event{}, err
	}
	return event{}, io.ErrUnexpectedEOF
}

func (e *Engine) removeScript() {
	if e.scriptPath != "" {
		_ = os.Remove(e.scriptPath)
		e.scriptPath = ""
	}
}

// reads segment events for one request until "done" or "error"
type stream struct {
	engine  *Engine
	current engine.Segment
	err     error
	done    bool
}

func (s *stream) Next() bool {
	if s.done {
		return false
	}

	ev, err := s.engine.readEvent()
	if err != nil {
		s.finish(fmt.Errorf("%w: worker stream: %v", engine.ErrRecognition, err))
		return false
	}

	switch ev.Event {
	case "segment":
		s.current = engine.Segment{Text: ev.Text, Start: ev.Start, End: ev.End}
		return true
	case "done":
		s.finish(nil)
	case "error":
		s.finish(fmt.Errorf("%w: %s", engine.ErrRecognition, ev.Message))
	default:
		s.finish(fmt.Errorf("%w: unexpected worker event %q", engine.ErrRecognition, ev.Event))
	}
	return false
}

func (s *stream) Segment() engine.Segment {
	return s.current
}

func (s *stream) Err() error {
	return s.err
}

// Close drains any unread events so the next request starts in sync.
func (s *stream) Close() error {
	for s.Next() {
	}
	return nil
}

func (s *stream) finish(err error) {
	s.done = true
	s.err = err
	s.current = engine.Segment{}
	s.engine.gate.Release()
}

var _ engine.Engine = (*Engine)(nil)
