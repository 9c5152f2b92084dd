package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mgpai22/whispers/internal/cue"
)

var (
	ErrEngineLoad  = errors.New("engine load failed")
	ErrRecognition = errors.New("recognition failed")
	// a Transcribe call was made while the previous stream was still open
	ErrBusy = errors.New("engine busy: previous segment stream not closed")
)

// one recognized utterance; times are seconds from the start of the audio file
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SegmentStream yields the segments of one clip in order. It is finite and
// cannot be restarted; callers must Close it before the next Transcribe.
type SegmentStream interface {
	Next() bool
	Segment() Segment
	Err() error
	Close() error
}

// Engine is the seam between the pipeline and a speech recognition backend.
// Engines are not safe for concurrent use.
type Engine interface {
	Transcribe(
		ctx context.Context,
		audioPath string,
		clip cue.ClipRange,
		params Params,
	) (SegmentStream, error)
	Close() error
}

// recognition backend
type Provider string

const (
	ProviderFasterWhisper Provider = "fasterwhisper"
	ProviderOpenAI        Provider = "openai"
	ProviderGemini        Provider = "gemini"
)

// settings used once, when the engine is loaded
type LoadOptions struct {
	Provider    Provider
	Model       string
	Device      string // cpu, cuda or auto
	ComputeType string // float32, float16, int8, ...
	Python      string // interpreter for the faster-whisper worker
	APIKey      string
}

// Loader builds an engine for one provider.
type Loader func(ctx context.Context, opts LoadOptions) (Engine, error)

var loaders = map[Provider]Loader{}

// Register makes a provider available to Load. Adapter packages call it
// from init.
func Register(provider Provider, loader Loader) {
	loaders[provider] = loader
}

// Load initializes the engine for opts.Provider. Every failure wraps
// ErrEngineLoad.
func Load(ctx context.Context, opts LoadOptions) (Engine, error) {
	if opts.Provider == "" {
		opts.Provider = ProviderFasterWhisper
	}

	loader, ok := loaders[opts.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider: %s", ErrEngineLoad, opts.Provider)
	}

	eng, err := loader(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrEngineLoad) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEngineLoad, err)
	}
	return eng, nil
}
