package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mgpai22/whispers/internal/cue"
	"github.com/mgpai22/whispers/internal/engine"
)

const DefaultModel = "whisper-1"

// Engine transcribes clips with the OpenAI audio transcription API.
type Engine struct {
	client  openai.Client
	model   string
	extract engine.ClipExtractor
	gate    engine.Gate

	// text of the previous clip, sent as the prompt when
	// condition_on_previous_text is set
	previous string
}

// segment from the verbose_json response
type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperVerboseResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Duration float64          `json:"duration"`
}

func init() {
	engine.Register(engine.ProviderOpenAI, func(ctx context.Context, opts engine.LoadOptions) (engine.Engine, error) {
		apiKey := opts.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return New(apiKey, opts.Model)
	})
}

func New(apiKey, model string, opts ...option.RequestOption) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required: use --api-key flag or set OPENAI_API_KEY", engine.ErrEngineLoad)
	}
	if model == "" || model == "large-v2" {
		model = DefaultModel
	}

	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return &Engine{
		client:  client,
		model:   model,
		extract: engine.FFmpegExtractor,
	}, nil
}

func (e *Engine) Transcribe(
	ctx context.Context,
	audioPath string,
	clip cue.ClipRange,
	params engine.Params,
) (engine.SegmentStream, error) {
	if err := e.gate.Acquire(); err != nil {
		return nil, err
	}

	// nothing to cut or send for a zero-length cue
	if clip.End <= clip.Start {
		return engine.NewSliceStream([]engine.Segment{}, e.gate.Release), nil
	}

	segments, err := e.transcribeClip(ctx, audioPath, clip, params)
	if err != nil {
		e.gate.Release()
		return nil, fmt.Errorf("%w: %v", engine.ErrRecognition, err)
	}

	return engine.NewSliceStream(segments, e.gate.Release), nil
}

func (e *Engine) transcribeClip(
	ctx context.Context,
	audioPath string,
	clip cue.ClipRange,
	params engine.Params,
) ([]engine.Segment, error) {
	clipPath, cleanup, err := engine.CutClip(ctx, e.extract, audioPath, clip)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	file, err := os.Open(clipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open clip: %w", err)
	}
	defer file.Close()

	req := openai.AudioTranscriptionNewParams{
		File:                   file,
		Model:                  openai.AudioModel(e.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
		Temperature:            openai.Float(params.InitialTemperature()),
	}
	if params.Language != "" {
		req.Language = openai.String(params.Language)
	}
	if params.ConditionOnPreviousText && e.previous != "" {
		req.Prompt = openai.String(e.previous)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	segments, err := parseVerboseJSONResponse(resp.RawJSON(), clip.End-clip.Start)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, s := range segments {
		text.WriteString(s.Text)
	}
	e.previous = text.String()

	return engine.Shift(segments, clip.Start), nil
}

// parses a verbose_json body into clip-relative segments; text is kept
// verbatim, leading spaces included
func parseVerboseJSONResponse(rawJSON string, clipDuration float64) ([]engine.Segment, error) {
	if rawJSON == "" {
		return nil, fmt.Errorf("empty response")
	}

	var verboseResp whisperVerboseResponse
	if err := json.Unmarshal([]byte(rawJSON), &verboseResp); err != nil {
		return nil, fmt.Errorf("failed to parse verbose_json response: %w", err)
	}

	if len(verboseResp.Segments) == 0 {
		if strings.TrimSpace(verboseResp.Text) == "" {
			// silence
			return []engine.Segment{}, nil
		}
		end := clipDuration
		if verboseResp.Duration > 0 {
			end = verboseResp.Duration
		}
		return []engine.Segment{{
			Start: 0,
			End:   end,
			Text:  verboseResp.Text,
		}}, nil
	}

	segments := make([]engine.Segment, 0, len(verboseResp.Segments))
	for _, seg := range verboseResp.Segments {
		segments = append(segments, engine.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}
	return segments, nil
}

func (e *Engine) Close() error {
	return nil
}
