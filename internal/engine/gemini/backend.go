package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/mgpai22/whispers/internal/cue"
	"github.com/mgpai22/whispers/internal/engine"
)

const DefaultModel = "gemini-2.5-flash"

// Engine transcribes clips with Google Gemini. Clips are short, so the
// audio is sent inline instead of through the Files API.
type Engine struct {
	client  *genai.Client
	model   string
	extract engine.ClipExtractor
	gate    engine.Gate
}

// segment from Gemini's JSON response
type transcriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

var jsonBlockRegex = regexp.MustCompile("```(?:json)?\\s*")

func init() {
	engine.Register(engine.ProviderGemini, func(ctx context.Context, opts engine.LoadOptions) (engine.Engine, error) {
		apiKey := opts.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		return New(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}, opts.Model)
	})
}

func New(ctx context.Context, cfg *genai.ClientConfig, model string) (*Engine, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: Gemini API key is required: use --api-key flag or set GEMINI_API_KEY", engine.ErrEngineLoad)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", engine.ErrEngineLoad, err)
	}

	if model == "" || model == "large-v2" {
		model = DefaultModel
	}

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

	return engine.NewSliceStream(engine.Shift(segments, clip.Start), e.gate.Release), nil
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

	data, err := os.ReadFile(clipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(buildTranscriptionPrompt(params.Language, clip.End-clip.Start)),
		genai.NewPartFromBytes(data, "audio/wav"),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(params.InitialTemperature())),
		ResponseMIMEType: "application/json",
	}

	result, err := e.client.Models.GenerateContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	segments, err := parseTranscriptionResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transcription: %w", err)
	}
	return segments, nil
}

func buildTranscriptionPrompt(language string, clipDuration float64) string {
	var sb strings.Builder

	sb.WriteString("Generate a transcript of this audio clip. ")
	sb.WriteString("For each sentence or phrase, provide the start timestamp, end timestamp, and the exact text spoken. ")
	sb.WriteString("Format your response as a JSON array with objects containing 'start', 'end', and 'text' fields, ")
	sb.WriteString("where 'start' and 'end' are timestamps in seconds (as numbers) from the beginning of the clip. ")
	sb.WriteString(fmt.Sprintf("The clip is %.3f seconds long. ", clipDuration))

	if language != "" {
		sb.WriteString(fmt.Sprintf("The audio is in %s; transcribe it in that language without translating. ", language))
	}

	sb.WriteString("If nothing is spoken, return an empty array. ")
	sb.WriteString("Return ONLY the JSON array, no other text or markdown formatting.")

	return sb.String()
}

func parseTranscriptionResponse(result *genai.GenerateContentResponse) ([]engine.Segment, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	var responseText string
	for _, candidate := range result.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					responseText += part.Text
				}
			}
		}
	}

	if responseText == "" {
		return nil, fmt.Errorf("no text in Gemini response")
	}

	transcriptSegments, err := extractTranscriptSegments(cleanJSONResponse(responseText))
	if err != nil {
		return nil, fmt.Errorf("%w (response: %s)", err, truncateString(responseText, 200))
	}

	segments := make([]engine.Segment, 0, len(transcriptSegments))
	for _, ts := range transcriptSegments {
		if ts.End < ts.Start {
			ts.End = ts.Start
		}
		segments = append(segments, engine.Segment{
			Start: ts.Start,
			End:   ts.End,
			Text:  ts.Text,
		})
	}

	return segments, nil
}

// wrapper keys models tend to use when they ignore the bare-array request
var wrapperKeys = []string{"segments", "transcript", "data", "results"}

// extractTranscriptSegments finds the first JSON value in s that holds a
// segment array, skipping preambles, trailing chatter and wrapper objects.
// An empty array means nothing was spoken.
func extractTranscriptSegments(s string) ([]transcriptSegment, error) {
	for i := 0; i < len(s); i++ {
		if s[i] != '[' && s[i] != '{' {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}

		segments, ok, err := findSegments(v)
		if err != nil {
			return nil, err
		}
		if ok {
			return segments, nil
		}
		i += int(dec.InputOffset()) - 1
	}
	return nil, fmt.Errorf("no transcript array found in response")
}

func findSegments(v any) ([]transcriptSegment, bool, error) {
	switch val := v.(type) {
	case []any:
		if len(val) == 0 {
			return []transcriptSegment{}, true, nil
		}
		segments := make([]transcriptSegment, 0, len(val))
		for _, item := range val {
			seg, ok := toSegment(item)
			if !ok {
				return nil, false, nil
			}
			if seg.Text == "" && seg.End <= seg.Start {
				continue
			}
			segments = append(segments, seg)
		}
		if len(segments) == 0 {
			return nil, false, fmt.Errorf("transcript array holds only empty segments")
		}
		return segments, true, nil

	case map[string]any:
		for _, key := range wrapperKeys {
			if inner, ok := val[key]; ok {
				if segments, found, err := findSegments(inner); found || err != nil {
					return segments, found, err
				}
			}
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if segments, found, err := findSegments(val[k]); found || err != nil {
				return segments, found, err
			}
		}
	}
	return nil, false, nil
}

func toSegment(v any) (transcriptSegment, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return transcriptSegment{}, false
	}
	start, okStart := obj["start"].(float64)
	end, okEnd := obj["end"].(float64)
	text, okText := obj["text"].(string)
	if !okStart || !okEnd || !okText {
		return transcriptSegment{}, false
	}
	return transcriptSegment{Start: start, End: end, Text: text}, true
}

// removes markdown fences from the response
func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)
	s = jsonBlockRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Close is a no-op; the genai client holds no resources that need releasing.
func (e *Engine) Close() error {
	return nil
}
