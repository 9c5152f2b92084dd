package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/mgpai22/whispers/internal/cue"
	"github.com/mgpai22/whispers/internal/engine"
)

func TestParseVerboseJSONResponse(t *testing.T) {
	tests := []struct {
		name      string
		rawJSON   string
		wantCount int
		wantText  string
		wantEnd   float64
		wantErr   bool
	}{
		{
			name: "segments kept verbatim",
			rawJSON: `{
				"text": " Hello world. How are you?",
				"segments": [
					{"start": 0.0, "end": 1.5, "text": " Hello world."},
					{"start": 1.5, "end": 3.0, "text": " How are you?"}
				],
				"duration": 3.0
			}`,
			wantCount: 2,
			wantText:  " Hello world.",
			wantEnd:   1.5,
		},
		{
			name:      "text without segments uses reported duration",
			rawJSON:   `{"text": "only text", "segments": [], "duration": 2.5}`,
			wantCount: 1,
			wantText:  "only text",
			wantEnd:   2.5,
		},
		{
			name:      "text without duration spans the clip",
			rawJSON:   `{"text": "only text", "segments": null}`,
			wantCount: 1,
			wantText:  "only text",
			wantEnd:   4,
		},
		{
			name:      "silence",
			rawJSON:   `{"text": "", "segments": []}`,
			wantCount: 0,
		},
		{
			name:    "empty body",
			rawJSON: "",
			wantErr: true,
		},
		{
			name:    "invalid json",
			rawJSON: `{"text": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments, err := parseVerboseJSONResponse(tt.rawJSON, 4)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if segments == nil {
				t.Fatal("segments must not be nil")
			}
			if len(segments) != tt.wantCount {
				t.Fatalf("got %d segments, want %d", len(segments), tt.wantCount)
			}
			if tt.wantCount > 0 {
				if segments[0].Text != tt.wantText {
					t.Errorf("text: got %q, want %q", segments[0].Text, tt.wantText)
				}
				if segments[0].End != tt.wantEnd {
					t.Errorf("end: got %v, want %v", segments[0].End, tt.wantEnd)
				}
			}
		})
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New("", ""); !errors.Is(err, engine.ErrEngineLoad) {
		t.Errorf("got error %v, want ErrEngineLoad", err)
	}
}

func stubExtract(_ context.Context, _, out string, _, _ float64) error {
	return os.WriteFile(out, []byte("RIFF"), 0644)
}

type recordedRequest struct {
	model, language, prompt, format string
}

func newTestEngine(t *testing.T, handler func(w http.ResponseWriter, call int)) (*Engine, *[]recordedRequest) {
	t.Helper()

	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		requests = append(requests, recordedRequest{
			model:    r.FormValue("model"),
			language: r.FormValue("language"),
			prompt:   r.FormValue("prompt"),
			format:   r.FormValue("response_format"),
		})
		call := len(requests)
		mu.Unlock()

		handler(w, call)
	}))
	t.Cleanup(srv.Close)

	eng, err := New("test-key", "", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	eng.extract = stubExtract
	return eng, &requests
}

func TestTranscribeShiftsSegmentsToAudioTime(t *testing.T) {
	eng, requests := newTestEngine(t, func(w http.ResponseWriter, call int) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"text": " clip %d", "segments": [
			{"start": 0.2, "end": 1.0, "text": " clip %d"},
			{"start": 1.1, "end": 2.8, "text": " more"}
		]}`, call, call)
	})

	params := engine.DefaultParams()
	params.ConditionOnPreviousText = true
	ctx := context.Background()

	stream, err := eng.Transcribe(ctx, "episode.wav", cue.ClipRange{Start: 2, End: 5}, params)
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	var segs []engine.Segment
	for stream.Next() {
		segs = append(segs, stream.Segment())
	}
	_ = stream.Close()

	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
	if segs[0].Start != 2.2 || segs[1].End != 4.8 {
		t.Errorf("segments not shifted by clip start: %+v", segs)
	}
	if segs[0].Text != " clip 1" {
		t.Errorf("text must be verbatim, got %q", segs[0].Text)
	}

	second, err := eng.Transcribe(ctx, "episode.wav", cue.ClipRange{Start: 5, End: 8}, params)
	if err != nil {
		t.Fatalf("second Transcribe returned error: %v", err)
	}
	_ = second.Close()

	got := *requests
	if len(got) != 2 {
		t.Fatalf("got %d requests, want 2", len(got))
	}
	if got[0].model != DefaultModel || got[0].language != "ja" || got[0].format != "verbose_json" {
		t.Errorf("unexpected first request: %+v", got[0])
	}
	if got[0].prompt != "" {
		t.Errorf("first clip must not carry a prompt, got %q", got[0].prompt)
	}
	if got[1].prompt != " clip 1 more" {
		t.Errorf("second clip prompt: got %q", got[1].prompt)
	}
}

func TestTranscribeAPIFailure(t *testing.T) {
	eng, _ := newTestEngine(t, func(w http.ResponseWriter, _ int) {
		http.Error(w, `{"error": {"message": "boom"}}`, http.StatusInternalServerError)
	})

	_, err := eng.Transcribe(context.Background(), "episode.wav", cue.ClipRange{End: 1}, engine.DefaultParams())
	if !errors.Is(err, engine.ErrRecognition) {
		t.Fatalf("got error %v, want ErrRecognition", err)
	}

	// a failed request must not leave the engine busy
	eng.extract = func(context.Context, string, string, float64, float64) error {
		return errors.New("ffmpeg failed")
	}
	if _, err := eng.Transcribe(context.Background(), "episode.wav", cue.ClipRange{End: 1}, engine.DefaultParams()); errors.Is(err, engine.ErrBusy) {
		t.Error("engine still busy after failed request")
	}
}

func TestTranscribeZeroLengthClip(t *testing.T) {
	eng, requests := newTestEngine(t, func(w http.ResponseWriter, _ int) {
		http.Error(w, `{"error": {"message": "unexpected request"}}`, http.StatusInternalServerError)
	})
	eng.extract = func(context.Context, string, string, float64, float64) error {
		return errors.New("zero-length clips must not be cut")
	}

	for i := 0; i < 2; i++ {
		stream, err := eng.Transcribe(context.Background(), "episode.wav", cue.ClipRange{Start: 3, End: 3}, engine.DefaultParams())
		if err != nil {
			t.Fatalf("Transcribe returned error: %v", err)
		}
		if stream.Next() {
			t.Errorf("zero-length clip yielded %+v", stream.Segment())
		}
		if err := stream.Err(); err != nil {
			t.Errorf("stream error: %v", err)
		}
		_ = stream.Close()
	}

	if n := len(*requests); n != 0 {
		t.Errorf("got %d API requests, want 0", n)
	}
}
