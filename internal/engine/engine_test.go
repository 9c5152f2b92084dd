package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/mgpai22/whispers/internal/cue"
)

type nopEngine struct{}

func (nopEngine) Transcribe(context.Context, string, cue.ClipRange, Params) (SegmentStream, error) {
	return NewSliceStream(nil, nil), nil
}

func (nopEngine) Close() error { return nil }

func TestLoadUnknownProvider(t *testing.T) {
	_, err := Load(context.Background(), LoadOptions{Provider: "nope"})
	if !errors.Is(err, ErrEngineLoad) {
		t.Errorf("got error %v, want ErrEngineLoad", err)
	}
}

func TestLoadWrapsLoaderErrors(t *testing.T) {
	Register("failing", func(context.Context, LoadOptions) (Engine, error) {
		return nil, errors.New("model not found")
	})
	Register("working", func(context.Context, LoadOptions) (Engine, error) {
		return nopEngine{}, nil
	})

	if _, err := Load(context.Background(), LoadOptions{Provider: "failing"}); !errors.Is(err, ErrEngineLoad) {
		t.Errorf("got error %v, want ErrEngineLoad", err)
	}

	eng, err := Load(context.Background(), LoadOptions{Provider: "working"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := eng.(nopEngine); !ok {
		t.Errorf("got %T, want nopEngine", eng)
	}
}

func TestSliceStream(t *testing.T) {
	closed := 0
	stream := NewSliceStream([]Segment{
		{Text: "good", Start: 2.2, End: 3.0},
		{Text: "morning", Start: 3.1, End: 4.8},
	}, func() { closed++ })

	var texts []string
	for stream.Next() {
		texts = append(texts, stream.Segment().Text)
	}
	if len(texts) != 2 || texts[0] != "good" || texts[1] != "morning" {
		t.Errorf("got %v", texts)
	}
	if stream.Next() {
		t.Error("exhausted stream must not restart")
	}
	if err := stream.Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	_ = stream.Close()
	_ = stream.Close()
	if closed != 1 {
		t.Errorf("onClose ran %d times, want 1", closed)
	}
}

func TestSliceStreamClosedEarly(t *testing.T) {
	stream := NewSliceStream([]Segment{{Text: "a"}, {Text: "b"}}, nil)
	if !stream.Next() {
		t.Fatal("expected first segment")
	}
	_ = stream.Close()
	if stream.Next() {
		t.Error("closed stream must not yield")
	}
}

func TestGate(t *testing.T) {
	var g Gate
	if err := g.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := g.Acquire(); !errors.Is(err, ErrBusy) {
		t.Errorf("second Acquire: got %v, want ErrBusy", err)
	}
	g.Release()
	if err := g.Acquire(); err != nil {
		t.Errorf("Acquire after Release: %v", err)
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults must be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"no temperature", func(p *Params) { p.Temperature = nil }},
		{"temperature too high", func(p *Params) { p.Temperature = []float64{0, 1.5} }},
		{"best of zero", func(p *Params) { p.BestOf = 0 }},
		{"beam size zero", func(p *Params) { p.BeamSize = 0 }},
		{"negative patience", func(p *Params) { p.Patience = -1 }},
		{"zero repetition penalty", func(p *Params) { p.RepetitionPenalty = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if p.Language != "ja" || p.InitialTemperature() != 0.4 || p.BestOf != 8 || p.BeamSize != 10 {
		t.Errorf("unexpected defaults: %+v", p)
	}
	if *p.NoSpeechThreshold != 0.275 || *p.LogProbThreshold != -1 || *p.CompressionRatioThreshold != 1.75 {
		t.Errorf("unexpected thresholds: %+v", p)
	}
	if p.ConditionOnPreviousText || p.WordTimestamps || p.VADFilter {
		t.Errorf("boolean flags must default to false: %+v", p)
	}
}
