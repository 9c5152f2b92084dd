package engine

import "fmt"

// Params is the recognition parameter bundle forwarded to the engine for
// every clip of a run. Nil thresholds disable the corresponding check.
type Params struct {
	Language                  string    `json:"language,omitempty" yaml:"language"`
	Temperature               []float64 `json:"temperature" yaml:"temperature"`
	BestOf                    int       `json:"best_of" yaml:"best_of"`
	BeamSize                  int       `json:"beam_size" yaml:"beam_size"`
	Patience                  float64   `json:"patience" yaml:"patience"`
	RepetitionPenalty         float64   `json:"repetition_penalty" yaml:"repetition_penalty"`
	ConditionOnPreviousText   bool      `json:"condition_on_previous_text" yaml:"condition_on_previous_text"`
	NoSpeechThreshold         *float64  `json:"no_speech_threshold" yaml:"no_speech_threshold"`
	LogProbThreshold          *float64  `json:"log_prob_threshold" yaml:"log_prob_threshold"`
	CompressionRatioThreshold *float64  `json:"compression_ratio_threshold" yaml:"compression_ratio_threshold"`
	WordTimestamps            bool      `json:"word_timestamps" yaml:"word_timestamps"`
	VADFilter                 bool      `json:"vad_filter" yaml:"vad_filter"`
}

func DefaultParams() Params {
	return Params{
		Language:                  "ja",
		Temperature:               []float64{0.4},
		BestOf:                    8,
		BeamSize:                  10,
		Patience:                  2,
		RepetitionPenalty:         1.4,
		NoSpeechThreshold:         Float(0.275),
		LogProbThreshold:          Float(-1),
		CompressionRatioThreshold: Float(1.75),
	}
}

// Validate rejects values no backend can honour.
func (p Params) Validate() error {
	if len(p.Temperature) == 0 {
		return fmt.Errorf("at least one temperature is required")
	}
	for _, t := range p.Temperature {
		if t < 0 || t > 1 {
			return fmt.Errorf("temperature %v out of range [0, 1]", t)
		}
	}
	if p.BestOf < 1 {
		return fmt.Errorf("best_of must be at least 1, got %d", p.BestOf)
	}
	if p.BeamSize < 1 {
		return fmt.Errorf("beam_size must be at least 1, got %d", p.BeamSize)
	}
	if p.Patience <= 0 {
		return fmt.Errorf("patience must be positive, got %v", p.Patience)
	}
	if p.RepetitionPenalty <= 0 {
		return fmt.Errorf("repetition_penalty must be positive, got %v", p.RepetitionPenalty)
	}
	return nil
}

// first temperature of the fallback schedule, for backends that take one
func (p Params) InitialTemperature() float64 {
	if len(p.Temperature) == 0 {
		return 0
	}
	return p.Temperature[0]
}

func Float(v float64) *float64 {
	return &v
}
