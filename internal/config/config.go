package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mgpai22/whispers/internal/engine"
)

// EnvPath names a config file used when --config is not given.
const EnvPath = "WHISPERS_CONFIG"

// Config holds defaults read from a YAML file. Every field is optional;
// command-line flags that were set explicitly take precedence.
type Config struct {
	Engine struct {
		Provider    string `yaml:"provider"`
		Model       string `yaml:"model"`
		Device      string `yaml:"device"`
		ComputeType string `yaml:"compute_type"`
		Python      string `yaml:"python"`
	} `yaml:"engine"`

	Params Params `yaml:"params"`

	Output           string `yaml:"output"`
	RemoveTimestamps *bool  `yaml:"rm_ts"`
	Strict           *bool  `yaml:"strict"`

	Translate struct {
		Provider       string `yaml:"provider"`
		Model          string `yaml:"model"`
		TargetLanguage string `yaml:"target_language"`
		BatchSize      int    `yaml:"batch_size"`
		Concurrency    int    `yaml:"concurrency"`
	} `yaml:"translate"`

	path string
}

// Params mirrors engine.Params with optional fields so an absent key keeps
// the built-in default.
type Params struct {
	Language                  *string     `yaml:"language"`
	Temperature               Temperature `yaml:"temperature"`
	BestOf                    *int        `yaml:"best_of"`
	BeamSize                  *int        `yaml:"beam_size"`
	Patience                  *float64    `yaml:"patience"`
	RepetitionPenalty         *float64    `yaml:"repetition_penalty"`
	ConditionOnPreviousText   *bool       `yaml:"condition_on_previous_text"`
	NoSpeechThreshold         *float64    `yaml:"no_speech_threshold"`
	LogProbThreshold          *float64    `yaml:"log_prob_threshold"`
	CompressionRatioThreshold *float64    `yaml:"compression_ratio_threshold"`
	WordTimestamps            *bool       `yaml:"word_timestamps"`
	VADFilter                 *bool       `yaml:"vad_filter"`
}

// Temperature accepts either a scalar or a list.
type Temperature []float64

func (t *Temperature) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var v float64
		if err := value.Decode(&v); err != nil {
			return err
		}
		*t = Temperature{v}
		return nil
	}

	var list []float64
	if err := value.Decode(&list); err != nil {
		return err
	}
	*t = list
	return nil
}

// Load reads path. An empty path falls back to $WHISPERS_CONFIG, and to an
// empty config when that is unset too.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes a YAML document, rejecting unknown keys so typos are not
// silently ignored.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	p := cfg.Params.Apply(engine.DefaultParams())
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if cfg.Translate.BatchSize < 0 || cfg.Translate.Concurrency < 0 {
		return nil, fmt.Errorf("translate batch_size and concurrency must not be negative")
	}
	return cfg, nil
}

// Path of the file the config came from, empty for the built-in defaults.
func (c *Config) Path() string {
	return c.path
}

// Apply overlays the values set in the file onto base.
func (p Params) Apply(base engine.Params) engine.Params {
	if p.Language != nil {
		base.Language = *p.Language
	}
	if len(p.Temperature) > 0 {
		base.Temperature = append([]float64(nil), p.Temperature...)
	}
	if p.BestOf != nil {
		base.BestOf = *p.BestOf
	}
	if p.BeamSize != nil {
		base.BeamSize = *p.BeamSize
	}
	if p.Patience != nil {
		base.Patience = *p.Patience
	}
	if p.RepetitionPenalty != nil {
		base.RepetitionPenalty = *p.RepetitionPenalty
	}
	if p.ConditionOnPreviousText != nil {
		base.ConditionOnPreviousText = *p.ConditionOnPreviousText
	}
	if p.NoSpeechThreshold != nil {
		base.NoSpeechThreshold = engine.Float(*p.NoSpeechThreshold)
	}
	if p.LogProbThreshold != nil {
		base.LogProbThreshold = engine.Float(*p.LogProbThreshold)
	}
	if p.CompressionRatioThreshold != nil {
		base.CompressionRatioThreshold = engine.Float(*p.CompressionRatioThreshold)
	}
	if p.WordTimestamps != nil {
		base.WordTimestamps = *p.WordTimestamps
	}
	if p.VADFilter != nil {
		base.VADFilter = *p.VADFilter
	}
	return base
}
