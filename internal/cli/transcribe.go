package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mgpai22/whispers/internal/audio"
	"github.com/mgpai22/whispers/internal/config"
	"github.com/mgpai22/whispers/internal/engine"
	"github.com/mgpai22/whispers/internal/pipeline"
)

type transcribeOptions struct {
	provider    string
	model       string
	device      string
	computeType string
	python      string
	apiKey      string
	output      string

	language                  string
	temperature               []float64
	bestOf                    int
	beamSize                  int
	patience                  float64
	repetitionPenalty         float64
	conditionOnPreviousText   bool
	noSpeechThreshold         float64
	logProbThreshold          float64
	compressionRatioThreshold float64
	wordTimestamps            bool
	vadFilter                 bool

	rmTS   bool
	noRmTS bool
	strict bool
}

func newTranscribeCmd(env *environment) *cobra.Command {
	o := &transcribeOptions{}

	cmd := &cobra.Command{
		Use:     "transcribe AUDIO TIMESTAMPS",
		Aliases: []string{"run"},
		Short:   "Transcribe an audio file one cue at a time",
		Long: `Transcribe AUDIO clip by clip, using the cue boundaries in TIMESTAMPS.

TIMESTAMPS is either a JSON array of {"line_number", "start_time_ms",
"end_time_ms"} objects or a subtitle file (srt, vtt, ass) whose entries are
used as cues. Clips are transcribed strictly one after another with a model
that is loaded once.

The transcript is written to --output as JSON, or as a subtitle file when the
output ends in .srt, .vtt or .ass. Without --output only progress is printed.

Examples:
  whispers transcribe episode.wav timestamps.json -o transcript.json
  whispers transcribe episode.wav lines.ass --model medium --device cpu --compute-type int8
  whispers transcribe episode.wav timestamps.json --strict --rm-ts -o out.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, env, o, args[0], args[1])
		},
	}

	addTranscribeFlags(cmd.Flags(), o)
	return cmd
}

func addTranscribeFlags(fs *pflag.FlagSet, o *transcribeOptions) {
	defaults := engine.DefaultParams()

	fs.StringVar(&o.provider, "provider", string(engine.ProviderFasterWhisper), "Recognition backend (fasterwhisper, openai, gemini)")
	fs.StringVar(&o.model, "model", "large-v2", "Model name or path")
	fs.StringVar(&o.device, "device", "cuda", "Device for local models (cpu, cuda, auto)")
	fs.StringVar(&o.computeType, "compute-type", "float32", "Compute precision for local models (float32, float16, int8, ...)")
	fs.StringVar(&o.python, "python", "", "Python interpreter with faster-whisper installed (or set WHISPERS_PYTHON)")
	fs.StringVarP(&o.apiKey, "api-key", "k", "", "API key for cloud providers (or set OPENAI_API_KEY/GEMINI_API_KEY)")
	fs.StringVarP(&o.output, "output", "o", "", "Transcript output file (.json, .srt, .vtt, .ass)")

	fs.StringVarP(&o.language, "language", "l", defaults.Language, "Language of the audio")
	fs.Float64SliceVar(&o.temperature, "temperature", defaults.Temperature, "Sampling temperature, or a comma-separated fallback list")
	fs.IntVar(&o.bestOf, "best-of", defaults.BestOf, "Candidates when sampling with non-zero temperature")
	fs.IntVar(&o.beamSize, "beam-size", defaults.BeamSize, "Beam size for decoding")
	fs.Float64Var(&o.patience, "patience", defaults.Patience, "Beam search patience factor")
	fs.Float64Var(&o.repetitionPenalty, "repetition-penalty", defaults.RepetitionPenalty, "Penalty applied to previously generated tokens")
	fs.BoolVar(&o.conditionOnPreviousText, "condition-on-previous-text", defaults.ConditionOnPreviousText, "Feed the previous output as a prompt for the next window")
	fs.Float64Var(&o.noSpeechThreshold, "no-speech-threshold", *defaults.NoSpeechThreshold, "Treat a window as silent above this no-speech probability")
	fs.Float64Var(&o.logProbThreshold, "log-prob-threshold", *defaults.LogProbThreshold, "Retry decoding when the average log probability is below this")
	fs.Float64Var(&o.compressionRatioThreshold, "compression-ratio-threshold", *defaults.CompressionRatioThreshold, "Retry decoding when the gzip compression ratio is above this")
	fs.BoolVar(&o.wordTimestamps, "word-timestamps", defaults.WordTimestamps, "Extract word-level timestamps")
	fs.BoolVar(&o.vadFilter, "vad-filter", defaults.VADFilter, "Skip non-speech parts with voice activity detection")

	fs.BoolVar(&o.rmTS, "rm-ts", false, "Delete the timestamps file after a successful run")
	fs.BoolVar(&o.noRmTS, "no-rm-ts", false, "Keep the timestamps file (the default; overrides --rm-ts and the config file)")
	fs.BoolVar(&o.strict, "strict", false, "Reject unordered, overlapping or out-of-range cues before transcribing")
}

// resolved settings for one run: flags set on the command line win over
// the config file, which wins over the flag defaults
type transcribeSettings struct {
	load             engine.LoadOptions
	params           engine.Params
	output           string
	removeTimestamps bool
	strict           bool
}

func resolveTranscribeSettings(fs *pflag.FlagSet, o *transcribeOptions, cfg *config.Config) (transcribeSettings, error) {
	s := transcribeSettings{
		load: engine.LoadOptions{
			Provider:    engine.Provider(pick(fs, "provider", o.provider, cfg.Engine.Provider)),
			Model:       pick(fs, "model", o.model, cfg.Engine.Model),
			Device:      pick(fs, "device", o.device, cfg.Engine.Device),
			ComputeType: pick(fs, "compute-type", o.computeType, cfg.Engine.ComputeType),
			Python:      pick(fs, "python", o.python, cfg.Engine.Python),
			APIKey:      o.apiKey,
		},
		output: pick(fs, "output", o.output, cfg.Output),
	}

	p := cfg.Params.Apply(engine.DefaultParams())
	if fs.Changed("language") {
		p.Language = o.language
	}
	if fs.Changed("temperature") {
		p.Temperature = append([]float64(nil), o.temperature...)
	}
	if fs.Changed("best-of") {
		p.BestOf = o.bestOf
	}
	if fs.Changed("beam-size") {
		p.BeamSize = o.beamSize
	}
	if fs.Changed("patience") {
		p.Patience = o.patience
	}
	if fs.Changed("repetition-penalty") {
		p.RepetitionPenalty = o.repetitionPenalty
	}
	if fs.Changed("condition-on-previous-text") {
		p.ConditionOnPreviousText = o.conditionOnPreviousText
	}
	if fs.Changed("no-speech-threshold") {
		p.NoSpeechThreshold = engine.Float(o.noSpeechThreshold)
	}
	if fs.Changed("log-prob-threshold") {
		p.LogProbThreshold = engine.Float(o.logProbThreshold)
	}
	if fs.Changed("compression-ratio-threshold") {
		p.CompressionRatioThreshold = engine.Float(o.compressionRatioThreshold)
	}
	if fs.Changed("word-timestamps") {
		p.WordTimestamps = o.wordTimestamps
	}
	if fs.Changed("vad-filter") {
		p.VADFilter = o.vadFilter
	}
	if err := p.Validate(); err != nil {
		return transcribeSettings{}, fmt.Errorf("invalid recognition parameters: %w", err)
	}
	s.params = p

	if cfg.RemoveTimestamps != nil {
		s.removeTimestamps = *cfg.RemoveTimestamps
	}
	if fs.Changed("rm-ts") {
		s.removeTimestamps = o.rmTS
	}
	if o.noRmTS {
		s.removeTimestamps = false
	}

	if cfg.Strict != nil {
		s.strict = *cfg.Strict
	}
	if fs.Changed("strict") {
		s.strict = o.strict
	}

	return s, nil
}

// flag value when set explicitly or when the config has nothing
func pick(fs *pflag.FlagSet, name, flagValue, configValue string) string {
	if fs.Changed(name) || configValue == "" {
		return flagValue
	}
	return configValue
}

func runTranscribe(cmd *cobra.Command, env *environment, o *transcribeOptions, audioPath, timestampsPath string) error {
	ctx := cmd.Context()

	s, err := resolveTranscribeSettings(cmd.Flags(), o, env.config)
	if err != nil {
		return err
	}

	if !audio.IsMediaFile(audioPath) {
		env.logger.Warnw("Unrecognized audio extension, passing it to the engine anyway",
			"audio", audioPath,
		)
	}

	env.logger.Infow("Starting transcription",
		"audio", audioPath,
		"timestamps", timestampsPath,
		"output", s.output,
		"provider", s.load.Provider,
		"model", s.load.Model,
		"device", s.load.Device,
		"compute_type", s.load.ComputeType,
		"strict", s.strict,
		"rm_ts", s.removeTimestamps,
	)

	runner := pipeline.NewRunner(pipeline.Options{
		AudioPath:      audioPath,
		TimestampsPath: timestampsPath,
		OutputPath:     s.output,
		ModelName:      s.load.Model,
		LoadEngine: func(ctx context.Context) (engine.Engine, error) {
			return engine.Load(ctx, s.load)
		},
		Params:           s.params,
		RemoveTimestamps: s.removeTimestamps,
		Strict:           s.strict,
		ProbeDuration:    audio.GetDuration,
		Progress:         cmd.OutOrStdout(),
		Logger:           env.logger,
	})
	runner.OnTransition = func(from, to pipeline.State) {
		env.logger.Debugw("Pipeline state", "from", from.String(), "to", to.String())
	}

	lines, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}

	if s.output != "" {
		absOutput, _ := filepath.Abs(s.output)
		fmt.Fprintf(cmd.OutOrStdout(), "Transcript written: %s\n", absOutput)
		fmt.Fprintf(cmd.OutOrStdout(), "  Lines: %d\n", len(lines))
	}
	return nil
}
