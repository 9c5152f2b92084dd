package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/whispers/internal/transcript"
	"github.com/mgpai22/whispers/internal/translate"
)

type translateOptions struct {
	targetLang  string
	inputLang   string
	apiKey      string
	model       string
	provider    string
	prompt      string
	output      string
	concurrency int
	batchSize   int
}

func newTranslateCmd(env *environment) *cobra.Command {
	o := &translateOptions{}

	cmd := &cobra.Command{
		Use:   "translate TRANSCRIPT",
		Short: "Translate a transcript to another language using AI",
		Long: `Translate every segment of a transcript produced by the transcribe command.

Line numbers, cue bounds and segment order are kept; only segment text is
replaced. The result is written as JSON, or as a subtitle file when --output
ends in .srt, .vtt or .ass.

Examples:
  whispers translate transcript.json --target-language english
  whispers translate transcript.json -t en -l ja --provider openai -o transcript.en.srt
  whispers translate transcript.json -t spanish --provider anthropic --batch-size 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, env, o, args[0])
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&o.targetLang, "target-language", "t", "", "Target language for translation (required)")
	fs.StringVarP(&o.inputLang, "language", "l", "", "Language of the transcript (optional, improves prompts)")
	fs.StringVarP(&o.apiKey, "api-key", "k", "", "API key (or set GEMINI_API_KEY/OPENAI_API_KEY/ANTHROPIC_API_KEY)")
	fs.StringVar(&o.model, "model", "", "Model to use for translation (provider-specific, uses sensible defaults)")
	fs.StringVar(&o.provider, "provider", string(translate.ProviderGemini), "Translation provider (gemini, openai, anthropic)")
	fs.StringVar(&o.prompt, "prompt", "", "Additional instructions appended to the translation prompt")
	fs.StringVarP(&o.output, "output", "o", "", "Output file (default: <transcript>.<target>.json)")
	fs.IntVar(&o.concurrency, "concurrency", 3, "Number of parallel translation workers")
	fs.IntVar(&o.batchSize, "batch-size", translate.DefaultBatchSize, "Number of segments per API request")

	return cmd
}

func runTranslate(cmd *cobra.Command, env *environment, o *translateOptions, transcriptPath string) error {
	ctx := cmd.Context()
	fs := cmd.Flags()
	cfg := env.config.Translate

	provider := pick(fs, "provider", o.provider, cfg.Provider)
	model := pick(fs, "model", o.model, cfg.Model)
	targetLang := pick(fs, "target-language", o.targetLang, cfg.TargetLanguage)

	concurrency := o.concurrency
	if !fs.Changed("concurrency") && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	batchSize := o.batchSize
	if !fs.Changed("batch-size") && cfg.BatchSize > 0 {
		batchSize = cfg.BatchSize
	}

	if targetLang == "" {
		return fmt.Errorf("target language is required: use --target-language")
	}
	if o.inputLang != "" &&
		strings.EqualFold(strings.TrimSpace(o.inputLang), strings.TrimSpace(targetLang)) {
		return fmt.Errorf(
			"input language %q and target language %q cannot be the same",
			o.inputLang,
			targetLang,
		)
	}
	if concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", concurrency)
	}
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be positive, got %d", batchSize)
	}

	outputPath := o.output
	if outputPath == "" {
		base := strings.TrimSuffix(transcriptPath, filepath.Ext(transcriptPath))
		outputPath = fmt.Sprintf("%s.%s.json", base, targetLang)
	}

	lines, err := transcript.Read(transcriptPath)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("transcript contains no lines")
	}

	env.logger.Infow("Starting transcript translation",
		"input", transcriptPath,
		"output", outputPath,
		"provider", provider,
		"model", model,
		"target_language", targetLang,
		"input_language", o.inputLang,
		"lines", len(lines),
	)

	translator, err := translate.Factory(ctx, translate.Provider(provider), o.apiKey, translate.Options{
		InputLanguage:  o.inputLang,
		TargetLanguage: targetLang,
		Model:          model,
		Prompt:         o.prompt,
		BatchSize:      batchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create translator: %w", err)
	}

	translated, err := translate.TranslateLines(ctx, translator, lines, concurrency)
	if err != nil {
		return fmt.Errorf("translation failed: %w", err)
	}

	env.logger.Infow("Writing output file")
	if err := transcript.Write(outputPath, translated); err != nil {
		return err
	}

	absOutput, _ := filepath.Abs(outputPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Transcript translated: %s\n", absOutput)
	fmt.Fprintf(cmd.OutOrStdout(), "  Lines: %d\n", len(translated))
	fmt.Fprintf(cmd.OutOrStdout(), "  Target language: %s\n", targetLang)
	return nil
}
