package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mgpai22/whispers/internal/config"
	"github.com/mgpai22/whispers/internal/logging"

	// engine adapters register themselves
	_ "github.com/mgpai22/whispers/internal/engine/fasterwhisper"
	_ "github.com/mgpai22/whispers/internal/engine/gemini"
	_ "github.com/mgpai22/whispers/internal/engine/openai"
)

const version = "0.2.0"

// state shared by every command, filled in before any of them runs
type environment struct {
	verbose    bool
	configPath string

	logger *logging.Logger
	config *config.Config
}

func newRootCmd() *cobra.Command {
	env := &environment{logger: logging.Nop(), config: &config.Config{}}

	rootCmd := newTranscribeCmd(env)
	rootCmd.Use = "whispers [transcribe] AUDIO TIMESTAMPS"
	rootCmd.Aliases = nil
	rootCmd.Short = "Transcribe audio line by line from subtitle or script timings"
	rootCmd.Long = `Whispers transcribes an audio file one cue at a time, using externally
supplied time boundaries (a JSON cue list or an existing subtitle file)
instead of transcribing the whole recording as one stream.

Each cue becomes one line of the transcript, tagged with its line number and
holding the recognized segments in order.

Examples:
  whispers episode.wav timestamps.json -o transcript.json
  whispers transcribe episode.wav lines.srt --language en --device cpu --compute-type int8
  whispers episode.wav timestamps.json --provider openai -o transcript.srt`
	rootCmd.Version = version
	rootCmd.SilenceUsage = true
	rootCmd.Args = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return nil
		}
		return cobra.ExactArgs(2)(cmd, args)
	}
	transcribeRunE := rootCmd.RunE
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return transcribeRunE(cmd, args)
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		env.logger = logging.NewLogger(env.verbose)

		cfg, err := config.Load(env.configPath)
		if err != nil {
			return err
		}
		env.config = cfg
		if cfg.Path() != "" {
			env.logger.Debugw("config loaded", "path", cfg.Path())
		}
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		env.logger.Sync()
	}

	rootCmd.PersistentFlags().
		BoolVarP(&env.verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		StringVar(&env.configPath, "config", "", "YAML config file with default settings (or set "+config.EnvPath+")")

	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	rootCmd.AddCommand(
		newTranscribeCmd(env),
		newCuesCmd(env),
		newExtractCmd(env),
		newTranslateCmd(env),
	)

	return rootCmd
}

// accepts --best_of, --compute_type and friends; --output_file is the old
// name of --output
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	name = strings.ReplaceAll(name, "_", "-")
	if name == "output-file" {
		name = "output"
	}
	return pflag.NormalizedName(name)
}

// Execute runs the CLI; SIGINT and SIGTERM cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}
