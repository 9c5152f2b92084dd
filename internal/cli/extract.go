package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/whispers/internal/audio"
	"github.com/mgpai22/whispers/internal/cue"
)

func newExtractCmd(env *environment) *cobra.Command {
	var (
		line       int
		output     string
		sampleRate int
		channels   int
	)

	cmd := &cobra.Command{
		Use:   "extract AUDIO TIMESTAMPS",
		Short: "Cut the audio clip of one cue into a WAV file",
		Long: `Cut the audio covered by one cue out of AUDIO and save it as 16-bit PCM WAV.

Useful for listening to exactly what the recognizer hears for a line.

Examples:
  whispers extract episode.wav timestamps.json --line 3
  whispers extract episode.wav lines.srt --line 12 -o line12.wav --sample-rate 44100`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			audioPath, timestampsPath := args[0], args[1]

			cues, err := cue.Load(timestampsPath)
			if err != nil {
				return err
			}

			var selected *cue.TimeCue
			for i := range cues {
				if cues[i].LineNumber == line {
					selected = &cues[i]
					break
				}
			}
			if selected == nil {
				return fmt.Errorf("line %d not found in %s", line, timestampsPath)
			}

			if output == "" {
				base := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
				output = fmt.Sprintf("%s.line%d.wav", base, line)
			}

			clip := selected.Clip()
			env.logger.Infow("Extracting clip",
				"audio", audioPath,
				"line", line,
				"start", clip.Start,
				"end", clip.End,
				"output", output,
			)

			opts := audio.ClipOptions{SampleRate: sampleRate, Channels: channels}
			if err := audio.ExtractClip(cmd.Context(), audioPath, output, clip.Start, clip.End, opts); err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}

			absOutput, _ := filepath.Abs(output)
			fmt.Fprintf(cmd.OutOrStdout(), "Clip extracted: %s\n", absOutput)
			return nil
		},
	}

	defaults := audio.DefaultClipOptions()
	cmd.Flags().IntVarP(&line, "line", "n", 1, "Line number of the cue to extract")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output WAV file (default: <audio>.line<N>.wav)")
	cmd.Flags().IntVarP(&sampleRate, "sample-rate", "r", defaults.SampleRate, "Sample rate in Hz")
	cmd.Flags().IntVarP(&channels, "channels", "c", defaults.Channels, "Number of audio channels (1=mono, 2=stereo)")
	return cmd
}
