package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mgpai22/whispers/internal/cue"
)

func newCuesCmd(env *environment) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "cues SUBTITLE",
		Short: "Convert a subtitle file into a JSON cue list",
		Long: `Read an SRT, VTT or ASS subtitle file and emit one timing cue per entry,
numbered from 1, in the JSON format accepted by the transcribe command.

Examples:
  whispers cues lines.srt
  whispers cues lines.ass -o timestamps.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cues, err := cue.LoadSubtitle(args[0])
			if err != nil {
				return err
			}

			env.logger.Infow("Derived cues from subtitle",
				"subtitle", args[0],
				"cues", len(cues),
			)

			if output == "" {
				if cues == nil {
					cues = []cue.TimeCue{}
				}
				data, err := json.MarshalIndent(cues, "", "    ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			if err := cue.Save(output, cues); err != nil {
				return fmt.Errorf("failed to write cues: %w", err)
			}
			absOutput, _ := filepath.Abs(output)
			fmt.Fprintf(cmd.OutOrStdout(), "Cues written: %s\n", absOutput)
			fmt.Fprintf(cmd.OutOrStdout(), "  Lines: %d\n", len(cues))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Cue list output file (defaults to stdout)")
	return cmd
}
