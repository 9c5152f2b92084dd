package subtitle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SubRip format
type SRTWriter struct{}

// WebVTT format
type VTTWriter struct{}

// Advanced SubStation Alpha format
type ASSWriter struct {
	Title    string
	FontName string
	FontSize int
}

func NewWriter(format Format) (Writer, error) {
	switch format {
	case FormatSRT:
		return &SRTWriter{}, nil
	case FormatVTT:
		return &VTTWriter{}, nil
	case FormatASS:
		return &ASSWriter{
			Title:    "Whispers Transcript",
			FontName: "Arial",
			FontSize: 20,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func (w *SRTWriter) Write(sub *Subtitle, path string) error {
	return writeFile(path, func(out io.Writer) {
		for i, entry := range sub.Entries {
			fmt.Fprintf(out, "%d\n%s --> %s\n%s\n\n",
				i+1,
				formatClock(entry.StartTime, ",", 3),
				formatClock(entry.EndTime, ",", 3),
				entry.Text)
		}
	})
}

func (w *VTTWriter) Write(sub *Subtitle, path string) error {
	return writeFile(path, func(out io.Writer) {
		fmt.Fprint(out, "WEBVTT\n\n")
		for i, entry := range sub.Entries {
			fmt.Fprintf(out, "%d\n%s --> %s\n%s\n\n",
				i+1,
				formatClock(entry.StartTime, ".", 3),
				formatClock(entry.EndTime, ".", 3),
				entry.Text)
		}
	})
}

func (w *ASSWriter) Write(sub *Subtitle, path string) error {
	return writeFile(path, func(out io.Writer) {
		fmt.Fprintf(out, "[Script Info]\nTitle: %s\nScriptType: v4.00+\nCollisions: Normal\nPlayDepth: 0\n\n", w.Title)

		fmt.Fprint(out, "[V4+ Styles]\n")
		fmt.Fprint(out, "Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
		fmt.Fprintf(out, "Style: Default,%s,%d,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,2,2,10,10,10,1\n\n",
			w.FontName, w.FontSize)

		fmt.Fprint(out, "[Events]\n")
		fmt.Fprint(out, "Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
		for _, entry := range sub.Entries {
			fmt.Fprintf(out, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
				strings.TrimPrefix(formatClock(entry.StartTime, ".", 2), "0"),
				strings.TrimPrefix(formatClock(entry.EndTime, ".", 2), "0"),
				strings.ReplaceAll(entry.Text, "\n", `\N`))
		}
	})
}

// HH:MM:SS<sep>fraction with the given number of fractional digits (2 or 3)
func formatClock(d time.Duration, sep string, digits int) string {
	ms := d.Milliseconds()
	frac := ms % 1000
	if digits == 2 {
		frac /= 10
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%0*d",
		ms/3_600_000, (ms/60_000)%60, (ms/1000)%60, sep, digits, frac)
}

func writeFile(path string, render func(io.Writer)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var sb strings.Builder
	render(&sb)

	return os.WriteFile(path, []byte(sb.String()), 0644)
}
