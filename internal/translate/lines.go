package translate

import (
	"context"
	"strings"

	"github.com/mgpai22/whispers/internal/transcript"
)

// TranslateLines translates every non-blank segment of lines, keeping line
// numbers, cue bounds and segment order. Blank segments are copied through
// without a request. concurrency > 1 is used when tr supports it.
func TranslateLines(
	ctx context.Context,
	tr Translator,
	lines []transcript.LineResult,
	concurrency int,
) ([]transcript.LineResult, error) {
	type slot struct{ line, seg int }

	var (
		items []TranslationItem
		slots []slot
	)
	out := make([]transcript.LineResult, len(lines))
	for i, l := range lines {
		out[i] = l
		out[i].Segments = append([]string{}, l.Segments...)
		for j, s := range l.Segments {
			text := strings.TrimSpace(s)
			if text == "" {
				continue
			}
			items = append(items, TranslationItem{Index: len(items), Text: text})
			slots = append(slots, slot{line: i, seg: j})
		}
	}

	if len(items) == 0 {
		return out, nil
	}

	var (
		results []TranslationResult
		err     error
	)
	if ct, ok := tr.(ConcurrentTranslator); ok && concurrency > 1 {
		results, err = ct.TranslateWithConcurrency(ctx, items, concurrency)
	} else {
		results, err = tr.Translate(ctx, items)
	}
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Index < 0 || r.Index >= len(slots) {
			continue
		}
		s := slots[r.Index]
		out[s.line].Segments[s.seg] = r.Text
	}
	return out, nil
}
