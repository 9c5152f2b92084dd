package pipeline

import "fmt"

type Phase int

const (
	Idle Phase = iota
	LoadingCues
	LoadingEngine
	ProcessingClip
	Writing
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case LoadingCues:
		return "loading-cues"
	case LoadingEngine:
		return "loading-engine"
	case ProcessingClip:
		return "processing-clip"
	case Writing:
		return "writing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the runner's position. Clip is the zero-based cue index and is
// only meaningful in ProcessingClip.
type State struct {
	Phase Phase
	Clip  int
}

func (s State) String() string {
	if s.Phase == ProcessingClip {
		return fmt.Sprintf("%s[%d]", s.Phase, s.Clip)
	}
	return s.Phase.String()
}

// Terminal reports whether the runner can no longer move.
func (s State) Terminal() bool {
	return s.Phase == Done || s.Phase == Failed
}

// allowed forward moves; Failed is reachable from any non-terminal state
func validTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to.Phase == Failed {
		return true
	}

	switch from.Phase {
	case Idle:
		return to.Phase == LoadingCues
	case LoadingCues:
		return to.Phase == LoadingEngine
	case LoadingEngine:
		return (to.Phase == ProcessingClip && to.Clip == 0) || to.Phase == Writing
	case ProcessingClip:
		return (to.Phase == ProcessingClip && to.Clip == from.Clip+1) || to.Phase == Writing
	case Writing:
		return to.Phase == Done
	}
	return false
}
