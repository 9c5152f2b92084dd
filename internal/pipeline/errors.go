package pipeline

import (
	"github.com/mgpai22/whispers/internal/cue"
	"github.com/mgpai22/whispers/internal/engine"
	"github.com/mgpai22/whispers/internal/transcript"
)

// Every run error wraps exactly one of these; classify with errors.Is.
var (
	// timing file or audio source missing
	ErrNotFound = cue.ErrNotFound
	// timing file unparseable, or rejected by strict validation
	ErrMalformedInput = cue.ErrMalformedInput
	// engine failed to initialize, before any clip ran
	ErrEngineLoad = engine.ErrEngineLoad
	// engine failed on a clip; the run is aborted
	ErrRecognition = engine.ErrRecognition
	// output destination could not be written
	ErrWrite = transcript.ErrWrite
)
