package pipeline

import "fmt"

// SynthesisError reports a per-segment narration synthesis failure. It is
// recovered locally unless every narrated segment fails.
type SynthesisError struct {
	SegmentID int
	Err       error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("segment %d: narration synthesis failed: %v", e.SegmentID, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// ExtractionError reports a per-segment clip extraction failure. Fatal by
// default because a missing clip corrupts downstream ordering.
type ExtractionError struct {
	SegmentID int
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("segment %d: clip extraction failed: %v", e.SegmentID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// CompositionError reports a failure while conforming or concatenating
// clips into the composed video.
type CompositionError struct {
	Err error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition failed: %v", e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

// MuxError reports a final mux/export failure.
type MuxError struct {
	Err error
}

func (e *MuxError) Error() string {
	return fmt.Sprintf("final mux failed: %v", e.Err)
}

func (e *MuxError) Unwrap() error { return e.Err }

// ResourceError reports a missing or unusable external resource (source
// video, transcoder binary, work directory). Detected before stage work.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s unavailable: %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Stage names the phase of the run an error surfaced in. Distinct from
// State, which marks completed transitions: a synthesis failure is
// reported against SYNTHESIS even though the run never left SCRIPT_LOADED.
type Stage string

const (
	StageResources   Stage = "RESOURCE_CHECK"
	StageScript      Stage = "SCRIPT"
	StageSynthesis   Stage = "SYNTHESIS"
	StageAudioMerge  Stage = "AUDIO_MERGE"
	StageExtraction  Stage = "EXTRACTION"
	StageComposition Stage = "COMPOSITION"
	StageMux         Stage = "MUX"
)

// StageError wraps a stage failure with the name of the failing stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
