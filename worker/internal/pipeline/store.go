package pipeline

import "context"

// State is the pipeline run state.
type State string

const (
	StateInit         State = "INIT"
	StateScriptLoaded State = "SCRIPT_LOADED"
	StateTTSDone      State = "TTS_DONE"
	StateAudioMerged  State = "AUDIO_MERGED"
	StateClipsReady   State = "CLIPS_READY"
	StateComposed     State = "COMPOSED"
	StateMuxed        State = "MUXED"
	StateComplete     State = "COMPLETE"
	StateFailed       State = "FAILED"
	StateCancelled    State = "CANCELLED"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

// StageStore persists run state transitions so progress survives a worker
// crash and stays observable from outside the process.
type StageStore interface {
	SaveState(ctx context.Context, taskID string, state State, progress float64, message string) error
}

// NoopStore discards state transitions. Used by the local CLI where there
// is no database behind the run.
type NoopStore struct{}

func (NoopStore) SaveState(context.Context, string, State, float64, string) error { return nil }

// ProgressFunc receives coarse overall progress on a 0-100 scale.
type ProgressFunc func(percent float64, message string)
