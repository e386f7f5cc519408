package script

import "fmt"

// TimestampParseError reports a segment whose timestamp field could not be parsed.
type TimestampParseError struct {
	Position int
	Value    string
	Err      error
}

func (e *TimestampParseError) Error() string {
	return fmt.Sprintf("segment %d: cannot parse timestamp %q: %v", e.Position, e.Value, e.Err)
}

func (e *TimestampParseError) Unwrap() error { return e.Err }

// InvalidTimeRangeError reports a segment whose start is not strictly before its end.
type InvalidTimeRangeError struct {
	Position int
	Start    Timestamp
	End      Timestamp
}

func (e *InvalidTimeRangeError) Error() string {
	return fmt.Sprintf("segment %d: start %s must be before end %s", e.Position, e.Start, e.End)
}

// InvalidAudioModeError reports an OST value that does not resolve to a known mode.
type InvalidAudioModeError struct {
	Position int
	Err      error
}

func (e *InvalidAudioModeError) Error() string {
	return fmt.Sprintf("segment %d: invalid audio mode: %v", e.Position, e.Err)
}

func (e *InvalidAudioModeError) Unwrap() error { return e.Err }

// MissingNarrationError reports a narrated segment with empty narration text.
type MissingNarrationError struct {
	Position int
	Mode     AudioMode
}

func (e *MissingNarrationError) Error() string {
	return fmt.Sprintf("segment %d: audio mode %s requires narration text", e.Position, e.Mode)
}

// UnexpectedNarrationError reports an original-audio-only segment carrying narration.
type UnexpectedNarrationError struct {
	Position int
}

func (e *UnexpectedNarrationError) Error() string {
	return fmt.Sprintf("segment %d: audio mode %s must not carry narration text", e.Position, ModeOriginalOnly)
}
