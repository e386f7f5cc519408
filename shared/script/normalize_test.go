package script

import (
	"encoding/json"
	"errors"
	"testing"
)

func rawSeg(ts, narration string, ost string) RawSegment {
	return RawSegment{
		Timestamp: ts,
		Narration: narration,
		OST:       json.RawMessage(ost),
	}
}

func TestNormalizeOrdersByStartAndRenumbers(t *testing.T) {
	raw := []RawSegment{
		rawSeg("00:00:10,000-00:00:15,000", "second", "2"),
		rawSeg("00:00:00,000-00:00:05,000", "first", "0"),
		rawSeg("00:00:20,000-00:00:25,000", "", "1"),
	}

	segments, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	for i, seg := range segments {
		if seg.ID != i+1 {
			t.Fatalf("segment %d has id %d", i, seg.ID)
		}
	}
	if segments[0].Narration != "first" || segments[1].Narration != "second" {
		t.Fatalf("segments not sorted by start time: %+v", segments)
	}
}

func TestNormalizeDeterministicUnderPermutation(t *testing.T) {
	base := []RawSegment{
		rawSeg("00:00:00,000-00:00:05,000", "a", "2"),
		rawSeg("00:00:05,000-00:00:08,000", "b", "0"),
		rawSeg("00:00:08,000-00:00:10,000", "", "1"),
	}
	permutations := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	want, err := Normalize(base)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	for _, perm := range permutations {
		shuffled := make([]RawSegment, len(base))
		for i, j := range perm {
			shuffled[i] = base[j]
		}
		got, err := Normalize(shuffled)
		if err != nil {
			t.Fatalf("Normalize(%v) returned error: %v", perm, err)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("permutation %v: segment %d differs: got %+v want %+v", perm, i, got[i], want[i])
			}
		}
	}
}

func TestNormalizeRejectsInvalidTimeRange(t *testing.T) {
	_, err := Normalize([]RawSegment{rawSeg("00:00:05,000-00:00:05,000", "x", "0")})
	var rangeErr *InvalidTimeRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected InvalidTimeRangeError, got %v", err)
	}
	if rangeErr.Position != 1 {
		t.Fatalf("expected position 1, got %d", rangeErr.Position)
	}
}

func TestNormalizeRejectsBadTimestamp(t *testing.T) {
	_, err := Normalize([]RawSegment{rawSeg("nonsense", "x", "0")})
	var parseErr *TimestampParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected TimestampParseError, got %v", err)
	}
}

func TestNormalizeNarrationConsistency(t *testing.T) {
	_, err := Normalize([]RawSegment{rawSeg("00:00:00,000-00:00:05,000", "", "0")})
	var missing *MissingNarrationError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingNarrationError, got %v", err)
	}

	_, err = Normalize([]RawSegment{rawSeg("00:00:00,000-00:00:05,000", "talk", "1")})
	var unexpected *UnexpectedNarrationError
	if !errors.As(err, &unexpected) {
		t.Fatalf("expected UnexpectedNarrationError, got %v", err)
	}
}

func TestAudioModeCoercion(t *testing.T) {
	cases := []struct {
		raw  string
		want AudioMode
	}{
		{"0", ModeNarrationOnly},
		{"1", ModeOriginalOnly},
		{"2", ModeBoth},
		{"2.0", ModeBoth},
		{`"2"`, ModeBoth},
		{`" 1 "`, ModeOriginalOnly},
		{"true", ModeOriginalOnly},
		{"false", ModeNarrationOnly},
	}
	for _, tc := range cases {
		got, err := coerceAudioMode(json.RawMessage(tc.raw))
		if err != nil {
			t.Fatalf("coerceAudioMode(%s) returned error: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("coerceAudioMode(%s) = %v, want %v", tc.raw, got, tc.want)
		}
	}

	for _, bad := range []string{"3", "-1", "1.5", `"abc"`, `{"a":1}`, ""} {
		if _, err := coerceAudioMode(json.RawMessage(bad)); err == nil {
			t.Fatalf("coerceAudioMode(%s) should fail", bad)
		}
	}
}

func TestParseScriptJSON(t *testing.T) {
	data := []byte(`[
		{"_id": 1, "timestamp": "00:00:00,000-00:00:05,000", "picture": "intro", "narration": "Hello", "OST": 2},
		{"_id": 2, "timestamp": "00:00:05,000-00:00:08,000", "picture": "action", "narration": "World", "OST": 0},
		{"_id": 3, "timestamp": "00:00:08,000-00:00:10,000", "picture": "ending", "narration": "", "OST": 1}
	]`)

	segments, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if TotalDuration(segments).Seconds() != 10 {
		t.Fatalf("expected total duration 10s, got %v", TotalDuration(segments))
	}
	if segments[2].Mode != ModeOriginalOnly {
		t.Fatalf("expected original-only mode, got %v", segments[2].Mode)
	}
}
