package subtitle

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cue is a single subtitle entry on a timeline.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

var srtTimePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})$`)

// ParseSRT decodes SRT content. Malformed blocks are skipped rather than
// failing the whole file; cue indices are taken from block order.
func ParseSRT(content string) []Cue {
	blocks := regexp.MustCompile(`\r?\n\r?\n`).Split(strings.TrimSpace(content), -1)

	var cues []Cue
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}

		// First line may be the numeric counter; the timing line contains "-->".
		timingIdx := 0
		if !strings.Contains(lines[0], "-->") {
			timingIdx = 1
		}
		if timingIdx >= len(lines) || !strings.Contains(lines[timingIdx], "-->") {
			continue
		}

		parts := strings.SplitN(lines[timingIdx], "-->", 2)
		start, err1 := parseSRTTime(strings.TrimSpace(parts[0]))
		end, err2 := parseSRTTime(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			continue
		}

		text := strings.TrimSpace(strings.Join(lines[timingIdx+1:], "\n"))
		if text == "" {
			continue
		}

		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: start,
			End:   end,
			Text:  text,
		})
	}
	return cues
}

// ParseSRTFile reads and decodes an SRT file.
func ParseSRTFile(path string) ([]Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitle %s: %w", path, err)
	}
	return ParseSRT(string(data)), nil
}

func parseSRTTime(s string) (time.Duration, error) {
	m := srtTimePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("malformed SRT time %q", s)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	frac := m[4] + strings.Repeat("0", 3-len(m[4]))
	millis, _ := strconv.Atoi(frac)

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond, nil
}

// FormatSRTTime renders the canonical SRT time form.
func FormatSRTTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hours := ms / 3600_000
	ms -= hours * 3600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	seconds := ms / 1000
	ms -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, ms)
}

// FormatSRT renders cues as an SRT document, renumbering sequentially.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatSRTTime(cue.Start), FormatSRTTime(cue.End), cue.Text)
	}
	return b.String()
}

// WriteSRTFile writes cues to an SRT file.
func WriteSRTFile(path string, cues []Cue) error {
	if err := os.WriteFile(path, []byte(FormatSRT(cues)), 0644); err != nil {
		return fmt.Errorf("failed to write subtitle %s: %w", path, err)
	}
	return nil
}

// Shift returns a copy of the cues moved by the given offset.
func Shift(cues []Cue, offset time.Duration) []Cue {
	shifted := make([]Cue, len(cues))
	for i, cue := range cues {
		shifted[i] = Cue{
			Index: cue.Index,
			Start: cue.Start + offset,
			End:   cue.End + offset,
			Text:  cue.Text,
		}
	}
	return shifted
}

// Merge concatenates cue groups, sorts by start time and renumbers.
func Merge(groups ...[]Cue) []Cue {
	var merged []Cue
	for _, group := range groups {
		merged = append(merged, group...)
	}
	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].Start < merged[b].Start
	})
	for i := range merged {
		merged[i].Index = i + 1
	}
	return merged
}

// sentenceEnders are the boundaries used to split narration into cues.
var sentenceEnders = regexp.MustCompile(`[。！？；.!?;]+`)

// SplitSentences splits narration text on sentence-ending punctuation,
// dropping empty fragments.
func SplitSentences(text string) []string {
	parts := sentenceEnders.Split(text, -1)
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
