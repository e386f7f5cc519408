package subtitle

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/fogleman/gg"
)

// VerticalAnchor places the subtitle block on the frame.
type VerticalAnchor string

const (
	AnchorTop    VerticalAnchor = "top"
	AnchorCenter VerticalAnchor = "center"
	AnchorBottom VerticalAnchor = "bottom"
	// AnchorCustom positions the block at Style.PositionPct from the top.
	AnchorCustom VerticalAnchor = "custom"
)

// Style describes how burned-in subtitles are rendered.
type Style struct {
	FontFile    string
	FontName    string
	FontSize    int
	FillColor   string // #RRGGBB
	StrokeColor string // #RRGGBB
	StrokeWidth float64
	Anchor      VerticalAnchor
	PositionPct float64 // 0..1 from the top, used with AnchorCustom
	MarginPx    int     // horizontal margin on both sides
}

// DefaultStyle matches the renderer defaults.
func DefaultStyle() Style {
	return Style{
		FontName:    "Arial",
		FontSize:    48,
		FillColor:   "#FFFFFF",
		StrokeColor: "#000000",
		StrokeWidth: 1.5,
		Anchor:      AnchorBottom,
		MarginPx:    60,
	}
}

// TextMeasurer returns the rendered pixel width of a string.
type TextMeasurer func(s string) float64

// NewFontMeasurer loads a TrueType font and measures text with its real metrics.
func NewFontMeasurer(fontFile string, size float64) (TextMeasurer, error) {
	if _, err := os.Stat(fontFile); err != nil {
		return nil, fmt.Errorf("font file %s not readable: %w", fontFile, err)
	}

	dc := gg.NewContext(1, 1)
	if err := dc.LoadFontFace(fontFile, size); err != nil {
		return nil, fmt.Errorf("failed to load font %s: %w", fontFile, err)
	}

	return func(s string) float64 {
		w, _ := dc.MeasureString(s)
		return w
	}, nil
}

// ApproximateMeasurer estimates widths when no font file is available:
// CJK glyphs are treated as full-width, everything else as ~0.55em.
func ApproximateMeasurer(size float64) TextMeasurer {
	return func(s string) float64 {
		var w float64
		for _, r := range s {
			if isWide(r) {
				w += size
			} else {
				w += size * 0.55
			}
		}
		return w
	}
}

func isWide(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hangul, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r)
}

// Measurer resolves the best available measurer for the style.
func (s Style) Measurer() TextMeasurer {
	if s.FontFile != "" {
		if m, err := NewFontMeasurer(s.FontFile, float64(s.FontSize)); err == nil {
			return m
		}
	}
	return ApproximateMeasurer(float64(s.FontSize))
}

// WrapText breaks text into lines no wider than maxWidth pixels. It splits on
// word boundaries first and falls back to per-rune wrapping for long words and
// for scripts written without spaces.
func WrapText(text string, maxWidth float64, measure TextMeasurer) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if measure(text) <= maxWidth {
		return []string{text}
	}

	words := strings.Fields(text)
	if len(words) <= 1 {
		return wrapRunes(text, maxWidth, measure)
	}

	var lines []string
	var line string
	for _, word := range words {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if measure(candidate) <= maxWidth {
			line = candidate
			continue
		}
		if line != "" {
			lines = append(lines, line)
		}
		if measure(word) <= maxWidth {
			line = word
			continue
		}
		broken := wrapRunes(word, maxWidth, measure)
		lines = append(lines, broken[:len(broken)-1]...)
		line = broken[len(broken)-1]
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

func wrapRunes(text string, maxWidth float64, measure TextMeasurer) []string {
	var lines []string
	var line []rune
	for _, r := range text {
		candidate := append(line, r)
		if len(line) > 0 && measure(string(candidate)) > maxWidth {
			lines = append(lines, string(line))
			line = []rune{r}
			continue
		}
		line = candidate
	}
	if len(line) > 0 {
		lines = append(lines, string(line))
	}
	return lines
}

// BuildASS renders cues as a styled ASS document sized for the given frame.
// Empty cues are skipped. Lines are wrapped to the usable frame width.
func BuildASS(cues []Cue, style Style, frameW, frameH int) string {
	measure := style.Measurer()
	maxWidth := float64(frameW - 2*style.MarginPx)
	if maxWidth <= 0 {
		maxWidth = float64(frameW)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Script Info]\nScriptType: v4.00+\nPlayResX: %d\nPlayResY: %d\nWrapStyle: 2\n\n", frameW, frameH)

	alignment, marginV := style.placement(frameH)
	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, OutlineColour, BackColour, Bold, Italic, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Default,%s,%d,%s,%s,&H00000000,0,0,%.1f,0,%d,%d,%d,%d,1\n\n",
		style.FontName, style.FontSize,
		assColor(style.FillColor), assColor(style.StrokeColor),
		style.StrokeWidth, alignment, style.MarginPx, style.MarginPx, marginV)

	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, cue := range cues {
		text := strings.TrimSpace(cue.Text)
		if text == "" || cue.End <= cue.Start {
			continue
		}
		lines := WrapText(strings.ReplaceAll(text, "\n", " "), maxWidth, measure)
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			assTime(cue.Start), assTime(cue.End), strings.Join(lines, `\N`))
	}
	return b.String()
}

// WriteASSFile writes a styled ASS document next to the pipeline artifacts.
func WriteASSFile(path string, cues []Cue, style Style, frameW, frameH int) error {
	if err := os.WriteFile(path, []byte(BuildASS(cues, style, frameW, frameH)), 0644); err != nil {
		return fmt.Errorf("failed to write styled subtitle %s: %w", path, err)
	}
	return nil
}

func (s Style) placement(frameH int) (alignment, marginV int) {
	switch s.Anchor {
	case AnchorTop:
		return 8, frameH / 20
	case AnchorCenter:
		return 5, 0
	case AnchorCustom:
		pct := s.PositionPct
		if pct < 0 {
			pct = 0
		}
		if pct > 1 {
			pct = 1
		}
		return 8, int(float64(frameH) * pct)
	default:
		return 2, frameH / 20
	}
}

// assColor converts #RRGGBB to the ASS &H00BBGGRR form.
func assColor(hex string) string {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return "&H00FFFFFF"
	}
	r, g, b := hex[0:2], hex[2:4], hex[4:6]
	return fmt.Sprintf("&H00%s%s%s", strings.ToUpper(b), strings.ToUpper(g), strings.ToUpper(r))
}

// assTime renders the h:mm:ss.cs form used by ASS events.
func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := d.Milliseconds() / 10
	hours := cs / 360_000
	cs -= hours * 360_000
	minutes := cs / 6000
	cs -= minutes * 6000
	seconds := cs / 100
	cs -= seconds * 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, seconds, cs)
}
