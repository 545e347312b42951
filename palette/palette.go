package palette

import (
	"image/color"

	"github.com/charmbracelet/lipgloss"
)

type Color struct {
	Name string
	RGBA color.RGBA
	Term lipgloss.Color // terminal swatch
}

// Segment is the subset of a recognised word span the classifier needs:
// its byte offset into the formatted transcript.
type Segment struct {
	Offset int
}

var ordered = []Color{
	{"red", color.RGBA{255, 0, 0, 255}, lipgloss.Color("#FF0000")},
	{"orange", color.RGBA{255, 128, 0, 255}, lipgloss.Color("#FF8000")},
	{"yellow", color.RGBA{255, 255, 0, 255}, lipgloss.Color("#FFFF00")},
	{"green", color.RGBA{0, 255, 0, 255}, lipgloss.Color("#00FF00")},
	{"blue", color.RGBA{0, 0, 255, 255}, lipgloss.Color("#0000FF")},
	{"purple", color.RGBA{128, 0, 128, 255}, lipgloss.Color("#800080")},
	{"black", color.RGBA{0, 0, 0, 255}, lipgloss.Color("#000000")},
	{"white", color.RGBA{255, 255, 255, 255}, lipgloss.Color("#FFFFFF")},
	{"gray", color.RGBA{128, 128, 128, 255}, lipgloss.Color("#808080")},
}

var lookup = func() map[string]Color {
	m := make(map[string]Color, len(ordered))
	for _, c := range ordered {
		m[c.Name] = c
	}
	return m
}()

// Initial is the swatch shown before any colour has been said.
var Initial = Color{Name: "", RGBA: color.RGBA{48, 48, 48, 255}, Term: lipgloss.Color("236")}

// Classify matches text exactly (case-sensitive, untrimmed) against the
// nine colour names.
func Classify(text string) (Color, bool) {
	c, ok := lookup[text]
	return c, ok
}

// Names returns the colour names in display order.
func Names() []string {
	names := make([]string, len(ordered))
	for i, c := range ordered {
		names[i] = c.Name
	}
	return names
}

// LastSegment returns text from the start of the last segment onward.
// With no segments the result is empty.
func LastSegment(text string, segs []Segment) string {
	if len(segs) == 0 {
		return ""
	}
	off := segs[len(segs)-1].Offset
	if off < 0 {
		off = 0
	}
	if off > len(text) {
		off = len(text)
	}
	return text[off:]
}
