package widgets

import (
	"fmt"
	"strings"

	"go-piano/keymap"
)

// ChartRow is one pitch of a binding chart and the key that plays it
type ChartRow struct {
	Note string
	Key  string
}

// ChartSection is one octave of a binding chart
type ChartSection struct {
	Title string
	Rows  []ChartRow
}

// BindingChart groups every pitch of l by octave with the key bound to it in
// b. Unbound pitches show "-".
func BindingChart(l keymap.Layout, b keymap.Bindings) []ChartSection {
	low, high := l.Range()
	byOffset := make(map[int]string, len(b))
	for k, off := range b {
		byOffset[off] = k
	}

	var sections []ChartSection
	octave := -2
	for p := low; p <= high; p++ {
		if o := p/12 - 1; o != octave {
			octave = o
			sections = append(sections, ChartSection{Title: fmt.Sprintf("octave %d", o)})
		}
		k, ok := byOffset[p-low]
		if !ok {
			k = "-"
		}
		sec := &sections[len(sections)-1]
		sec.Rows = append(sec.Rows, ChartRow{Note: keymap.NoteName(p), Key: k})
	}
	return sections
}

// RenderChart lays the sections out as plain text, one pitch per line
func RenderChart(sections []ChartSection) string {
	var lines []string
	for _, sec := range sections {
		lines = append(lines, sec.Title)
		for _, r := range sec.Rows {
			lines = append(lines, fmt.Sprintf("  %-4s %s", r.Note, r.Key))
		}
	}
	return strings.Join(lines, "\n")
}
