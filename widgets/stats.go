package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-piano/performance"
)

// RenderStats renders the stats bar: "volume 060%  sustain OFF  kps 00.0 ..."
func RenderStats(snap performance.Snapshot, volume float64, name, value lipgloss.Color) string {
	stats := snap.Stats(volume)
	nameStyle := lipgloss.NewStyle().Foreground(name)
	valueStyle := lipgloss.NewStyle().Foreground(value).Bold(true)

	parts := make([]string, 0, len(performance.StatsOrder))
	for _, k := range performance.StatsOrder {
		parts = append(parts, nameStyle.Render(k)+" "+valueStyle.Render(stats[k]))
	}
	return strings.Join(parts, "  ")
}
