package components

import (
	"strings"

	"github.com/theirongolddev/kas/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders one block per value, scaled to the largest value.
// Zero renders as a space so quiet days stand out.
func Sparkline(values []int64, color lipgloss.Color) string {
	if len(values) == 0 {
		return ""
	}
	t := theme.Active

	var peak int64
	for _, v := range values {
		peak = max(peak, v)
	}

	style := lipgloss.NewStyle().Foreground(color).Background(t.Surface)

	var buf strings.Builder
	buf.Grow(len(values) * 3)
	for _, v := range values {
		if v <= 0 || peak == 0 {
			buf.WriteRune(' ')
			continue
		}
		idx := int(v * int64(len(sparkBlocks)-1) / peak)
		buf.WriteRune(sparkBlocks[min(idx, len(sparkBlocks)-1)])
	}
	return style.Render(buf.String())
}
