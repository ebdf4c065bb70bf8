package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/conceptlab/conceptci/internal/quotes"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

var (
	headerColor = color.New(color.FgCyan)
	dimColor    = color.New(color.Faint)
	upColor     = color.New(color.FgRed)
	downColor   = color.New(color.FgGreen)
)

// table writes aligned columns. Widths are measured in terminal cells so
// CJK stock names line up.
type table struct {
	headers []string
	rows    [][]string
	// right marks numeric columns.
	right map[int]bool
}

func newTable(headers ...string) *table {
	return &table{headers: headers, right: map[int]bool{}}
}

func (t *table) alignRight(cols ...int) *table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) widths() []int {
	w := make([]int, len(t.headers))
	for i, h := range t.headers {
		w[i] = runewidth.StringWidth(h)
	}
	for _, r := range t.rows {
		for i, c := range r {
			if i < len(w) {
				w[i] = max(w[i], runewidth.StringWidth(c))
			}
		}
	}
	return w
}

// render writes the table. colorize, when non-nil, may wrap a padded cell
// of a data row in color.
func (t *table) render(w io.Writer, colorize func(row, col int, padded string) string) {
	widths := t.widths()

	cells := make([]string, len(t.headers))
	for i, h := range t.headers {
		cells[i] = t.pad(h, i, widths[i])
	}
	headerColor.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " ")) //nolint:errcheck

	total := 0
	for _, wd := range widths {
		total += wd
	}
	dimColor.Fprintln(w, strings.Repeat("-", total+2*(len(widths)-1))) //nolint:errcheck

	for ri, r := range t.rows {
		cells := make([]string, len(t.headers))
		for i := range t.headers {
			c := ""
			if i < len(r) {
				c = r[i]
			}
			cells[i] = t.pad(c, i, widths[i])
			if colorize != nil {
				cells[i] = colorize(ri, i, cells[i])
			}
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " ")) //nolint:errcheck
	}
}

func (t *table) pad(s string, col, width int) string {
	gap := width - runewidth.StringWidth(s)
	if gap <= 0 {
		return s
	}
	if t.right[col] {
		return strings.Repeat(" ", gap) + s
	}
	return s + strings.Repeat(" ", gap)
}

// directionColor returns the color for a price move. A-share convention
// shows gains in red and losses in green.
func directionColor(d quotes.Direction) *color.Color {
	switch d {
	case quotes.Up:
		return upColor
	case quotes.Down:
		return downColor
	default:
		return nil
	}
}

// colorMove colors s by the sign of change.
func colorMove(change float64, s string) string {
	switch {
	case change > 0:
		return upColor.Sprint(s)
	case change < 0:
		return downColor.Sprint(s)
	default:
		return s
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.6g", v)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}
