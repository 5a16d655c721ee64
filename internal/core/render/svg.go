package render

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/viperadnan-git/qrunner/internal/core/quantum"
)

var (
	ErrEmptyCircuit = errors.New("circuit has no gates")
	ErrTooWide      = errors.New("circuit too wide to render")
)

const (
	DefaultMaxColumns = 64

	colWidth  = 48
	rowHeight = 40
	marginX   = 56
	marginY   = 28
	boxSize   = 26
)

const dataURIPrefix = "data:image/svg+xml;base64,"

// SVG draws circuits as SVG diagrams.
type SVG struct {
	MaxColumns int
}

func NewSVG(maxColumns int) *SVG {
	if maxColumns <= 0 {
		maxColumns = DefaultMaxColumns
	}
	return &SVG{MaxColumns: maxColumns}
}

// Render returns the diagram as a base64 data URI.
func (r *SVG) Render(c *quantum.Circuit) (string, error) {
	doc, err := r.Document(c)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString([]byte(doc)), nil
}

// Document returns the raw SVG markup.
func (r *SVG) Document(c *quantum.Circuit) (string, error) {
	if c == nil || len(c.Gates) == 0 {
		return "", ErrEmptyCircuit
	}

	wires := c.Qubits()
	sort.Ints(wires)
	row := make(map[int]int, len(wires))
	for i, q := range wires {
		row[q] = i
	}

	cols, width := layers(c.Gates, row)
	// one extra column for measurement
	if width+1 > r.MaxColumns {
		return "", fmt.Errorf("%w: %d columns, limit %d", ErrTooWide, width+1, r.MaxColumns)
	}

	w := marginX + (width+1)*colWidth + colWidth/2
	h := marginY*2 + (len(wires)-1)*rowHeight
	x := func(col int) int { return marginX + col*colWidth + colWidth/2 }
	y := func(q int) int { return marginY + row[q]*rowHeight }

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="monospace" font-size="13">`, w, h, w, h)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`, w, h)
	for _, q := range wires {
		fmt.Fprintf(&b, `<text x="6" y="%d" dominant-baseline="middle">q%d</text>`, y(q), q)
		fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#555"/>`, marginX, y(q), w-colWidth/4, y(q))
	}

	for i, g := range c.Gates {
		cx := x(cols[i])
		switch {
		case len(g.Qubits) == 1:
			box(&b, cx, y(g.Qubits[0]), strings.ToUpper(g.Name), "#3b82f6")
		case g.Name == quantum.GateCZ:
			vertical(&b, cx, y(g.Qubits[0]), y(g.Qubits[1]))
			dot(&b, cx, y(g.Qubits[0]))
			dot(&b, cx, y(g.Qubits[1]))
		case g.Name == quantum.GateCX:
			vertical(&b, cx, y(g.Qubits[0]), y(g.Qubits[1]))
			dot(&b, cx, y(g.Qubits[0]))
			target(&b, cx, y(g.Qubits[1]))
		case g.Name == quantum.GateSwap:
			vertical(&b, cx, y(g.Qubits[0]), y(g.Qubits[1]))
			cross(&b, cx, y(g.Qubits[0]))
			cross(&b, cx, y(g.Qubits[1]))
		default:
			for _, q := range g.Qubits {
				box(&b, cx, y(q), g.Name, "#6b7280")
			}
		}
	}
	for bit, q := range c.Measure {
		box(&b, x(width), y(q), fmt.Sprintf("M%d", bit), "#f59e0b")
	}
	b.WriteString(`</svg>`)
	return b.String(), nil
}

// layers assigns each gate the first column after every earlier gate on the
// wires it spans, and returns the assignment and the column count.
func layers(gates []quantum.Gate, row map[int]int) ([]int, int) {
	next := make([]int, len(row))
	cols := make([]int, len(gates))
	width := 0
	for i, g := range gates {
		lo, hi := row[g.Qubits[0]], row[g.Qubits[0]]
		for _, q := range g.Qubits[1:] {
			lo, hi = min(lo, row[q]), max(hi, row[q])
		}
		col := 0
		for r := lo; r <= hi; r++ {
			col = max(col, next[r])
		}
		for r := lo; r <= hi; r++ {
			next[r] = col + 1
		}
		cols[i] = col
		width = max(width, col+1)
	}
	return cols, width
}

func box(b *strings.Builder, cx, cy int, label, fill string) {
	fmt.Fprintf(b, `<rect x="%d" y="%d" width="%d" height="%d" rx="3" fill="%s"/>`, cx-boxSize/2, cy-boxSize/2, boxSize, boxSize, fill)
	fmt.Fprintf(b, `<text x="%d" y="%d" fill="#fff" text-anchor="middle" dominant-baseline="middle">%s</text>`, cx, cy, label)
}

func vertical(b *strings.Builder, cx, y1, y2 int) {
	fmt.Fprintf(b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#111" stroke-width="2"/>`, cx, y1, cx, y2)
}

func dot(b *strings.Builder, cx, cy int) {
	fmt.Fprintf(b, `<circle cx="%d" cy="%d" r="5" fill="#111"/>`, cx, cy)
}

func target(b *strings.Builder, cx, cy int) {
	fmt.Fprintf(b, `<circle cx="%d" cy="%d" r="10" fill="#fff" stroke="#111" stroke-width="2"/>`, cx, cy)
	fmt.Fprintf(b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#111" stroke-width="2"/>`, cx-10, cy, cx+10, cy)
	fmt.Fprintf(b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#111" stroke-width="2"/>`, cx, cy-10, cx, cy+10)
}

func cross(b *strings.Builder, cx, cy int) {
	fmt.Fprintf(b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#111" stroke-width="2"/>`, cx-6, cy-6, cx+6, cy+6)
	fmt.Fprintf(b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#111" stroke-width="2"/>`, cx-6, cy+6, cx+6, cy-6)
}
