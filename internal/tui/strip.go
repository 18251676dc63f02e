package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/SamSkjord/uvc-radar-overlay/internal/overtake"
	"github.com/SamSkjord/uvc-radar-overlay/internal/pipeline"
)

const (
	chevron    = '▼'
	arrowLeft  = "◀◀"
	arrowRight = "▶▶"
	// labelRows is the number of rows a marker occupies below its chevron.
	labelRows = 2
)

type cell struct {
	r     rune
	style *lipgloss.Style
}

type canvas struct {
	w, h  int
	cells [][]cell
}

func newCanvas(w, h int) *canvas {
	c := &canvas{w: w, h: h, cells: make([][]cell, h)}
	for y := range c.cells {
		row := make([]cell, w)
		for x := range row {
			row[x] = cell{r: ' '}
		}
		c.cells[y] = row
	}
	return c
}

func (c *canvas) put(x, y int, r rune, st *lipgloss.Style) {
	if x < 0 || y < 0 || x >= c.w || y >= c.h {
		return
	}
	c.cells[y][x] = cell{r: r, style: st}
}

// text writes s centred on column cx, shifted to stay inside the canvas.
func (c *canvas) text(cx, y int, s string, st *lipgloss.Style) {
	runes := []rune(s)
	x := cx - len(runes)/2
	if x+len(runes) > c.w {
		x = c.w - len(runes)
	}
	if x < 0 {
		x = 0
	}
	for i, r := range runes {
		c.put(x+i, y, r, st)
	}
}

func (c *canvas) String() string {
	var b strings.Builder
	for y, row := range c.cells {
		if y > 0 {
			b.WriteByte('\n')
		}
		var run strings.Builder
		var cur *lipgloss.Style
		flush := func() {
			if run.Len() == 0 {
				return
			}
			st := styleStrip
			if cur != nil {
				st = cur.Inherit(styleStrip)
			}
			b.WriteString(st.Render(run.String()))
			run.Reset()
		}
		for _, cl := range row {
			if cl.style != cur {
				flush()
				cur = cl.style
			}
			run.WriteRune(cl.r)
		}
		flush()
	}
	return b.String()
}

// column maps a normalised screen coordinate onto [0, n-1].
func column(v float64, n int) int {
	if n <= 1 {
		return 0
	}
	i := int(math.Round(v * float64(n-1)))
	return max(0, min(n-1, i))
}

// RenderStrip draws the camera strip: one chevron per marker with its range
// and speed labels below, and an arrow at the edge for each visible overtake
// indicator.
func RenderStrip(width, height int, frame pipeline.RenderFrame) string {
	if width < 8 || height < labelRows+1 {
		return ""
	}
	c := newCanvas(width, height)

	// Farthest first so the nearest marker ends up on top.
	for i := len(frame.Markers) - 1; i >= 0; i-- {
		m := frame.Markers[i]
		st := markerStyle(m.Class)
		x := column(m.ScreenX, width)
		y := column(m.ScreenY, height-labelRows)
		c.put(x, y, chevron, &st)
		c.text(x, y+1, m.Label.Range(), &styleLabel)
		c.text(x, y+2, m.Label.Speed(), &styleLabel)
	}

	mid := height / 2
	for _, ind := range frame.Visible() {
		if ind.RenderSide == overtake.Left {
			c.text(1, mid, arrowLeft, &styleArrow)
		} else {
			c.text(width-1, mid, arrowRight, &styleArrow)
		}
	}
	return c.String()
}
