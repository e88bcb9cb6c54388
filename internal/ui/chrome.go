package ui

import (
	"image/color"

	"gioui.org/widget/material"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene/render"
)

var white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// chrome holds the colors of everything around the canvas. The sidebar
// reuses the canvas background so the two read as one surface; panels are
// washed-out tints of it.
type chrome struct {
	Window    color.NRGBA
	Nav       color.NRGBA
	NavHover  color.NRGBA
	NavText   color.NRGBA
	Panel     color.NRGBA
	Splitter  color.NRGBA
	StatusBar color.NRGBA
	Text      color.NRGBA
	Error     color.NRGBA

	schematic color.NRGBA
	board     color.NRGBA
}

func chromeFor(th render.Theme) chrome {
	bg := th.Background
	opaque := func(c color.NRGBA) color.NRGBA { c.A = 255; return c }
	return chrome{
		Window:    mix(bg, white, 0.93),
		Nav:       bg,
		NavHover:  mix(bg, white, 0.12),
		NavText:   opaque(th.Colors[scene.RoleLabel]),
		Panel:     mix(bg, white, 0.90),
		Splitter:  mix(bg, white, 0.75),
		StatusBar: mix(bg, white, 0.86),
		Text:      mix(bg, color.NRGBA{A: 255}, 0.6),
		Error:     mix(opaque(th.Colors[scene.RoleProvisional]), color.NRGBA{A: 255}, 0.2),
		schematic: mix(opaque(th.Colors[scene.RoleRatsnest]), bg, 0.35),
		board:     mix(opaque(th.Colors[scene.RoleWire]), bg, 0.35),
	}
}

// Accent is the highlight color for a view's navigation entry.
func (c chrome) Accent(view circuit.View) color.NRGBA {
	if view == circuit.ViewBoard {
		return c.board
	}
	return c.schematic
}

func (c chrome) palette() material.Palette {
	return material.Palette{
		Bg:         c.Panel,
		Fg:         c.Text,
		ContrastBg: c.schematic,
		ContrastFg: white,
	}
}

// mix blends a toward b by t in [0,1].
func mix(a, b color.NRGBA, t float64) color.NRGBA {
	lerp := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5) }
	return color.NRGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: lerp(a.A, b.A)}
}
