package library

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/kicad/sexp"
)

const resistorLib = `(kicad_symbol_lib
	(version 20231120)
	(generator "kicad_symbol_editor")
	(symbol "R"
		(pin_numbers hide)
		(exclude_from_sim no)
		(in_bom yes)
		(on_board yes)
		(property "Reference" "R" (at 2.032 0 90) (effects (font (size 1.27 1.27))))
		(property "Value" "R" (at 0 0 90) (effects (font (size 1.27 1.27))))
		(property "Footprint" "Resistor_SMD:R_0805_2012Metric" (at -1.778 0 90) (effects (font (size 1.27 1.27)) hide))
		(symbol "R_0_1"
			(rectangle (start -1.016 -2.54) (end 1.016 2.54) (stroke (width 0.254) (type default)) (fill (type none)))
		)
		(symbol "R_1_1"
			(pin passive line (at 0 3.81 270) (length 1.27) (name "~" (effects (font (size 1.27 1.27)))) (number "1" (effects (font (size 1.27 1.27)))))
			(pin passive line (at 0 -3.81 90) (length 1.27) (name "~" (effects (font (size 1.27 1.27)))) (number "2" (effects (font (size 1.27 1.27)))))
		)
	)
)`

const resistorFootprint = `(footprint "R_0805_2012Metric"
	(version 20240108)
	(layer "F.Cu")
	(pad "1" smd roundrect (at -0.9125 0) (size 1.025 1.4) (layers "F.Cu" "F.Paste" "F.Mask") (roundrect_rratio 0.243902))
	(pad "2" smd roundrect (at 0.9125 0) (size 1.025 1.4) (layers "F.Cu" "F.Paste" "F.Mask") (roundrect_rratio 0.243902))
	(pad "" np_thru_hole circle (at 0 2) (size 1 1) (drill 1) (layers "*.Cu"))
)`

func TestParseSymbols(t *testing.T) {
	symbols, err := ParseSymbols(strings.NewReader(resistorLib))
	require.NoError(t, err)
	require.Len(t, symbols, 1)

	r := symbols[0]
	assert.Equal(t, "R", r.Name)
	assert.Equal(t, "R", r.Reference())
	lib, name := r.Footprint()
	assert.Equal(t, "Resistor_SMD", lib)
	assert.Equal(t, "R_0805_2012Metric", name)
	assert.True(t, r.InBom)

	require.Len(t, r.Pins, 2)
	assert.Equal(t, Pin{
		Number:   "1",
		Name:     "~",
		Type:     "passive",
		Position: sexp.Position{X: 0, Y: 3.81},
		Angle:    270,
		Length:   1.27,
	}, r.Pins[0])

	require.Len(t, r.Graphics, 1)
	assert.Equal(t, "rectangle", r.Graphics[0].Kind)
}

func TestParseSymbolsRejectsOtherDocuments(t *testing.T) {
	_, err := ParseSymbols(strings.NewReader(`(kicad_sch (version 1))`))
	assert.Error(t, err)

	_, err = ParseSymbols(strings.NewReader(`(kicad_symbol_lib (symbol "Empty"))`))
	assert.ErrorContains(t, err, "no pins")
}

func TestParseFootprint(t *testing.T) {
	fp, err := ParseFootprint(strings.NewReader(resistorFootprint))
	require.NoError(t, err)
	assert.Equal(t, "R_0805_2012Metric", fp.Name)
	require.Len(t, fp.Pads, 3)
	assert.Equal(t, sexp.Size{Width: 1.025, Height: 1.4}, fp.Pads[0].Size)

	offsets := fp.PadOffsets()
	assert.Equal(t, map[string]sexp.Position{
		"1": {X: -0.9125, Y: 0},
		"2": {X: 0.9125, Y: 0},
	}, offsets)
}

func TestParseFootprintMissingPosition(t *testing.T) {
	_, err := ParseFootprint(strings.NewReader(`(footprint "X" (pad "1" smd rect (size 1 1)))`))
	assert.ErrorContains(t, err, "missing required 'at'")
}
