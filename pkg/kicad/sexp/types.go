// Package sexp provides navigation helpers over parsed KiCad s-expressions,
// shared by the symbol library and footprint readers.
package sexp

// Symbol libraries and footprints both store coordinates in millimeters and
// angles in degrees.

// Position is a 2D coordinate in millimeters.
type Position struct {
	X float64
	Y float64
}

// Angle is a rotation in degrees.
type Angle float64

// PositionAngle is an (at X Y [angle]) node.
type PositionAngle struct {
	Position
	Angle Angle
}

// Size is a (size W H) node.
type Size struct {
	Width  float64
	Height float64
}

// Property is a (property "key" "value" ...) node.
type Property struct {
	Key   string
	Value string
	Hide  bool
}
