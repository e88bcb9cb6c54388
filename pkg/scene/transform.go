package scene

import (
	"math"

	"gioui.org/f32"
)

// Transform is a rotation about the origin followed by a translation, the
// placement of a node inside its parent.
type Transform struct {
	Translate Point
	// Rotate in degrees.
	Rotate float64
}

// Apply maps a node-local position into the parent frame.
func (t Transform) Apply(p Point) Point {
	return RotateDeg(p, t.Rotate).Add(t.Translate)
}

// ApplyInverse maps a parent-frame position into the node-local frame.
func (t Transform) ApplyInverse(p Point) Point {
	return RotateDeg(p.Sub(t.Translate), -t.Rotate)
}

// Affine returns the same transform as a Gio affine matrix.
func (t Transform) Affine() f32.Affine2D {
	return f32.Affine2D{}.
		Rotate(f32.Pt(0, 0), float32(t.Rotate*math.Pi/180)).
		Offset(t.Translate.F32())
}

// RotateDeg rotates p about the origin by deg degrees. Multiples of 90 are
// exact.
func RotateDeg(p Point, deg float64) Point {
	switch math.Mod(math.Mod(deg, 360)+360, 360) {
	case 0:
		return p
	case 90:
		return Point{X: -p.Y, Y: p.X}
	case 180:
		return Point{X: -p.X, Y: -p.Y}
	case 270:
		return Point{X: p.Y, Y: -p.X}
	}
	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return Point{X: p.X*cos - p.Y*sin, Y: p.X*sin + p.Y*cos}
}

// F32 converts p for Gio drawing.
func (p Point) F32() f32.Point {
	return f32.Pt(float32(p.X), float32(p.Y))
}

func (n Node) transform() Transform {
	return Transform{Translate: n.Position, Rotate: n.Rotation}
}
