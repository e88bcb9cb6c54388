package scene

import (
	"math"

	"gioui.org/f32"
)

// Viewport maps scene millimeters to screen pixels.
type Viewport struct {
	// Center is the scene position shown in the middle of the screen.
	Center Point
	// Zoom in pixels per millimeter.
	Zoom float64

	ScreenWidth  int
	ScreenHeight int
}

const (
	minZoom = 0.1
	maxZoom = 1000
)

// NewViewport returns a viewport at 10 px/mm centered on the origin.
func NewViewport(width, height int) *Viewport {
	return &Viewport{Zoom: 10, ScreenWidth: width, ScreenHeight: height}
}

// WorldToScreen converts a scene position to pixels.
func (v *Viewport) WorldToScreen(p Point) Point {
	return Point{
		X: (p.X-v.Center.X)*v.Zoom + float64(v.ScreenWidth)/2,
		Y: (p.Y-v.Center.Y)*v.Zoom + float64(v.ScreenHeight)/2,
	}
}

// ScreenToWorld converts pixels to a scene position.
func (v *Viewport) ScreenToWorld(p Point) Point {
	return Point{
		X: (p.X-float64(v.ScreenWidth)/2)/v.Zoom + v.Center.X,
		Y: (p.Y-float64(v.ScreenHeight)/2)/v.Zoom + v.Center.Y,
	}
}

// PixelsToWorld converts a screen distance to millimeters at the current zoom.
func (v *Viewport) PixelsToWorld(px float64) float64 {
	if v.Zoom <= 0 {
		return px
	}
	return px / v.Zoom
}

// Pan moves the view by a screen pixel offset.
func (v *Viewport) Pan(dx, dy float64) {
	v.Center.X -= dx / v.Zoom
	v.Center.Y -= dy / v.Zoom
}

// ZoomAt scales by factor keeping the scene point under screen position at
// rest.
func (v *Viewport) ZoomAt(screen Point, factor float64) {
	before := v.ScreenToWorld(screen)
	v.Zoom = math.Min(maxZoom, math.Max(minZoom, v.Zoom*factor))
	after := v.ScreenToWorld(screen)
	v.Center = v.Center.Add(before.Sub(after))
}

// Fit centers bounds and zooms so they fill 90% of the screen.
func (v *Viewport) Fit(bounds Rect) {
	w, h := bounds.Max.X-bounds.Min.X, bounds.Max.Y-bounds.Min.Y
	if w <= 0 || h <= 0 || v.ScreenWidth == 0 || v.ScreenHeight == 0 {
		return
	}
	v.Center = Point{X: (bounds.Min.X + bounds.Max.X) / 2, Y: (bounds.Min.Y + bounds.Max.Y) / 2}
	v.Zoom = math.Min(float64(v.ScreenWidth)*0.9/w, float64(v.ScreenHeight)*0.9/h)
}

// Resize updates the screen dimensions.
func (v *Viewport) Resize(width, height int) {
	v.ScreenWidth = width
	v.ScreenHeight = height
}

// VisibleBounds returns the scene area on screen.
func (v *Viewport) VisibleBounds() Rect {
	return Rect{
		Min: v.ScreenToWorld(Point{}),
		Max: v.ScreenToWorld(Point{X: float64(v.ScreenWidth), Y: float64(v.ScreenHeight)}),
	}
}

// Affine returns the world-to-screen mapping as a Gio transform.
func (v *Viewport) Affine() f32.Affine2D {
	z := float32(v.Zoom)
	return f32.Affine2D{}.
		Offset(f32.Pt(float32(-v.Center.X), float32(-v.Center.Y))).
		Scale(f32.Pt(0, 0), f32.Pt(z, z)).
		Offset(f32.Pt(float32(v.ScreenWidth)/2, float32(v.ScreenHeight)/2))
}
