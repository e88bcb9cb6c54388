// Package render draws scene graphs. Nodes are first flattened into screen
// space primitives, which the Gio painter and the PNG rasterizer then draw.
package render

import (
	"image/color"
	"math"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

// Kind is the primitive type.
type Kind int

const (
	KindPolyline Kind = iota
	KindPolygon
	KindText
)

// Primitive is one screen space drawing instruction. Points and Width are in
// pixels.
type Primitive struct {
	Kind   Kind
	Points []scene.Point
	Width  float64
	Color  color.NRGBA
	Text   string
	// Size is the text height in pixels.
	Size   float64
	NodeID string
}

const (
	circleSegments = 24
	minStroke      = 1.0
	minTextPx      = 6.0
	maxTextPx      = 48.0
)

// Flatten converts every node of g into primitives seen through v.
func Flatten(g scene.Graph, v *scene.Viewport, th Theme) []Primitive {
	var out []Primitive
	for _, n := range g.Nodes() {
		t, err := g.WorldTransform(n.ID)
		if err != nil {
			continue
		}
		toScreen := func(p scene.Point) scene.Point {
			return v.WorldToScreen(t.Apply(p))
		}
		c := th.color(n)
		width := math.Max(minStroke, th.width(n)*v.Zoom)
		dash := scaleDash(th.dash(n), v.Zoom)

		for _, s := range n.Shapes {
			var pts []scene.Point
			closed := false
			switch s.Kind {
			case "line", "polyline":
				pts = mapPoints(s.Points, toScreen)
			case "rect":
				if len(s.Points) < 2 {
					continue
				}
				a, b := s.Points[0], s.Points[1]
				pts = mapPoints([]scene.Point{a, {X: b.X, Y: a.Y}, b, {X: a.X, Y: b.Y}}, toScreen)
				closed = true
			case "circle":
				if len(s.Points) < 1 {
					continue
				}
				pts = mapPoints(circle(s.Points[0], s.Radius), toScreen)
				closed = true
			default:
				continue
			}
			if len(pts) < 2 {
				continue
			}
			if closed && s.Filled {
				out = append(out, Primitive{Kind: KindPolygon, Points: pts, Color: c, NodeID: n.ID})
				continue
			}
			if closed {
				pts = append(pts, pts[0])
			}
			for _, seg := range Dashes(pts, dash) {
				out = append(out, Primitive{Kind: KindPolyline, Points: seg, Width: width, Color: c, NodeID: n.ID})
			}
		}

		if l, ok := n.Label(); ok && l.Text != "" {
			size := th.LabelSize * v.Zoom
			if size < minTextPx {
				continue
			}
			out = append(out, Primitive{
				Kind:   KindText,
				Points: []scene.Point{toScreen(scene.Point{})},
				Color:  c,
				Text:   l.Text,
				Size:   math.Min(size, maxTextPx),
				NodeID: n.ID,
			})
		}
	}
	return out
}

func mapPoints(pts []scene.Point, f func(scene.Point) scene.Point) []scene.Point {
	out := make([]scene.Point, len(pts))
	for i, p := range pts {
		out[i] = f(p)
	}
	return out
}

func circle(c scene.Point, r float64) []scene.Point {
	pts := make([]scene.Point, circleSegments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / circleSegments
		pts[i] = scene.Point{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)}
	}
	return pts
}

func scaleDash(dash []float64, zoom float64) []float64 {
	if len(dash) == 0 {
		return nil
	}
	out := make([]float64, len(dash))
	for i, d := range dash {
		out[i] = d * zoom
	}
	return out
}

// Dashes splits a polyline into its drawn pieces. pattern alternates on and
// off lengths; an empty or non-positive pattern returns the polyline whole.
func Dashes(pts []scene.Point, pattern []float64) [][]scene.Point {
	total := 0.0
	for _, d := range pattern {
		if d < 0 {
			return [][]scene.Point{pts}
		}
		total += d
	}
	if len(pattern) == 0 || total <= 0 || len(pts) < 2 {
		return [][]scene.Point{pts}
	}

	var (
		out    [][]scene.Point
		cur    = []scene.Point{pts[0]}
		idx    int
		remain = pattern[0]
		on     = true
	)
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		segLen := math.Sqrt(a.Dist2(b))
		pos := 0.0
		for segLen-pos > remain {
			pos += remain
			f := pos / segLen
			p := scene.Point{X: a.X + (b.X-a.X)*f, Y: a.Y + (b.Y-a.Y)*f}
			if on {
				cur = append(cur, p)
				out = append(out, cur)
				cur = nil
			} else {
				cur = []scene.Point{p}
			}
			on = !on
			idx = (idx + 1) % len(pattern)
			remain = pattern[idx]
		}
		remain -= segLen - pos
		if on {
			cur = append(cur, b)
		}
	}
	if on && len(cur) > 1 {
		out = append(out, cur)
	}
	return out
}
