package render

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

// supersample is the oversampling factor used before downscaling thumbnails.
const supersample = 2

// Rasterize draws prims onto a new image of the given size.
func Rasterize(prims []Primitive, width, height int, background color.NRGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, xdraw.Src)

	z := vector.NewRasterizer(width, height)
	for _, prim := range prims {
		src := image.NewUniform(prim.Color)
		switch prim.Kind {
		case KindPolyline:
			for i := 1; i < len(prim.Points); i++ {
				z.Reset(width, height)
				strokeSegment(z, prim.Points[i-1], prim.Points[i], prim.Width)
				z.Draw(img, img.Bounds(), src, image.Point{})
			}
		case KindPolygon:
			z.Reset(width, height)
			z.MoveTo(float32(prim.Points[0].X), float32(prim.Points[0].Y))
			for _, p := range prim.Points[1:] {
				z.LineTo(float32(p.X), float32(p.Y))
			}
			z.ClosePath()
			z.Draw(img, img.Bounds(), src, image.Point{})
		case KindText:
			d := font.Drawer{
				Dst:  img,
				Src:  src,
				Face: basicfont.Face7x13,
				Dot:  fixed.P(int(prim.Points[0].X), int(prim.Points[0].Y)),
			}
			d.DrawString(prim.Text)
		}
	}
	return img
}

// strokeSegment adds the quad covering a line of width w from a to b.
func strokeSegment(z *vector.Rasterizer, a, b scene.Point, w float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx, ny := -dy/length*w/2, dx/length*w/2
	z.MoveTo(float32(a.X+nx), float32(a.Y+ny))
	z.LineTo(float32(b.X+nx), float32(b.Y+ny))
	z.LineTo(float32(b.X-nx), float32(b.Y-ny))
	z.LineTo(float32(a.X-nx), float32(a.Y-ny))
	z.ClosePath()
}

// Thumbnail renders every graph, fitted to the image, at width x height.
func Thumbnail(width, height int, th Theme, graphs ...scene.Graph) *image.RGBA {
	big := scene.NewViewport(width*supersample, height*supersample)
	if box, ok := unionBounds(graphs); ok {
		big.Fit(box)
	}
	var prims []Primitive
	for _, g := range graphs {
		prims = append(prims, Flatten(g, big, th)...)
	}
	large := Rasterize(prims, width*supersample, height*supersample, th.Background)

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(out, out.Bounds(), large, large.Bounds(), xdraw.Src, nil)
	return out
}

// WritePNG encodes img.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

func unionBounds(graphs []scene.Graph) (scene.Rect, bool) {
	var (
		box   scene.Rect
		found bool
	)
	for _, g := range graphs {
		b, ok := scene.Bounds(g)
		if !ok {
			continue
		}
		if !found {
			box, found = b, true
			continue
		}
		box.Min.X = math.Min(box.Min.X, b.Min.X)
		box.Min.Y = math.Min(box.Min.Y, b.Min.Y)
		box.Max.X = math.Max(box.Max.X, b.Max.X)
		box.Max.Y = math.Max(box.Max.Y, b.Max.Y)
	}
	if found {
		// Pad so strokes on the edge stay visible.
		box.Min = box.Min.Sub(scene.Point{X: 2, Y: 2})
		box.Max = box.Max.Add(scene.Point{X: 2, Y: 2})
	}
	return box, found
}
