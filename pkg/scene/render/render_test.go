package render

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

func TestDashes(t *testing.T) {
	line := []scene.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}

	got := Dashes(line, []float64{2, 2})
	require.Len(t, got, 3)
	assert.Equal(t, []scene.Point{{X: 0}, {X: 2}}, got[0])
	assert.Equal(t, []scene.Point{{X: 4}, {X: 6}}, got[1])
	assert.Equal(t, []scene.Point{{X: 8}, {X: 10}}, got[2])

	assert.Equal(t, [][]scene.Point{line}, Dashes(line, nil))
	assert.Equal(t, [][]scene.Point{line}, Dashes(line, []float64{0, 0}))
}

func TestFlattenRoles(t *testing.T) {
	g := scene.NewMemoryGraph()
	require.NoError(t, g.Add(scene.Node{
		ID:       "comp",
		Position: scene.Point{X: 5, Y: 5},
		Shapes:   []scene.Shape{{Kind: "rect", Points: []scene.Point{{X: -1, Y: -1}, {X: 1, Y: 1}}}},
		Data:     scene.ComponentData{ComponentID: "R1"},
	}))
	require.NoError(t, g.Add(scene.Node{
		ID:     "rat",
		Shapes: []scene.Shape{{Kind: "line", Points: []scene.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}}},
		Data:   scene.RatsnestData{ConnectionID: "c1"},
	}))
	require.NoError(t, g.Add(scene.Node{
		ID:       "label",
		Parent:   "comp",
		Position: scene.Point{X: 0, Y: -2},
		Data:     scene.LabelData{Text: "R1"},
	}))

	v := scene.NewViewport(100, 100)
	v.Center = scene.Point{X: 5, Y: 5}
	th := DefaultTheme()
	prims := Flatten(g, v, th)

	var rect, dashes, texts int
	for _, p := range prims {
		switch {
		case p.NodeID == "comp":
			rect++
			assert.Len(t, p.Points, 5, "closed outline")
			assert.Equal(t, th.Colors[scene.RoleComponent], p.Color)
		case p.NodeID == "rat":
			dashes++
		case p.Kind == KindText:
			texts++
			assert.Equal(t, scene.Point{X: 50, Y: 30}, p.Points[0])
		}
	}
	assert.Equal(t, 1, rect)
	assert.Greater(t, dashes, 1)
	assert.Equal(t, 1, texts)
}

func TestThumbnail(t *testing.T) {
	g := scene.NewMemoryGraph()
	require.NoError(t, g.Add(scene.Node{
		ID:     "wire",
		Shapes: []scene.Shape{{Kind: "line", Points: []scene.Point{{X: 0, Y: 0}, {X: 20, Y: 0}}}},
		Style:  scene.Style{Color: color.NRGBA{R: 255, A: 255}, Width: 1},
		Data:   scene.WireData{ConnectionID: "c1"},
	}))

	img := Thumbnail(64, 32, DefaultTheme(), g)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())

	r, _, _, _ := img.At(32, 16).RGBA()
	assert.Greater(t, r>>8, uint32(128), "wire crosses the middle")

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, img))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestThemeByName(t *testing.T) {
	th, ok := ThemeByName("nord")
	require.True(t, ok)
	assert.Equal(t, "nord", th.Name)
	_, ok = ThemeByName("neon")
	assert.False(t, ok)
	assert.Equal(t, []string{"classic", "nord"}, ThemeNames())
}
