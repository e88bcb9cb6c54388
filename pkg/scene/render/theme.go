package render

import (
	"image/color"
	"sort"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene"
)

// Theme is the palette and default stroke widths (mm) per node role.
type Theme struct {
	Name       string
	Background color.NRGBA
	Colors     map[scene.Role]color.NRGBA
	Widths     map[scene.Role]float64
	// RatsnestDash is used when a ratsnest node carries no dash of its own.
	RatsnestDash []float64
	// LabelSize is the label height in millimeters.
	LabelSize float64
}

var themes = map[string]Theme{
	"classic": {
		Name:       "classic",
		Background: color.NRGBA{R: 0, G: 16, B: 35, A: 255},
		Colors: map[scene.Role]color.NRGBA{
			scene.RoleComponent:   {R: 242, G: 237, B: 161, A: 255},
			scene.RolePin:         {R: 227, G: 183, B: 46, A: 255},
			scene.RoleWire:        {R: 77, G: 200, B: 77, A: 255},
			scene.RoleRatsnest:    {R: 194, G: 194, B: 194, A: 200},
			scene.RoleLabel:       {R: 236, G: 236, B: 236, A: 255},
			scene.RoleProvisional: {R: 200, G: 52, B: 52, A: 255},
		},
		Widths: map[scene.Role]float64{
			scene.RoleComponent:   0.25,
			scene.RolePin:         0.2,
			scene.RoleWire:        0.3,
			scene.RoleRatsnest:    0.15,
			scene.RoleProvisional: 0.3,
		},
		RatsnestDash: []float64{1, 0.6},
		LabelSize:    1.5,
	},
	"nord": {
		Name:       "nord",
		Background: color.NRGBA{R: 46, G: 52, B: 64, A: 255},
		Colors: map[scene.Role]color.NRGBA{
			scene.RoleComponent:   {R: 216, G: 222, B: 233, A: 255},
			scene.RolePin:         {R: 235, G: 203, B: 139, A: 255},
			scene.RoleWire:        {R: 163, G: 190, B: 140, A: 255},
			scene.RoleRatsnest:    {R: 136, G: 192, B: 208, A: 200},
			scene.RoleLabel:       {R: 236, G: 239, B: 244, A: 255},
			scene.RoleProvisional: {R: 191, G: 97, B: 106, A: 255},
		},
		Widths: map[scene.Role]float64{
			scene.RoleComponent:   0.25,
			scene.RolePin:         0.2,
			scene.RoleWire:        0.3,
			scene.RoleRatsnest:    0.15,
			scene.RoleProvisional: 0.3,
		},
		RatsnestDash: []float64{1, 0.6},
		LabelSize:    1.5,
	},
}

// DefaultTheme returns the classic palette.
func DefaultTheme() Theme {
	return themes["classic"]
}

// ThemeByName looks up a built-in theme.
func ThemeByName(name string) (Theme, bool) {
	th, ok := themes[name]
	return th, ok
}

// ThemeNames lists the built-in themes.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (th Theme) color(n scene.Node) color.NRGBA {
	if n.Style.Color.A != 0 {
		return n.Style.Color
	}
	if c, ok := th.Colors[n.Role()]; ok {
		return c
	}
	return color.NRGBA{R: 128, G: 128, B: 128, A: 255}
}

func (th Theme) width(n scene.Node) float64 {
	if n.Style.Width > 0 {
		return n.Style.Width
	}
	if w, ok := th.Widths[n.Role()]; ok {
		return w
	}
	return 0.2
}

func (th Theme) dash(n scene.Node) []float64 {
	if len(n.Style.Dash) > 0 {
		return n.Style.Dash
	}
	if n.Role() == scene.RoleRatsnest {
		return th.RatsnestDash
	}
	return nil
}
