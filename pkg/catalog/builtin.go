package catalog

import "strconv"

// Grid is the schematic pin pitch in millimeters.
const Grid = 2.54

// Builtins returns the definitions that ship with the editor.
func Builtins() []Definition {
	return []Definition{
		twoTerminal("resistor", "Resistor", "R", "Resistor_SMD:R_0805_2012Metric", 0.9125,
			[2]string{"~", "~"}, map[string]string{"value": "10k"}),
		twoTerminal("capacitor", "Capacitor", "C", "Capacitor_SMD:C_0805_2012Metric", 0.95,
			[2]string{"~", "~"}, map[string]string{"value": "100n"}),
		twoTerminal("led", "LED", "D", "LED_SMD:LED_0805_2012Metric", 1.025,
			[2]string{"K", "A"}, map[string]string{"color": "red"}),
		twoTerminal("diode", "Diode", "D", "Diode_SMD:D_SOD-123", 1.65,
			[2]string{"K", "A"}, map[string]string{"value": "1N4148"}),
		npn(),
		opamp(),
		mcuHeader(),
	}
}

func rect(w, h float64) Graphic {
	return Graphic{Kind: "rect", Points: []Offset{{X: -w / 2, Y: -h / 2}, {X: w / 2, Y: h / 2}}}
}

// twoTerminal builds a vertical two-pin part: pin 1 on top, pin 2 below.
func twoTerminal(id, name, prefix, footprint string, padX float64, labels [2]string, props map[string]string) Definition {
	return Definition{
		ID:       id,
		Name:     name,
		Category: "Passive",
		Prefix:   prefix,
		Template: Template{
			Width:    2 * Grid,
			Height:   3 * Grid,
			Graphics: []Graphic{rect(0.8*Grid, 2*Grid)},
		},
		Pins: []PinDef{
			{ID: "1", Label: labels[0], Role: RolePassive, Offset: Offset{X: 0, Y: -1.5 * Grid}},
			{ID: "2", Label: labels[1], Role: RolePassive, Offset: Offset{X: 0, Y: 1.5 * Grid}},
		},
		Footprint: footprint,
		PadOffsets: map[string]Offset{
			"1": {X: -padX, Y: 0},
			"2": {X: padX, Y: 0},
		},
		Properties: props,
	}
}

func npn() Definition {
	return Definition{
		ID:       "npn",
		Name:     "NPN Transistor",
		Category: "Discrete",
		Prefix:   "Q",
		Template: Template{
			Width:  4 * Grid,
			Height: 4 * Grid,
			Graphics: []Graphic{
				{Kind: "circle", Points: []Offset{{X: 0.5 * Grid, Y: 0}}, Radius: 1.1 * Grid},
				{Kind: "polyline", Points: []Offset{{X: 0, Y: -Grid}, {X: 0, Y: Grid}}},
			},
		},
		Pins: []PinDef{
			{ID: "1", Label: "B", Role: RoleInput, Offset: Offset{X: -2 * Grid, Y: 0}},
			{ID: "2", Label: "E", Role: RolePassive, Offset: Offset{X: Grid, Y: 2 * Grid}},
			{ID: "3", Label: "C", Role: RolePassive, Offset: Offset{X: Grid, Y: -2 * Grid}},
		},
		Footprint: "Package_TO_SOT_SMD:SOT-23",
		PadOffsets: map[string]Offset{
			"1": {X: -0.9375, Y: -0.95},
			"2": {X: -0.9375, Y: 0.95},
			"3": {X: 0.9375, Y: 0},
		},
		Properties: map[string]string{"value": "2N3904"},
	}
}

func opamp() Definition {
	pads := make(map[string]Offset, 8)
	for i := 0; i < 4; i++ {
		y := -1.905 + float64(i)*1.27
		pads[strconv.Itoa(i+1)] = Offset{X: -2.475, Y: y}
		pads[strconv.Itoa(8-i)] = Offset{X: 2.475, Y: y}
	}
	return Definition{
		ID:       "opamp",
		Name:     "Operational Amplifier",
		Category: "Analog",
		Prefix:   "U",
		Template: Template{
			Width:  6 * Grid,
			Height: 4 * Grid,
			Graphics: []Graphic{{Kind: "polyline", Points: []Offset{
				{X: -2 * Grid, Y: -2 * Grid}, {X: 2 * Grid, Y: 0}, {X: -2 * Grid, Y: 2 * Grid}, {X: -2 * Grid, Y: -2 * Grid},
			}}},
		},
		Pins: []PinDef{
			{ID: "1", Label: "OUT", Role: RoleOutput, Offset: Offset{X: 3 * Grid, Y: 0}},
			{ID: "2", Label: "-", Role: RoleInput, Offset: Offset{X: -3 * Grid, Y: Grid}},
			{ID: "3", Label: "+", Role: RoleInput, Offset: Offset{X: -3 * Grid, Y: -Grid}},
			{ID: "4", Label: "V-", Role: RolePowerIn, Offset: Offset{X: 0, Y: 2 * Grid}},
			{ID: "8", Label: "V+", Role: RolePowerIn, Offset: Offset{X: 0, Y: -2 * Grid}},
		},
		Footprint:  "Package_SO:SOIC-8_3.9x4.9mm_P1.27mm",
		PadOffsets: pads,
		Properties: map[string]string{"value": "LM358"},
	}
}

func mcuHeader() Definition {
	labels := []string{"3V3", "5V", "SDA", "GND", "SCL", "TX", "GND", "RX"}
	roles := []PinRole{RolePowerOut, RolePowerOut, RoleBidirectional, RolePowerIn,
		RoleBidirectional, RoleOutput, RolePowerIn, RoleInput}
	def := Definition{
		ID:       "mcu_header",
		Name:     "MCU Header 2x04",
		Category: "Connector",
		Prefix:   "J",
		Template: Template{
			Width:    4 * Grid,
			Height:   5 * Grid,
			Graphics: []Graphic{rect(2*Grid, 4*Grid)},
		},
		Footprint:  "Connector_PinHeader_2.54mm:PinHeader_2x04_P2.54mm_Vertical",
		PadOffsets: make(map[string]Offset, len(labels)),
		Properties: map[string]string{"value": "Conn_02x04"},
	}
	for i, label := range labels {
		row := float64(i / 2)
		side := -1.0
		if i%2 == 1 {
			side = 1
		}
		id := strconv.Itoa(i + 1)
		def.Pins = append(def.Pins, PinDef{
			ID:     id,
			Label:  label,
			Role:   roles[i],
			Offset: Offset{X: side * 2 * Grid, Y: (row - 1.5) * Grid},
		})
		def.PadOffsets[id] = Offset{X: float64(i%2) * 2.54, Y: row * 2.54}
	}
	return def
}
