package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
)

// fixture: R1..R10 with R10 at 1k, one LED, a divider net and an LED net.
func fixture(t *testing.T) Design {
	t.Helper()
	ctx := context.Background()
	m := circuit.NewModel(catalog.NewBuiltinCatalog(), circuit.WithIDGenerator(circuit.SequentialIDs("id")))
	require.NoError(t, m.Init())

	var rs []circuit.Component
	for i := 0; i < 10; i++ {
		var opts []circuit.ComponentOption
		if i == 9 {
			opts = append(opts, circuit.WithProperties(map[string]string{"value": "1k"}))
		}
		c, err := m.AddComponent(ctx, "resistor", circuit.Point{X: float64(i) * 10}, opts...)
		require.NoError(t, err)
		rs = append(rs, c)
	}
	d1, err := m.AddComponent(ctx, "led", circuit.Point{Y: 20})
	require.NoError(t, err)

	_, err = m.AddConnection(circuit.PinRef{ComponentID: rs[0].ID, PinID: "2"}, circuit.PinRef{ComponentID: rs[1].ID, PinID: "1"}, circuit.WithNet("OUT"))
	require.NoError(t, err)
	_, err = m.AddConnection(circuit.PinRef{ComponentID: rs[9].ID, PinID: "2"}, circuit.PinRef{ComponentID: d1.ID, PinID: "2"})
	require.NoError(t, err)
	return FromModel("divider", m)
}

func TestBuildBOM(t *testing.T) {
	d := fixture(t)
	lines, err := BuildBOM(context.Background(), d.Components, catalog.NewBuiltinCatalog())
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, "LED", lines[0].Name)
	assert.Equal(t, []string{"D1"}, lines[0].References)

	assert.Equal(t, "10k", lines[1].Value)
	assert.Equal(t, 9, lines[1].Quantity())
	assert.Equal(t, "R1", lines[1].References[0])
	assert.Equal(t, "R9", lines[1].References[8])
	assert.Equal(t, "Resistor_SMD:R_0805_2012Metric", lines[1].Footprint)

	assert.Equal(t, []string{"R10"}, lines[2].References)
	assert.Equal(t, "1k", lines[2].Value)
}

func TestBuildBOMWithoutCatalog(t *testing.T) {
	d := fixture(t)
	lines, err := BuildBOM(context.Background(), d.Components, catalog.NewMemoryCatalog())
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "led", lines[0].Name)
	assert.Empty(t, lines[0].Footprint)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = BuildBOM(ctx, d.Components, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDesignatorLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"R2", "R10", true},
		{"R10", "R2", false},
		{"C1", "R1", true},
		{"r1", "R2", true},
		{"J", "J1", true},
	}
	for _, tt := range tests {
		t.Run(tt.a+"<"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, designatorLess(tt.a, tt.b))
		})
	}
}

func TestBOMWorkbook(t *testing.T) {
	d := fixture(t)
	lines, err := BuildBOM(context.Background(), d.Components, catalog.NewBuiltinCatalog())
	require.NoError(t, err)

	data, err := BOMWorkbook(d, lines)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"bom", "nets"}, f.GetSheetList())

	rows, err := f.GetRows("bom")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Qty", "References", "Part", "Value", "Footprint"}, rows[0])
	assert.Equal(t, "9", rows[2][0])
	assert.Equal(t, "R1, R2, R3, R4, R5, R6, R7, R8, R9", rows[2][1])

	rows, err = f.GetRows("nets")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"OUT", "R1.2 R2.1"}, rows[1])
	assert.Equal(t, "N$1", rows[2][0])
	assert.Equal(t, "R10.2 D1.2", rows[2][1])
}

func TestNetlistPDF(t *testing.T) {
	d := fixture(t)
	lines, err := BuildBOM(context.Background(), d.Components, catalog.NewBuiltinCatalog())
	require.NoError(t, err)

	data, err := NetlistPDF(d, lines, PDFOptions{Generated: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	for _, want := range []string{"Bill of Materials", "Netlist", "2024-05-01T00:00:00Z", "R1.2 R2.1"} {
		assert.Contains(t, string(data), want)
	}

	compressed, err := NetlistPDF(d, lines, PDFOptions{Compress: true})
	require.NoError(t, err)
	assert.NotContains(t, string(compressed), "Bill of Materials")
}
