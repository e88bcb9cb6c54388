package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	bomSheet  = "bom"
	netsSheet = "nets"
)

// BOMWorkbook renders the BOM and the netlist as an XLSX workbook with a
// "bom" and a "nets" sheet.
func BOMWorkbook(d Design, lines []BOMLine) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bomSheet); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if _, err := f.NewSheet(netsSheet); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	rows := [][]any{{"Qty", "References", "Part", "Value", "Footprint"}}
	for _, l := range lines {
		rows = append(rows, []any{l.Quantity(), strings.Join(l.References, ", "), l.Name, l.Value, l.Footprint})
	}
	if err := writeRows(f, bomSheet, rows); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(bomSheet, "A1", "E1", bold)
	_ = f.SetColWidth(bomSheet, "B", "B", 30)
	_ = f.SetColWidth(bomSheet, "C", "E", 24)

	rows = [][]any{{"Net", "Pins"}}
	for _, n := range d.Nets {
		pins := make([]string, len(n.Pins))
		for i, p := range n.Pins {
			pins[i] = pinLabel(d, p.ComponentID, p.PinID)
		}
		rows = append(rows, []any{n.Name, strings.Join(pins, " ")})
	}
	if err := writeRows(f, netsSheet, rows); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(netsSheet, "A1", "B1", bold)
	_ = f.SetColWidth(netsSheet, "B", "B", 60)

	if d.Title != "" {
		_ = f.SetDocProps(&excelize.DocProperties{Title: d.Title, Creator: "otc"})
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("export: write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("export: %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// pinLabel prints a pin as R1.2, falling back to the component id.
func pinLabel(d Design, componentID, pinID string) string {
	for _, c := range d.Components {
		if c.ID == componentID {
			return c.DisplayName + "." + pinID
		}
	}
	return componentID + "." + pinID
}
