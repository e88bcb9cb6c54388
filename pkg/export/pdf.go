package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions tweaks the printable report.
type PDFOptions struct {
	// Compress deflates page streams. Off makes the text greppable.
	Compress bool
	// Generated is printed in the header; zero means now.
	Generated time.Time
}

// NetlistPDF renders a one-document report: summary, BOM table and netlist.
func NetlistPDF(d Design, lines []BOMLine, opts PDFOptions) ([]byte, error) {
	generated := opts.Generated
	if generated.IsZero() {
		generated = time.Now()
	}
	title := d.Title
	if title == "" {
		title = "Untitled design"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(opts.Compress)
	pdf.SetTitle(title, true)
	pdf.SetCreator("otc", true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, title)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generated.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Components: %d  Nets: %d", len(d.Components), len(d.Nets)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 6, "Bill of Materials")
	pdf.Ln(8)
	widths := []float64{12, 58, 40, 25, 55}
	header(pdf, widths, "Qty", "References", "Part", "Value", "Footprint")
	for _, l := range lines {
		pdf.CellFormat(widths[0], 6, fmt.Sprintf("%d", l.Quantity()), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[1], 6, truncate(strings.Join(l.References, ", "), 34), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, truncate(l.Name, 22), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[3], 6, l.Value, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[4], 6, truncate(l.Footprint, 32), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 6, "Netlist")
	pdf.Ln(8)
	widths = []float64{30, 160}
	header(pdf, widths, "Net", "Pins")
	for _, n := range d.Nets {
		pins := make([]string, len(n.Pins))
		for i, p := range n.Pins {
			pins[i] = pinLabel(d, p.ComponentID, p.PinID)
		}
		pdf.CellFormat(widths[0], 6, n.Name, "1", 0, "L", false, 0, "")
		pdf.MultiCell(widths[1], 6, strings.Join(pins, " "), "1", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("export: write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func header(pdf *gofpdf.Fpdf, widths []float64, cols ...string) {
	pdf.SetFont("Arial", "B", 10)
	for i, c := range cols {
		pdf.CellFormat(widths[i], 6, c, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
