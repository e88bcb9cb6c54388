package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/config"
	"github.com/OpenTraceLab/OpenTraceCircuit/internal/session"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/export"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/scene/render"
)

var (
	exportOutput     string
	exportTitle      string
	exportView       string
	exportWidth      int
	exportHeight     int
	exportTheme      string
	exportCompressed bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a design as BOM, report or image",
}

var exportBOMCmd = &cobra.Command{
	Use:   "bom <design_file>",
	Short: "Write the bill of materials and netlist as an .xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, args[0], ".xlsx", func(sess *session.Session, d export.Design) ([]byte, error) {
			lines, err := export.BuildBOM(cmd.Context(), d.Components, sess.Catalog)
			if err != nil {
				return nil, err
			}
			return export.BOMWorkbook(d, lines)
		})
	},
}

var exportPDFCmd = &cobra.Command{
	Use:   "pdf <design_file>",
	Short: "Write a printable BOM and netlist report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, args[0], ".pdf", func(sess *session.Session, d export.Design) ([]byte, error) {
			lines, err := export.BuildBOM(cmd.Context(), d.Components, sess.Catalog)
			if err != nil {
				return nil, err
			}
			return export.NetlistPDF(d, lines, export.PDFOptions{Compress: exportCompressed})
		})
	},
}

var exportPNGCmd = &cobra.Command{
	Use:   "png <design_file>",
	Short: "Render one view of a design to a PNG image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, args[0], ".png", func(sess *session.Session, _ export.Design) ([]byte, error) {
			th, ok := render.ThemeByName(exportTheme)
			if !ok {
				return nil, fmt.Errorf("unknown theme %q (have %s)", exportTheme, strings.Join(render.ThemeNames(), ", "))
			}
			view := circuit.View(exportView)
			if view != circuit.ViewSchematic && view != circuit.ViewBoard {
				return nil, fmt.Errorf("unknown view %q", exportView)
			}
			graph, _, err := sess.RenderView(cmd.Context(), view)
			if err != nil {
				return nil, err
			}
			var buf bytes.Buffer
			if err := render.WritePNG(&buf, render.Thumbnail(exportWidth, exportHeight, th, graph)); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportBOMCmd, exportPDFCmd, exportPNGCmd)

	exportCmd.PersistentFlags().StringVarP(&exportOutput, "output", "o", "", "output file (default: design name with the format's extension)")
	exportCmd.PersistentFlags().StringVar(&exportTitle, "title", "", "design title (default: file name)")
	exportPDFCmd.Flags().BoolVar(&exportCompressed, "compress", true, "deflate page streams")
	exportPNGCmd.Flags().StringVar(&exportView, "view", string(circuit.ViewSchematic), "view to render: schematic or board")
	exportPNGCmd.Flags().IntVar(&exportWidth, "width", 1024, "image width in pixels")
	exportPNGCmd.Flags().IntVar(&exportHeight, "height", 768, "image height in pixels")
	exportPNGCmd.Flags().StringVar(&exportTheme, "theme", "classic", "color theme")
}

func runExport(cmd *cobra.Command, designPath, ext string, build func(*session.Session, export.Design) ([]byte, error)) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Persistence.Backend = config.BackendNone
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	sess, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Dispose(ctx)

	if _, err := loadDesignFile(ctx, sess, designPath); err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(designPath), filepath.Ext(designPath))
	base = strings.TrimSuffix(base, ".otc")
	title := exportTitle
	if title == "" {
		title = base
	}
	data, err := build(sess, export.FromModel(title, sess.Model))
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	out := exportOutput
	if out == "" {
		out = filepath.Join(filepath.Dir(designPath), base+ext)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", out, len(data))
	return nil
}
