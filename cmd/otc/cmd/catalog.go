package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/config"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
)

var (
	catalogKiCadDirs []string
	catalogCategory  string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the component catalog",
	Long: `Commands for listing the component kinds the editor can place: the
built-in parts plus any KiCad symbol libraries from the configuration or
--kicad.`,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog definitions",
	Args:  cobra.NoArgs,
	RunE:  runCatalogList,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one catalog definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogShow,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd, catalogShowCmd)
	catalogCmd.PersistentFlags().StringSliceVar(&catalogKiCadDirs, "kicad", nil, "additional .kicad_sym directory (repeatable)")
	catalogListCmd.Flags().StringVar(&catalogCategory, "category", "", "only list this category")
}

func buildCatalog(ctx context.Context) (*catalog.MemoryCatalog, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return loadCatalog(ctx, cfg.Catalog, catalogKiCadDirs, logger)
}

func loadCatalog(ctx context.Context, cfg config.CatalogConfig, extraDirs []string, logger *zap.Logger) (*catalog.MemoryCatalog, error) {
	c := catalog.NewMemoryCatalog()
	if cfg.Builtins {
		c = catalog.NewBuiltinCatalog()
	}
	loader := &catalog.KiCadLoader{FootprintDirs: cfg.FootprintDirs, Logger: logger}
	for _, dir := range append(append([]string(nil), cfg.KiCadDirs...), extraDirs...) {
		if _, err := loader.LoadDir(ctx, c, dir); err != nil {
			return nil, fmt.Errorf("load %s: %w", dir, err)
		}
	}
	return c, nil
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	c, err := buildCatalog(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	defs := c.List()
	shown := 0
	for _, def := range defs {
		if catalogCategory != "" && !strings.EqualFold(def.Category, catalogCategory) {
			continue
		}
		fmt.Fprintf(out, "%-32s %-12s %-4s %3d pins  %s\n", def.ID, def.Category, def.Prefix, len(def.Pins), def.Name)
		shown++
	}
	fmt.Fprintf(out, "\n%d definition(s)\n", shown)
	return nil
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	c, err := buildCatalog(cmd.Context())
	if err != nil {
		return err
	}
	def, err := c.Lookup(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID: %s\n", def.ID)
	fmt.Fprintf(out, "Name: %s\n", def.Name)
	fmt.Fprintf(out, "Category: %s\n", def.Category)
	fmt.Fprintf(out, "Prefix: %s\n", def.Prefix)
	fmt.Fprintf(out, "Body: %.2f x %.2f mm\n", def.Template.Width, def.Template.Height)
	if def.Footprint != "" {
		fmt.Fprintf(out, "Footprint: %s (%d pads known)\n", def.Footprint, len(def.PadOffsets))
	}

	fmt.Fprintf(out, "\nPins (%d):\n", len(def.Pins))
	for _, p := range def.Pins {
		fmt.Fprintf(out, "  %-6s %-10s %-14s (%.2f, %.2f)", p.ID, p.Label, p.Role, p.Offset.X, p.Offset.Y)
		if pad, ok := def.PadOffsets[p.ID]; ok {
			fmt.Fprintf(out, "  pad (%.2f, %.2f)", pad.X, pad.Y)
		}
		fmt.Fprintln(out)
	}

	if len(def.Properties) > 0 {
		keys := make([]string, 0, len(def.Properties))
		for k := range def.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(out, "\nProperties:")
		for _, k := range keys {
			fmt.Fprintf(out, "  %s = %s\n", k, def.Properties[k])
		}
	}
	return nil
}
