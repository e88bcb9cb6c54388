// Command debug-catalog cross-checks a KiCad symbol or footprint library
// against a reference s-expression reader and prints what the catalog
// loader makes of it.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chewxy/sexp"

	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/catalog"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/kicad/library"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/kicad/sexp/kicadsexp"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: debug-catalog <file.kicad_sym|file.kicad_mod> [footprint_dir...]")
		os.Exit(1)
	}
	path := os.Args[1]

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("File: %s (%d bytes)\n", path, info.Size())

	fmt.Println("\nReference reader:")
	refLeaves, err := referenceLeaves(path)
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
	} else {
		fmt.Printf("  Leaves: %d\n", refLeaves)
	}

	fmt.Println("\nCatalog reader:")
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	exprs, err := kicadsexp.Parse(f)
	f.Close()
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
		os.Exit(1)
	}
	leaves := 0
	for _, e := range exprs {
		leaves += countLeaves(e)
	}
	fmt.Printf("  Expressions: %d\n", len(exprs))
	fmt.Printf("  Leaves: %d\n", leaves)
	if len(exprs) > 0 {
		if l, ok := exprs[0].(*kicadsexp.List); ok {
			fmt.Printf("  Root: %s (%d items)\n", l.Head(), l.Len())
		}
	}
	if refLeaves != 0 && refLeaves != leaves {
		fmt.Printf("  Leaf counts differ: reference %d, catalog %d\n", refLeaves, leaves)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".kicad_mod":
		dumpFootprint(path)
	default:
		dumpSymbols(path, os.Args[2:])
	}
}

func referenceLeaves(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	exprs, err := sexp.Parse(f)
	if err != nil {
		return 0, err
	}
	fmt.Printf("  Expressions: %d\n", len(exprs))
	total := 0
	for _, e := range exprs {
		if e.IsLeaf() {
			total++
			continue
		}
		total += e.LeafCount()
	}
	return total, nil
}

func countLeaves(e kicadsexp.Sexp) int {
	l, ok := e.(*kicadsexp.List)
	if !ok {
		return 1
	}
	n := 0
	for _, item := range l.Items() {
		n += countLeaves(item)
	}
	return n
}

func dumpFootprint(path string) {
	fp, err := library.ParseFootprintFile(path)
	if err != nil {
		fmt.Printf("\nError parsing footprint: %v\n", err)
		os.Exit(1)
	}
	pads := fp.PadOffsets()
	fmt.Printf("\nFootprint %s: %d pads\n", fp.Name, len(pads))
	for _, p := range fp.Pads {
		fmt.Printf("  pad %-4s at (%.3f, %.3f)\n", p.Number, p.Position.X, p.Position.Y)
	}
}

func dumpSymbols(path string, footprintDirs []string) {
	syms, err := library.ParseSymbolFile(path)
	if err != nil {
		fmt.Printf("\nError parsing symbols: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nSymbols: %d\n", len(syms))

	c := catalog.NewMemoryCatalog()
	loader := &catalog.KiCadLoader{FootprintDirs: footprintDirs}
	n, err := loader.LoadFile(context.Background(), c, path)
	if err != nil {
		fmt.Printf("Error loading catalog: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Definitions: %d\n", n)

	for _, def := range c.List() {
		fmt.Printf("\n%s (%s, prefix %s)\n", def.ID, def.Name, def.Prefix)
		if def.Footprint != "" {
			fmt.Printf("  footprint %s, %d pads resolved\n", def.Footprint, len(def.PadOffsets))
		}
		for _, p := range def.Pins {
			fmt.Printf("  pin %-4s %-10s %-12s (%.2f, %.2f)", p.ID, p.Label, p.Role, p.Offset.X, p.Offset.Y)
			if pad, ok := def.PadOffsets[p.ID]; ok {
				fmt.Printf(" pad (%.2f, %.2f)", pad.X, pad.Y)
			}
			fmt.Println()
		}
	}
}
