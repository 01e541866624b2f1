package main

import (
	"fmt"

	"github.com/rawbytedev/typeconv/pkg/dimension"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
	"github.com/spf13/cobra"
)

func newShapeCmd(a *app) *cobra.Command {
	var leaf string
	cmd := &cobra.Command{
		Use:   "shape [modifiers]",
		Short: "Describe the layers of a modifier string over a leaf type",
		Example: `  typeconv shape A3V --type int16
  typeconv shape M --type float64`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			td, err := typedesc.Parse(leaf)
			if err != nil {
				return err
			}
			var modifiers string
			if len(args) == 1 {
				modifiers = args[0]
			}
			d := vardesc.New(td, modifiers)
			if !d.IsValid() {
				return fmt.Errorf("invalid modifiers %q over %s", modifiers, td)
			}
			printShape(cmd, d)
			return nil
		},
	}
	cmd.Flags().StringVar(&leaf, "type", "int32", "leaf type, e.g. int8, uint3@5:uint8, float64, cstring, char[16]")
	return cmd
}

func printShape(cmd *cobra.Command, d vardesc.Descriptor) {
	out := cmd.OutOrStdout()
	h := d.Handler()
	fmt.Fprintln(out, d.String())
	fmt.Fprintf(out, "modifiers: %q\n", h.Modifiers())
	fmt.Fprintf(out, "dimensions: %d\n", h.NumberOfDimensions())
	fmt.Fprintf(out, "footprint: %d\n", h.Footprint())
	for i := 0; i < h.NumberOfLayers(); i++ {
		l := h.Layer(i)
		fmt.Fprintf(out, "  layer %d: %s", i, kindName(l.Kind))
		if l.Kind != dimension.KindTerminal {
			fmt.Fprintf(out, " count=%d element=%d", l.Count, l.ElementSize)
		}
		if l.Const {
			fmt.Fprint(out, " const")
		}
		if h.IsInline(i) {
			fmt.Fprint(out, " inline")
		}
		fmt.Fprintln(out)
	}
}

func kindName(k dimension.Kind) string {
	switch k {
	case dimension.KindTerminal:
		return "leaf"
	case dimension.KindRow:
		return "row"
	}
	return string(rune(k))
}
