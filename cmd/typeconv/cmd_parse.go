package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/stream"
	"github.com/rawbytedev/typeconv/pkg/structparse"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/spf13/cobra"
)

func newParseCmd(a *app) *cobra.Command {
	var formatName string
	cmd := &cobra.Command{
		Use:   "parse file",
		Short: "Parse a structured document and list its typed leaves",
		Long: `parse reads a JSON, XML, YAML or CDB document and prints one line per
leaf: its dotted path, its type and its values. Files ending in .zst are
decompressed first. The format defaults to the file extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			format, err := formatOf(formatName, path)
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			var r io.Reader = f
			if strings.HasSuffix(path, ".zst") {
				c, err := stream.NewCompressed(f)
				if err != nil {
					return err
				}
				defer c.Close()
				r = c
			}
			root, err := a.engine.Parse(format, r, memory.NewSpace())
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			defer root.Release()
			return a.printTree(cmd, root)
		},
	}
	cmd.Flags().StringVar(&formatName, "format", "", "json, xml, yaml or cdb")
	return cmd
}

func formatOf(name, path string) (typedesc.Format, error) {
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(strings.TrimSuffix(path, ".zst")), ".")
	}
	f, ok := typedesc.ParseFormat(name)
	if !ok || f == typedesc.FormatNone {
		return typedesc.FormatNone, fmt.Errorf("unknown document format %q, use --format", name)
	}
	return f, nil
}

func (a *app) printTree(cmd *cobra.Command, root *structparse.Node) error {
	out := cmd.OutOrStdout()
	var err error
	root.Walk(func(path string, n *structparse.Node) bool {
		if err != nil {
			return false
		}
		switch {
		case n.IsLeaf():
			var text string
			text, err = a.leafText(n)
			fmt.Fprintf(out, "%s\t%s\t%s\n", path, n.Variable().Desc, text)
		case len(n.Children) == 0 && path != "":
			fmt.Fprintf(out, "%s\tnull\n", path)
		}
		return true
	})
	return err
}

// leafText renders elements separated by spaces and matrix rows by "; ".
func (a *app) leafText(n *structparse.Node) (string, error) {
	v := n.Variable()
	switch v.Desc.Handler().NumberOfDimensions() {
	case 0:
		var s string
		err := a.quiet(a.engine.Decode(v, &s))
		return s, err
	case 1:
		var row []string
		err := a.quiet(a.engine.Decode(v, &row))
		return strings.Join(row, " "), err
	}
	var rows [][]string
	err := a.quiet(a.engine.Decode(v, &rows))
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = strings.Join(r, " ")
	}
	return strings.Join(parts, "; "), err
}

func (a *app) quiet(err error) error {
	if err != nil && !errflags.IsFatal(err) {
		a.logger.Debug("leaf rendered with notices", "error", err)
		return nil
	}
	return err
}
