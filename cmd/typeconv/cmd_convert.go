package main

import (
	"fmt"

	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
	"github.com/spf13/cobra"
)

func newConvertCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "convert value...",
		Short: "Convert values through an optional source type into a target type",
		Example: `  typeconv convert --to int8 300
  typeconv convert --from float64 --to int32 -- 2.5 -2.5
  typeconv convert --to uint16 --number-format %#x 65535`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := typedesc.Parse(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			var src typedesc.Descriptor
			if from != "" {
				if src, err = typedesc.Parse(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			values, err := a.convert(cmd, args, src, dst)
			for _, v := range values {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "type the text is parsed into first")
	cmd.Flags().StringVar(&to, "to", "", "target type")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// convert runs text -> [src] -> dst and renders dst back as text. Non fatal
// notices go to stderr and do not fail the command.
func (a *app) convert(cmd *cobra.Command, args []string, src, dst typedesc.Descriptor) ([]string, error) {
	space := memory.NewSpace()
	var input any = args
	if len(args) == 1 {
		input = args[0]
	}
	cur, err := a.engine.Encode(space, input)
	if err != nil {
		return nil, err
	}
	modifiers := cur.Desc.Modifiers()
	steps := []typedesc.Descriptor{dst}
	if src.IsValid() {
		steps = []typedesc.Descriptor{src, dst}
	}
	for _, td := range steps {
		next := vardesc.Alloc(space, vardesc.New(td, modifiers))
		if err := a.step(cmd, next, cur); err != nil {
			return nil, err
		}
		cur = next
	}

	if len(args) == 1 {
		var s string
		err = a.notice(cmd, a.engine.Decode(cur, &s))
		return []string{s}, err
	}
	var out []string
	err = a.notice(cmd, a.engine.Decode(cur, &out))
	return out, err
}

func (a *app) step(cmd *cobra.Command, dst, src vardesc.Variable) error {
	return a.notice(cmd, a.engine.Copy(dst, src))
}

// notice prints non fatal errors and passes fatal ones on.
func (a *app) notice(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	if errflags.IsFatal(err) {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	return nil
}
