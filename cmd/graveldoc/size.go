package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikhailWahib/graveldoc/value"
)

func newSizeCmd(opts *options) *cobra.Command {
	var (
		asDocument     bool
		customIDLength int
	)

	cmd := &cobra.Command{
		Use:   "size [value]",
		Short: "Print the Convex byte size of a value",
		Long: `Print the byte size of a value given in Convex export JSON. The value is
read from the argument, or from stdin when no argument is given.

With --document the value must be an object and is sized as a document:
missing _id and _creationTime fields are added as estimates.`,
		Example: `  # Size of a scalar
  graveldoc size '"hello"'

  # Size of a document with no system fields yet
  echo '{"name": "ada"}' | graveldoc size --document`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input string
			if len(args) == 1 {
				input = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				input = string(data)
			}

			v, err := value.ParseJSON([]byte(strings.TrimSpace(input)))
			if err != nil {
				return err
			}

			var size int
			if asDocument {
				doc, ok := v.(value.Object)
				if !ok {
					return fmt.Errorf("--document needs a JSON object")
				}
				var sizeOpts *value.DocumentSizeOptions
				if customIDLength > 0 {
					sizeOpts = &value.DocumentSizeOptions{CustomIDLength: customIDLength}
				}
				size, err = value.DocumentSize(doc, sizeOpts)
			} else {
				size, err = value.SizeOf(v)
			}
			if err != nil {
				return err
			}

			if opts.outputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]int{"size": size})
			}
			fmt.Fprintln(cmd.OutOrStdout(), size)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asDocument, "document", false, "Size the value as a document, estimating missing system fields")
	cmd.Flags().IntVar(&customIDLength, "custom-id-length", 0, "Length of the _id string to assume instead of the default estimate")
	return cmd
}
