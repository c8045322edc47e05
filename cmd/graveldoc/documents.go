package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MikhailWahib/graveldoc"
	"github.com/MikhailWahib/graveldoc/value"
)

// withDB opens the database for the duration of fn.
func withDB(opts *options, fn func(db *graveldoc.DB) error) (err error) {
	db, err := openDB(opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(db)
}

func parseFields(s string) (value.Object, error) {
	v, err := value.ParseJSON([]byte(s))
	if err != nil {
		return nil, err
	}
	fields, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("fields must be a JSON object")
	}
	return fields, nil
}

func printDocuments(w io.Writer, format string, docs ...value.Object) error {
	encoded := make([]json.RawMessage, len(docs))
	for i, doc := range docs {
		data, err := value.MarshalJSON(doc)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	if format == "json" {
		return printJSON(w, encoded)
	}
	for _, data := range encoded {
		fmt.Fprintln(w, string(data))
	}
	return nil
}

func newInsertCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "insert <table> <fields>",
		Short:   "Insert a document and print its id",
		Example: `  graveldoc insert users '{"name": "ada", "age": {"$integer": "JAAAAAAAAAA="}}'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[1])
			if err != nil {
				return err
			}
			return withDB(opts, func(db *graveldoc.DB) error {
				id, err := db.Insert(args[0], fields)
				if err != nil {
					return err
				}
				if opts.outputFormat == "json" {
					return printJSON(cmd.OutOrStdout(), map[string]string{"id": id})
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <id>",
		Short: "Print a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts, func(db *graveldoc.DB) error {
				doc, found, err := db.Get(args[0], args[1])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("%w: %s/%s", graveldoc.ErrNotFound, args[0], args[1])
				}
				return printDocuments(cmd.OutOrStdout(), opts.outputFormat, doc)
			})
		},
	}
}

func newPatchCmd(opts *options) *cobra.Command {
	var unset []string

	cmd := &cobra.Command{
		Use:   "patch <table> <id> [fields]",
		Short: "Merge fields into a document",
		Example: `  # Set city and remove age
  graveldoc patch users 0f8e... '{"city": "london"}' --unset age`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := value.Object{}
			if len(args) == 3 {
				parsed, err := parseFields(args[2])
				if err != nil {
					return err
				}
				fields = parsed
			}
			for _, name := range unset {
				fields[name] = value.Absent
			}
			return withDB(opts, func(db *graveldoc.DB) error {
				return db.Patch(args[0], args[1], fields)
			})
		},
	}

	cmd.Flags().StringArrayVar(&unset, "unset", nil, "Field to remove (repeatable)")
	return cmd
}

func newReplaceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "replace <table> <id> <fields>",
		Short: "Replace the fields of a document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[2])
			if err != nil {
				return err
			}
			return withDB(opts, func(db *graveldoc.DB) error {
				return db.Replace(args[0], args[1], fields)
			})
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts, func(db *graveldoc.DB) error {
				return db.Delete(args[0], args[1])
			})
		},
	}
}

func newScanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <table>",
		Short: "Print every document in a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(opts, func(db *graveldoc.DB) error {
				docs, err := db.Scan(args[0])
				if err != nil {
					return err
				}
				return printDocuments(cmd.OutOrStdout(), opts.outputFormat, docs...)
			})
		},
	}
}

func newUsageCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "usage <table>...",
		Short: "Print the document count and stored bytes of tables",
		Long: `Scan each table and report how many documents it holds and their total
size as measured by the document size calculator.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type tableUsage struct {
				Table     string `json:"table"`
				Documents int    `json:"documents"`
				Bytes     uint64 `json:"bytes"`
			}

			var report []tableUsage
			err := withDB(opts, func(db *graveldoc.DB) error {
				for _, table := range args {
					docs, err := db.Scan(table)
					if err != nil {
						return err
					}
					var total uint64
					for _, doc := range docs {
						size, err := value.DocumentSize(doc, nil)
						if err != nil {
							return err
						}
						total += uint64(size)
					}
					report = append(report, tableUsage{
						Table:     table,
						Documents: len(docs),
						Bytes:     total,
					})
				}
				return nil
			})
			if err != nil {
				return err
			}

			if opts.outputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), report)
			}
			for _, u := range report {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %8d docs %12d bytes\n", u.Table, u.Documents, u.Bytes)
			}
			return nil
		},
	}
}
