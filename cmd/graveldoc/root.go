package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/MikhailWahib/graveldoc"
)

// options holds the global flags.
type options struct {
	dataDir      string
	configFile   string
	outputFormat string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "graveldoc",
		Short: "Embedded document store with Convex-style size accounting",
		Long: `graveldoc stores JSON documents in an LSM-tree and measures them the way
Convex does: every value has a deterministic byte size, and documents are
limited by the size of the fields plus their _id and _creationTime system
fields.

Values are read and written in the Convex export JSON format: integers as
{"$integer": base64}, bytes as {"$bytes": base64}.

Environment variables:
  GRAVELDOC_DATA_DIR   Data directory (default: ./graveldoc-data)
  GRAVELDOC_CONFIG     YAML config file`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.dataDir == "" {
				opts.dataDir = os.Getenv("GRAVELDOC_DATA_DIR")
			}
			if opts.dataDir == "" {
				opts.dataDir = "graveldoc-data"
			}
			if opts.configFile == "" {
				opts.configFile = os.Getenv("GRAVELDOC_CONFIG")
			}
			switch opts.outputFormat {
			case "text", "json":
				return nil
			default:
				return fmt.Errorf("unknown output format %q", opts.outputFormat)
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.dataDir, "data-dir", "d", "", "Data directory (default: ./graveldoc-data)")
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&opts.outputFormat, "output", "o", "text", "Output format: text, json")

	rootCmd.AddCommand(newVersionCmd(opts))
	rootCmd.AddCommand(newSizeCmd(opts))
	rootCmd.AddCommand(newInsertCmd(opts))
	rootCmd.AddCommand(newGetCmd(opts))
	rootCmd.AddCommand(newPatchCmd(opts))
	rootCmd.AddCommand(newReplaceCmd(opts))
	rootCmd.AddCommand(newDeleteCmd(opts))
	rootCmd.AddCommand(newScanCmd(opts))
	rootCmd.AddCommand(newUsageCmd(opts))

	return rootCmd
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version":    version,
				"commit":     commit,
				"build_time": buildTime,
				"go_version": runtime.Version(),
				"platform":   runtime.GOOS + "/" + runtime.GOARCH,
			}
			if opts.outputFormat == "json" {
				return printJSON(cmd.OutOrStdout(), info)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "graveldoc")
			fmt.Fprintf(out, "  Version:    %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Built:      %s\n", buildTime)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}

// openDB opens the database named by the global flags.
func openDB(opts *options) (*graveldoc.DB, error) {
	var cfg *graveldoc.Config
	if opts.configFile != "" {
		loaded, err := graveldoc.LoadConfig(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	return graveldoc.Open(opts.dataDir, cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
