// Command testbookd turns requirement documents into manual testbooks.
package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "testbookd",
		Short: "Generate manual test procedures from requirement documents",
		Long: `testbookd structures requirement documents into chunks, requirements,
features and workflows, and turns each feature into manual test procedures.

Run "testbookd serve" for the HTTP API, or use the extract and normalize
commands to run single stages locally.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newExtractCmd(), newNormalizeCmd())
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
