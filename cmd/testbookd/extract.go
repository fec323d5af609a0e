package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgallion1/testbook/internal/chunker"
	"github.com/dgallion1/testbook/internal/parser"
	"github.com/dgallion1/testbook/internal/processor"
	"github.com/spf13/cobra"
)

type extractFlags struct {
	chunkSize int
	overlap   int
	noContext bool
	dedupe    bool
	policy    string
	title     string
}

func newExtractCmd() *cobra.Command {
	var f extractFlags
	def := chunker.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Structure a document and print it as JSON",
		Long: `Parse a document, split it into chunks, extract requirements, features
and workflows, map its sections, and print the result as JSON.

Examples:
  testbookd extract spec.pdf
  testbookd extract --chunk-size 800 --overlap 100 --dedupe notes.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args[0], f)
		},
	}
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", def.ChunkSize, "soft cap on chunk length in characters")
	cmd.Flags().IntVar(&f.overlap, "overlap", def.Overlap, "characters carried into the next chunk")
	cmd.Flags().BoolVar(&f.noContext, "no-context", false, "do not seed chunks with the previous chunk's tail")
	cmd.Flags().BoolVar(&f.dedupe, "dedupe", false, "drop repeated extraction candidates")
	cmd.Flags().StringVar(&f.policy, "policy", "", "YAML keyword policy file")
	cmd.Flags().StringVar(&f.title, "title", "", "override the derived title")
	return cmd
}

func runExtract(cmd *cobra.Command, path string, f extractFlags) error {
	if f.chunkSize <= 0 {
		return fmt.Errorf("--chunk-size must be positive")
	}
	if f.overlap < 0 || f.overlap >= f.chunkSize {
		return fmt.Errorf("--overlap must be in [0, %d)", f.chunkSize)
	}

	p, err := parser.ForFile(path)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	ext, err := p.Parse(file, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	ex, err := newExtractor(f.policy, f.dedupe)
	if err != nil {
		return err
	}
	chunking := chunker.DefaultConfig()
	chunking.ChunkSize = f.chunkSize
	chunking.Overlap = f.overlap
	chunking.PreserveContext = !f.noContext

	doc, err := processor.Process(path, ext.Text(), processor.Options{Chunking: chunking, Extractor: ex})
	if err != nil {
		return err
	}
	if f.title != "" {
		doc.Title = f.title
	}
	return writeJSON(cmd.OutOrStdout(), doc)
}
