package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/testbook/internal/document"
	"github.com/dgallion1/testbook/internal/generate"
	"github.com/dgallion1/testbook/internal/testbook"
	"github.com/spf13/cobra"
)

type normalizeFlags struct {
	feature document.Feature
	records string
}

func newNormalizeCmd() *cobra.Command {
	var f normalizeFlags

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize generated procedure records into a testbook",
		Long: `Read procedure records as JSON (an array, a single object, or model output
wrapped in a code fence), normalize them for one feature, and print the
resulting procedures, testbook and validation report.

Examples:
  testbookd normalize --feature-name "User Login" --records out.json
  cat out.json | testbookd normalize --feature-name "User Login"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.feature.Name, "feature-name", "", "feature name (required)")
	cmd.Flags().StringVar(&f.feature.ID, "feature-id", "FEAT-001", "feature id")
	cmd.Flags().StringVar(&f.feature.Description, "feature-description", "", "feature description")
	cmd.Flags().StringVar(&f.records, "records", "-", `records file, "-" for stdin`)
	_ = cmd.MarkFlagRequired("feature-name")
	return cmd
}

func runNormalize(cmd *cobra.Command, f normalizeFlags) error {
	if strings.TrimSpace(f.feature.Name) == "" {
		return fmt.Errorf("--feature-name must not be empty")
	}

	var (
		data []byte
		err  error
	)
	if f.records == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(f.records)
	}
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}

	var records []testbook.RawRecord
	if strings.TrimSpace(string(data)) != "" {
		records, err = generate.ParseRecords(string(data))
		if err != nil {
			return err
		}
	}

	batch := testbook.NewNormalizer(nil).NormalizeBatch(records, f.feature)
	tb := testbook.ForFeature(f.feature, batch.Procedures)
	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"procedures":   batch.Procedures,
		"decode_paths": batch.Paths,
		"dropped":      batch.Dropped,
		"testbook":     tb,
		"validation":   testbook.Validate(tb),
	})
}
