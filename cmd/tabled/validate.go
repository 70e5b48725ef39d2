package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabled/internal/core"
	"github.com/JonMunkholm/tabled/internal/model"
)

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate <table-id>",
	Short: "Report invalid rows of a table",
	Long: `Run advisory validation over every row of a table and print the
per-column summary. Nothing is changed.

The table must be owned by the user given with --user.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if actAs == "" {
		return fmt.Errorf("--user is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.service.ValidateDataset(cmd.Context(), model.UserContext{UserID: actAs}, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if validateJSON {
		return writeIndented(out, summary)
	}
	printSummary(out, summary)
	return nil
}

func printSummary(w io.Writer, s *core.DatasetSummary) {
	fmt.Fprintf(w, "Rows: %d total, %d valid, %d invalid\n", s.TotalRows, s.ValidRows, s.InvalidRows)
	if s.TotalWarnings == 0 {
		fmt.Fprintln(w, "No invalid values.")
		return
	}
	fmt.Fprintf(w, "Invalid values: %d\n", s.TotalWarnings)
	for _, c := range s.Summary {
		fmt.Fprintf(w, "\n  %s (%s): %d invalid\n", c.Column, c.Type, c.InvalidCount)
		for _, v := range c.Samples {
			line := fmt.Sprintf("    row %s: %v: %s", v.RowID, v.Value, v.Error)
			if v.Suggestion != "" {
				line += fmt.Sprintf(" (did you mean %q?)", v.Suggestion)
			}
			fmt.Fprintln(w, line)
		}
	}
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
