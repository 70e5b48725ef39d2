package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tabled/internal/core"
	"github.com/JonMunkholm/tabled/internal/model"
)

var (
	importMode      string
	importDelimiter string
	importNoHeaders bool
)

var importCmd = &cobra.Command{
	Use:   "import <table-id> <file.csv>",
	Short: "Import a CSV file into a table",
	Long: `Import a CSV file into a table owned by the user given with --user.

Headers are matched to the table's columns by name. Use "-" as the file
to read from standard input. The whole file is rejected when any row fails
validation, and the problems are listed.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importMode, "mode", string(core.ImportAdd), "import mode: add or replace")
	importCmd.Flags().StringVar(&importDelimiter, "delimiter", ",", "field delimiter")
	importCmd.Flags().BoolVar(&importNoHeaders, "no-headers", false, "the file has no header row")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if actAs == "" {
		return fmt.Errorf("--user is required")
	}
	comma, size := utf8.DecodeRuneInString(importDelimiter)
	if size == 0 || size != len(importDelimiter) || comma == utf8.RuneError {
		return fmt.Errorf("delimiter must be a single character")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var src io.Reader = cmd.InOrStdin()
	if args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	req, err := core.ReadCSV(src, core.CSVOptions{
		HasHeaders: !importNoHeaders,
		Comma:      comma,
		MaxRows:    cfg.Import.MaxRows,
	})
	if err != nil {
		return err
	}
	req.ImportMode = core.ImportMode(importMode)

	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.Import(cmd.Context(), model.UserContext{UserID: actAs}, args[0], req)
	if err != nil {
		printImportError(cmd.ErrOrStderr(), err)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported %d rows.\n", result.ImportedRows)
	if result.TotalErrors > 0 {
		fmt.Fprintf(out, "%d rows failed to insert:\n", result.TotalErrors)
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  %s\n", e)
		}
	}
	return nil
}

// printImportError lists the details of a rejected import.
func printImportError(w io.Writer, err error) {
	var ce *core.Error
	if !errors.As(err, &ce) || len(ce.Details) == 0 {
		return
	}
	for _, d := range ce.Details {
		fmt.Fprintf(w, "  %s\n", d)
	}
}
