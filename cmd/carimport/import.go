package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/carimport/internal/core"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv | ->",
	Short: "Import one CSV file as a single batch",
	Long: "Imports the file in one transaction. Rows that fail to parse or to write are " +
		"reported and skipped; a missing or unreadable file, missing required columns or a " +
		"commit failure abort the whole batch. Use - to read from stdin.",
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	f := importCmd.Flags()
	f.String("table", "", "target table (default from IMPORT_TABLE)")
	f.String("delimiter", "", "cell delimiter: ; , tab | or auto (default from IMPORT_DELIMITER)")
	f.String("encoding", "", "file encoding: utf-8, iso-8859-1, windows-1252")
	f.String("date-mode", "", "date parsing: strict or lenient")
	f.String("integer-mode", "", "integer parsing: lenient or strict")
	f.String("user", "", "username stamped on imported rows (default from IMPORT_USERNAME)")
	f.Bool("require-columns", true, "enforce the table's required header columns")
	f.Bool("pass-unknown", false, "keep header columns the table does not define")
	f.Bool("migrate", false, "create missing tables before importing")
	f.Bool("progress", false, "print progress to stderr")
	f.Bool("fail-on-row-errors", false, "exit non-zero when any row failed")
	f.String("format", "text", "output format: text or json")
	f.String("failed-out", "", "write failed rows with their errors to this CSV file")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	if err := applyImportFlags(cmd); err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return eris.Errorf("unsupported format %q (use text or json)", format)
	}

	migrate, _ := cmd.Flags().GetBool("migrate")
	st, err := initStore(ctx, migrate)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	opts := cfg.ImportOptions()
	opts.Runs = st
	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		opts.OnProgress = progressPrinter(cmd.ErrOrStderr())
	}

	im := core.NewImporter(st, opts)
	var result *core.Result
	if path == "-" {
		result, err = im.ImportReader(ctx, cfg.Import.Table, "stdin", cmd.InOrStdin(), 0)
	} else {
		result, err = im.ImportFile(ctx, cfg.Import.Table, path)
	}
	if err != nil {
		if core.IsUserFacing(err) {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), core.FormatUserError(err))
		}
		return eris.Wrapf(err, "import %s", path)
	}

	if failedOut, _ := cmd.Flags().GetString("failed-out"); failedOut != "" {
		delim, _ := core.ParseDelimiter(cfg.Import.Delimiter)
		if err := writeFailedRows(failedOut, result, delim); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newImportSummary(result)); err != nil {
			return eris.Wrap(err, "encode summary")
		}
	} else {
		formatImportSummary(out, result)
	}

	if failOnRows, _ := cmd.Flags().GetBool("fail-on-row-errors"); failOnRows && len(result.RowErrors) > 0 {
		return eris.Errorf("%d rows failed", len(result.RowErrors))
	}
	return nil
}

// applyImportFlags overrides the Import config section with explicitly set
// flags and validates the result.
func applyImportFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}

	str("table", &cfg.Import.Table)
	str("delimiter", &cfg.Import.Delimiter)
	str("encoding", &cfg.Import.Encoding)
	str("date-mode", &cfg.Import.DateMode)
	str("integer-mode", &cfg.Import.IntegerMode)
	str("user", &cfg.Import.Username)
	boolean("require-columns", &cfg.Import.RequireColumns)
	boolean("pass-unknown", &cfg.Import.PassUnknown)

	if err := cfg.Validate(); err != nil {
		return eris.Wrap(err, "invalid import flags")
	}
	return nil
}

// writeFailedRows exports the rejected rows so they can be fixed and
// re-imported. An auto-detected delimiter falls back to ';'.
func writeFailedRows(path string, r *core.Result, delim rune) error {
	if delim == 0 {
		delim = ';'
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := r.WriteFailedRows(f, delim); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "write %s", path)
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

// importSummary is the JSON form of a committed import.
type importSummary struct {
	ImportID   string   `json:"importId"`
	Table      string   `json:"table"`
	File       string   `json:"file"`
	Checksum   string   `json:"checksum"`
	Rows       int      `json:"rows"`
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors"`
	DurationMS int64    `json:"durationMs"`
}

func newImportSummary(r *core.Result) importSummary {
	return importSummary{
		ImportID:   r.ImportID,
		Table:      r.TableKey,
		File:       r.FileName,
		Checksum:   r.Checksum,
		Rows:       r.TotalRows,
		Created:    r.Created,
		Updated:    r.Updated,
		Skipped:    r.Skipped,
		Errors:     r.Errors(),
		DurationMS: r.Duration.Milliseconds(),
	}
}

// formatImportSummary writes a human-readable summary to w.
func formatImportSummary(w io.Writer, r *core.Result) {
	_, _ = fmt.Fprintf(w, "Imported %s into %s in %s\n", r.FileName, r.TableKey, r.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  rows:     %d\n", r.TotalRows)
	_, _ = fmt.Fprintf(w, "  created:  %d\n", r.Created)
	_, _ = fmt.Fprintf(w, "  updated:  %d\n", r.Updated)
	_, _ = fmt.Fprintf(w, "  skipped:  %d\n", r.Skipped)
	_, _ = fmt.Fprintf(w, "  failed:   %d\n", len(r.RowErrors))
	if len(r.RowErrors) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "Errors:")
	for _, msg := range r.Errors() {
		_, _ = fmt.Fprintf(w, "  %s\n", msg)
	}
}

// progressPrinter reports phase changes and row progress on one line per event.
func progressPrinter(w io.Writer) core.ProgressCallback {
	var last core.Phase
	return func(p core.Progress) {
		if p.Phase == core.PhaseRowLoop && p.Phase == last {
			_, _ = fmt.Fprintf(w, "  row %d: %d created, %d updated, %d failed",
				p.Row, p.Created, p.Updated, p.Failed)
			if p.Percent > 0 {
				_, _ = fmt.Fprintf(w, " (%d%%)", p.Percent)
			}
			_, _ = fmt.Fprintln(w)
			return
		}
		last = p.Phase
		_, _ = fmt.Fprintf(w, "%s\n", strings.ReplaceAll(string(p.Phase), "_", " "))
	}
}
