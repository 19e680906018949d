package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/carimport/internal/core"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent import runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		st, err := initStore(ctx, false)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "history")
		}

		return writeRuns(cmd.OutOrStdout(), runs, format)
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "max number of runs to display")
	historyCmd.Flags().String("format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(historyCmd)
}

func writeRuns(w io.Writer, runs []core.ImportRun, format string) error {
	switch format {
	case "table":
		if len(runs) == 0 {
			_, _ = fmt.Fprintln(w, "No imports found.")
			return nil
		}
		formatRunsTable(w, runs)
		return nil
	case "json":
		if runs == nil {
			runs = []core.ImportRun{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(runs); err != nil {
			return eris.Wrap(err, "encode runs")
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(runs); err != nil {
			return eris.Wrap(err, "encode runs")
		}
		if err := enc.Close(); err != nil {
			return eris.Wrap(err, "encode runs")
		}
		return nil
	default:
		return eris.Errorf("unsupported format %q (use table, json or yaml)", format)
	}
}

// formatRunsTable writes a tabular list of runs to out.
func formatRunsTable(out io.Writer, runs []core.ImportRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tTABLE\tFILE\tSTATUS\tCREATED\tUPDATED\tSKIPPED\tFAILED\tDURATION")

	for _, r := range runs {
		file := r.FileName
		if len(file) > 32 {
			file = file[:29] + "..."
		}
		status := r.Status
		if r.Status == core.RunFailed && r.Error != "" {
			status = core.RunFailed + ": " + firstWords(r.Error, 6)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.TableKey,
			file,
			status,
			r.Created,
			r.Updated,
			r.Skipped,
			r.Failed,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// firstWords truncates s to n space-separated words.
func firstWords(s string, n int) string {
	words := 0
	for i, r := range s {
		if r == ' ' {
			words++
			if words == n {
				return s[:i] + "..."
			}
		}
	}
	return s
}
