package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/carimport/internal/core"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the vehicle tables, identity indexes and import log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := initStore(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		slog.Info("migration complete",
			"driver", cfg.Database.Driver,
			"tables", core.Keys(),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %d tables\n", core.TableCount())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
