package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mirnadb/internal/schema"
)

func newTablesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List stored tables grouped by their first two name segments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.ensureBuilt(cmd.Context(), nil); err != nil {
				return err
			}
			repo, err := a.openReadOnly(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			names, err := repo.Tables(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, g := range schema.GroupTables(names) {
				fmt.Fprintln(w, g.Key)
				for _, t := range g.Tables {
					fmt.Fprintf(w, "  %s\n", t)
				}
			}
			return nil
		},
	}
}
