package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mirnadb/internal/schema"
)

func newSourcesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the catalogue and the table each source loads into",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tSOURCE\tMETHOD\tLOCATION\tTABLE")
			for _, it := range reg.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					it.Category, it.Name,
					it.Acquisition.Method(), it.Acquisition.Describe(),
					schema.TableName(it.Category, it.Name))
			}
			return tw.Flush()
		},
	}
}
