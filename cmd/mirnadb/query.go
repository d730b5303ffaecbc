package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mirnadb/internal/storage"
	"mirnadb/internal/tabular"
)

func newQueryCommand(a *app) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Run read-only SQL against the store",
		Long: `Run a query and print the result. Pass "-" to read the query from stdin.
The store is built first if it does not exist yet.`,
		Example: `  mirnadb query "SELECT * FROM core_disease_hmdd LIMIT 5"
  mirnadb query --format csv --out hmdd.csv "SELECT * FROM core_disease_hmdd"`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(*cobra.Command, []string) error {
			if format != "table" && format != "csv" {
				return fmt.Errorf("invalid format %q: must be table or csv", format)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.Join(args, " ")
			if q == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read query: %w", err)
				}
				q = string(b)
			}
			q = strings.TrimSpace(q)
			if q == "" {
				return fmt.Errorf("empty query")
			}

			if _, err := a.ensureBuilt(cmd.Context(), nil); err != nil {
				return err
			}

			repo, err := a.openReadOnly(cmd)
			if err != nil {
				return err
			}
			defer repo.Close()

			res, err := repo.Query(cmd.Context(), q)
			if err != nil {
				return err
			}

			if out != "" {
				return a.writeCSVFile(out, res)
			}
			if format == "csv" {
				return tabular.WriteCSV(cmd.OutOrStdout(), res)
			}
			return printTable(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format (table|csv)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the result as CSV to this file")
	return cmd
}

func (a *app) openReadOnly(cmd *cobra.Command) (storage.Repository, error) {
	return storage.New(cmd.Context(), storage.Config{
		Kind:     a.cfg.Store.Kind,
		DSN:      a.cfg.StoreDSN(),
		ReadOnly: true,
	})
}

func (a *app) writeCSVFile(path string, t tabular.Table) error {
	f, err := a.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := tabular.WriteCSV(f, t); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if st, err := a.fs.Stat(path); err == nil {
		a.log.Info("wrote query results",
			zap.String("path", path),
			zap.Int("rows", t.Len()),
			zap.String("size", humanize.Bytes(uint64(st.Size()))),
		)
	}
	return nil
}
