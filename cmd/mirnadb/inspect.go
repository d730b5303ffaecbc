package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mirnadb/internal/acquire"
	"mirnadb/internal/probe"
	"mirnadb/internal/registry"
)

func newInspectCommand(a *app) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "inspect SOURCE",
		Short: "Profile one dataset without loading it",
		Long: `Fetch and parse one dataset, then report its column types, NULL and
distinct counts, the table it loads into and whether it carries the join key.

SOURCE is a catalogue entry ("core_disease/HMDD.csv") or a path to a local
file, which is profiled under --category.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := a.resolveSource(args[0], category)
			if err != nil {
				return err
			}

			client, err := acquire.NewHTTPClient(a.cfg.HTTP.Timeout)
			if err != nil {
				return err
			}
			ad := &acquire.Adapter{
				FS:        a.fs,
				Client:    client,
				ExportURL: a.cfg.HTTP.ExportURL,
				UserAgent: a.cfg.HTTP.UserAgent,
				CacheDir:  a.cfg.CacheDir,
				Logger:    a.log,
			}
			t, err := ad.Fetch(cmd.Context(), item)
			if err != nil {
				return fmt.Errorf("%s: %w", item, err)
			}
			return probe.WriteReport(cmd.OutOrStdout(), probe.Profile(item.Category, item.Name, t))
		},
	}

	cmd.Flags().StringVar(&category, "category", "adhoc", "category for a source given as a file path")
	return cmd
}

// resolveSource finds arg in the catalogue, falling back to a local file.
func (a *app) resolveSource(arg, category string) (registry.SourceItem, error) {
	reg, err := a.registry()
	if err != nil {
		return registry.SourceItem{}, err
	}
	for _, it := range reg.List() {
		if it.String() == arg {
			return it, nil
		}
	}
	if _, err := a.fs.Stat(arg); err == nil {
		return registry.SourceItem{
			Category:    category,
			Name:        filepath.Base(arg),
			Acquisition: registry.LocalFile{Path: arg},
		}, nil
	}
	var names []string
	for _, it := range reg.List() {
		names = append(names, it.String())
	}
	return registry.SourceItem{}, fmt.Errorf("unknown source %q (not a file, and not one of: %s)", arg, strings.Join(names, ", "))
}
