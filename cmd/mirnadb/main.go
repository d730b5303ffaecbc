// Command mirnadb builds the miRNA relational store from the dataset catalogue
// and answers read-only SQL against it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"mirnadb/internal/config"
	"mirnadb/internal/loader"
	"mirnadb/internal/logging"
	"mirnadb/internal/registry"

	// register all backends with the storage factory.
	_ "mirnadb/internal/storage/all"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd, a := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	a.teardown()
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand once the root has run.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg config.Config
	log *zap.Logger
	fs  afero.Fs

	closeMetrics func()

	// newRunner is replaced in tests.
	newRunner func(log *zap.Logger) *loader.Runner
}

// NewRootCommand creates the root command and its subcommands. Each call gets
// its own viper instance, so commands can be built and run repeatedly.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

// newRootCommand also returns the app so the caller can release what setup
// acquired, whether or not the command failed.
func newRootCommand() (*cobra.Command, *app) {
	a := &app{
		v:         viper.New(),
		fs:        afero.NewOsFs(),
		newRunner: loader.NewDefaultRunner,
	}

	cmd := &cobra.Command{
		Use:   "mirnadb",
		Short: "Build and query the miRNA dataset store",
		Long: `mirnadb ingests the curated miRNA datasets (local CSVs, shared links and
archive members) into one relational store, renaming the miRNA identifier
column to miRNA_ID so tables can be joined, then serves read-only SQL.

The store is built once: if it already exists, nothing is re-ingested.
Delete the store (or its stamp file for server backends) to rebuild.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	pf.String("store-kind", config.KindSQLite, "store backend (sqlite|postgres|mssql)")
	pf.String("store", "miRNA.db", "SQLite database file")
	pf.String("dsn", "", "connection string for server backends")
	pf.String("data-dir", ".", "directory holding the local dataset files")
	pf.String("catalogue", "", "YAML catalogue replacing the built-in one")
	pf.String("cache-dir", ".cache/archives", "where downloaded archives are extracted")
	pf.String("log-level", "info", "log level (debug|info|warn|error)")
	pf.String("log-format", "console", "log format (console|json)")
	pf.String("metrics", "none", "metrics backend (none|datadog)")

	bind := map[string]string{
		"store.kind":      "store-kind",
		"store.path":      "store",
		"store.dsn":       "dsn",
		"data_dir":        "data-dir",
		"catalogue":       "catalogue",
		"cache_dir":       "cache-dir",
		"log.level":       "log-level",
		"log.format":      "log-format",
		"metrics.backend": "metrics",
	}
	for key, flag := range bind {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	cmd.AddCommand(newBuildCommand(a))
	cmd.AddCommand(newQueryCommand(a))
	cmd.AddCommand(newSourcesCommand(a))
	cmd.AddCommand(newTablesCommand(a))
	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newInspectCommand(a))

	return cmd, a
}

func (a *app) setup() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.log = log

	a.closeMetrics = setupMetrics(cfg.Metrics, log)
	return nil
}

func (a *app) teardown() {
	if a.closeMetrics != nil {
		a.closeMetrics()
		a.closeMetrics = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// registry returns the configured catalogue, or the built-in one.
func (a *app) registry() (*registry.Registry, error) {
	if a.cfg.Catalogue == "" {
		return registry.Default(a.cfg.DataDir), nil
	}
	f, err := a.fs.Open(a.cfg.Catalogue)
	if err != nil {
		return nil, fmt.Errorf("open catalogue: %w", err)
	}
	defer f.Close()
	return registry.Load(f, a.cfg.DataDir)
}

// ensureBuilt runs the gated build and logs its outcome.
func (a *app) ensureBuilt(ctx context.Context, onItem func(loader.ItemResult)) (loader.Outcome, error) {
	reg, err := a.registry()
	if err != nil {
		return loader.Outcome{}, err
	}
	r := a.newRunner(a.log)
	r.FS = a.fs
	r.OnItem = onItem

	out, err := r.Ensure(ctx, a.cfg, reg)
	if err != nil {
		return out, err
	}
	if out.Built {
		a.log.Info("store built", zap.String("summary", out.Report.Summary()))
		for _, f := range out.Report.Failures() {
			a.log.Warn("source not loaded", zap.Stringer("source", f.Item), zap.Error(f.Err))
		}
	}
	return out, nil
}
