package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"mirnadb/internal/acquire"
	"mirnadb/internal/config"
	"mirnadb/internal/logging"
	"mirnadb/internal/registry"
	"mirnadb/internal/storage"
)

// Runner wires the gate, the store and the builder together from a Config.
type Runner struct {
	FS     afero.Fs
	Logger *zap.Logger

	// storage-agnostic factory seam
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	// NewFetcher builds the acquisition side; tests replace it.
	NewFetcher func(cfg config.Config, fs afero.Fs, log *zap.Logger) (Fetcher, error)

	// OnItem is passed through to the Builder.
	OnItem func(ItemResult)
}

func NewDefaultRunner(log *zap.Logger) *Runner {
	return &Runner{
		FS:     afero.NewOsFs(),
		Logger: logging.OrNop(log),
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return storage.New(ctx, cfg)
		},
		NewFetcher: func(cfg config.Config, fs afero.Fs, log *zap.Logger) (Fetcher, error) {
			client, err := acquire.NewHTTPClient(cfg.HTTP.Timeout)
			if err != nil {
				return nil, err
			}
			return &acquire.Adapter{
				FS:        fs,
				Client:    client,
				ExportURL: cfg.HTTP.ExportURL,
				UserAgent: cfg.HTTP.UserAgent,
				CacheDir:  cfg.CacheDir,
				Logger:    log,
			}, nil
		},
	}
}

// Outcome is what Ensure did.
type Outcome struct {
	// Built is false when the gate found an existing store.
	Built  bool
	Report Report
}

// Ensure builds the store described by cfg from reg unless the gate says it
// already exists. The returned error is non-nil only for fatal conditions;
// per-source failures are in Outcome.Report.
func (r *Runner) Ensure(ctx context.Context, cfg config.Config, reg *registry.Registry) (Outcome, error) {
	log := logging.OrNop(r.Logger)
	fs := r.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	location := cfg.GateLocation()
	need, err := ShouldBuild(fs, location)
	if err != nil {
		return Outcome{}, err
	}
	if !need {
		log.Info("store exists, skipping build", zap.String("location", location))
		return Outcome{}, nil
	}

	fetcher, err := r.NewFetcher(cfg, fs, log)
	if err != nil {
		return Outcome{}, fmt.Errorf("acquisition setup: %w", err)
	}

	log.Info("opening store",
		zap.String("kind", cfg.Store.Kind),
		zap.String("dsn", logging.RedactDSN(cfg.StoreDSN())),
	)
	repo, err := r.NewRepository(ctx, storage.Config{Kind: cfg.Store.Kind, DSN: cfg.StoreDSN()})
	if err != nil {
		return Outcome{}, err
	}
	defer repo.Close()

	b := &Builder{
		Sources: reg.List(),
		Fetcher: fetcher,
		Writer:  repo,
		Logger:  log,
		OnItem:  r.OnItem,
	}
	if cfg.ServerBacked() {
		b.BeforeFirstWrite = func(id uuid.UUID, at time.Time) error {
			return WriteStamp(fs, location, id, at)
		}
	}

	rep, err := b.Build(ctx)
	return Outcome{Built: true, Report: rep}, err
}
