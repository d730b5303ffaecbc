// Package loader populates the relational store from the source registry and
// decides whether that needs to happen at all.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mirnadb/internal/apperr"
	"mirnadb/internal/metrics"
	"mirnadb/internal/registry"
	"mirnadb/internal/schema"
	"mirnadb/internal/storage"
	"mirnadb/internal/tabular"
)

// Fetcher acquires a source item as a parsed table.
type Fetcher interface {
	Fetch(ctx context.Context, item registry.SourceItem) (tabular.Table, error)
}

// TableWriter persists a table, replacing any table of the same name.
type TableWriter interface {
	ReplaceTable(ctx context.Context, table string, data tabular.Table) (int64, error)
}

// Builder runs one build pass over Sources.
type Builder struct {
	Sources []registry.SourceItem
	Fetcher Fetcher
	Writer  TableWriter
	Logger  *zap.Logger

	// BeforeFirstWrite runs once, right before the first table is written.
	// A failure is fatal to the pass.
	BeforeFirstWrite func(buildID uuid.UUID, at time.Time) error

	// OnItem observes every item result as it is produced.
	OnItem func(ItemResult)

	now   func() time.Time
	newID func() uuid.UUID
}

func (b *Builder) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

// Build visits every source in order: acquire, normalize the join key, derive
// the table name and replace the table.
//
// Acquisition failures and tables the store rejects as malformed are recorded
// in the report and the pass continues. A storage failure or a cancelled ctx
// aborts the pass; the partial report is returned together with the error.
func (b *Builder) Build(ctx context.Context) (Report, error) {
	if b.Fetcher == nil || b.Writer == nil {
		return Report{}, errors.New("loader: builder needs a fetcher and a writer")
	}
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}

	id := uuid.New()
	if b.newID != nil {
		id = b.newID()
	}
	rep := Report{BuildID: id, Started: b.clock()}
	log = log.With(zap.String("build_id", id.String()))
	log.Info("build started", zap.Int("sources", len(b.Sources)))

	wroteAny := false
	for _, item := range b.Sources {
		if err := ctx.Err(); err != nil {
			return b.abort(log, rep, fmt.Errorf("build interrupted before %s: %w", item, err))
		}

		res, err := b.loadItem(ctx, log, item, func() error {
			if wroteAny || b.BeforeFirstWrite == nil {
				return nil
			}
			wroteAny = true
			if err := b.BeforeFirstWrite(id, rep.Started); err != nil {
				return storage.Wrap("mark store", err)
			}
			return nil
		})
		if err != nil {
			return b.abort(log, rep, err)
		}

		rep.Items = append(rep.Items, res)
		if b.OnItem != nil {
			b.OnItem(res)
		}
	}

	rep.Finished = b.clock()
	metrics.RecordStep("build", "ok", rep.Finished.Sub(rep.Started))
	log.Info("build finished",
		zap.Int("loaded", len(rep.Loaded())),
		zap.Int("failed", len(rep.Failures())),
		zap.Strings("joinable", rep.Joinable()),
		zap.Duration("duration", rep.Finished.Sub(rep.Started)),
	)
	return rep, nil
}

// loadItem returns a non-nil error only when the pass must stop.
func (b *Builder) loadItem(ctx context.Context, log *zap.Logger, item registry.SourceItem, beforeWrite func() error) (ItemResult, error) {
	start := b.clock()
	table := schema.TableName(item.Category, item.Name)
	res := ItemResult{Item: item, Table: table}
	fields := []zap.Field{
		zap.String("category", item.Category),
		zap.String("source", item.Name),
		zap.String("table", table),
	}

	raw, err := b.Fetcher.Fetch(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("build interrupted during %s: %w", item, ctx.Err())
		}
		res.Err = err
		res.Duration = b.clock().Sub(start)
		log.Warn("source skipped", append(fields,
			zap.String("stage", "acquire"),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)...)
		return res, nil
	}

	data := schema.Normalize(raw)
	res.JoinKey = schema.HasJoinKey(data.Columns)

	if err := beforeWrite(); err != nil {
		return res, err
	}

	persistStart := b.clock()
	n, err := b.Writer.ReplaceTable(ctx, table, data)
	res.Duration = b.clock().Sub(start)
	if err != nil {
		metrics.RecordStep("persist", string(apperr.KindOf(err)), b.clock().Sub(persistStart))
		if apperr.Fatal(err) {
			log.Error("store write failed", append(fields, zap.String("stage", "persist"), zap.Error(err))...)
			return res, fmt.Errorf("build aborted at %s: %w", item, err)
		}
		res.Err = err
		log.Warn("source skipped", append(fields,
			zap.String("stage", "persist"),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)...)
		return res, nil
	}

	metrics.RecordStep("persist", "ok", b.clock().Sub(persistStart))
	metrics.RecordRows("loaded", n)
	res.Rows = n
	log.Info("table loaded", append(fields,
		zap.String("stage", "persist"),
		zap.Int64("rows", n),
		zap.Bool("join_key", res.JoinKey),
		zap.Duration("duration", res.Duration),
	)...)
	return res, nil
}

func (b *Builder) abort(log *zap.Logger, rep Report, err error) (Report, error) {
	rep.Fatal = err
	rep.Finished = b.clock()
	metrics.RecordStep("build", string(apperr.KindOf(err)), rep.Finished.Sub(rep.Started))
	log.Error("build aborted", zap.Int("processed", len(rep.Items)), zap.Error(err))
	return rep, err
}
