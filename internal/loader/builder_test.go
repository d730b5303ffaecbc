package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mirnadb/internal/apperr"
	"mirnadb/internal/registry"
	"mirnadb/internal/storage"
	"mirnadb/internal/tabular"
)

type fakeFetcher struct {
	tables map[string]tabular.Table
	errs   map[string]error
	calls  []string
	hook   func(item registry.SourceItem)
}

func (f *fakeFetcher) Fetch(_ context.Context, item registry.SourceItem) (tabular.Table, error) {
	f.calls = append(f.calls, item.String())
	if f.hook != nil {
		f.hook(item)
	}
	if err, ok := f.errs[item.Name]; ok {
		return tabular.Table{}, err
	}
	return f.tables[item.Name], nil
}

type fakeWriter struct {
	written map[string]tabular.Table
	order   []string
	errs    map[string]error
}

func (w *fakeWriter) ReplaceTable(_ context.Context, table string, data tabular.Table) (int64, error) {
	if err, ok := w.errs[table]; ok {
		return 0, err
	}
	if w.written == nil {
		w.written = map[string]tabular.Table{}
	}
	w.written[table] = data
	w.order = append(w.order, table)
	return int64(data.Len()), nil
}

func item(category, name string) registry.SourceItem {
	return registry.SourceItem{Category: category, Name: name, Acquisition: registry.LocalFile{Path: name}}
}

func twoRows(cols ...string) tabular.Table {
	t := tabular.Table{Columns: cols}
	for i := 0; i < 2; i++ {
		row := make([]any, len(cols))
		for j := range row {
			row[j] = fmt.Sprintf("r%dc%d", i, j)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func fixedBuilder(sources []registry.SourceItem, f Fetcher, w TableWriter, log *zap.Logger) *Builder {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &Builder{
		Sources: sources,
		Fetcher: f,
		Writer:  w,
		Logger:  log,
		now:     func() time.Time { return at },
		newID:   func() uuid.UUID { return uuid.MustParse("6a1f0c1e-9d1b-4a57-8f57-0b8f6f3f9a10") },
	}
}

func TestBuild_PartialFailuresAreRecorded(t *testing.T) {
	sources := []registry.SourceItem{
		item("core_mirna", "merged_mirBase.csv"),
		item("core_disease", "HMDD.csv"),
		item("core_drug", "ncDR.csv"),
		item("core_gene", "targets.csv"),
		item("relationships", "miRNet-mir-tf-hsa.csv"),
	}
	f := &fakeFetcher{
		tables: map[string]tabular.Table{
			"merged_mirBase.csv":    twoRows("mirna_id", "seq"),
			"ncDR.csv":              twoRows("drug"),
			"miRNet-mir-tf-hsa.csv": twoRows("MIRNAID", "tf"),
		},
		errs: map[string]error{
			"HMDD.csv":    fmt.Errorf("%w: open HMDD.csv", apperr.ErrNotFound),
			"targets.csv": fmt.Errorf("%w: GET targets: 503", apperr.ErrNetwork),
		},
	}
	w := &fakeWriter{}

	rep, err := fixedBuilder(sources, f, w, nil).Build(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Complete())

	require.Len(t, rep.Items, 5)
	assert.Len(t, rep.Loaded(), 3)
	require.Len(t, rep.Failures(), 2)
	assert.Equal(t, "HMDD.csv", rep.Failures()[0].Item.Name)
	assert.Equal(t, apperr.KindNotFound, rep.Failures()[0].Kind())
	assert.Equal(t, "targets.csv", rep.Failures()[1].Item.Name)
	assert.Equal(t, apperr.KindNetwork, rep.Failures()[1].Kind())
	assert.NotEqual(t, rep.Failures()[0].Err.Error(), rep.Failures()[1].Err.Error())

	assert.Equal(t, []string{"core_mirna_merged_mirbase", "core_drug_ncdr", "relationships_mirnet_mir_tf_hsa"}, w.order)
	assert.Equal(t, []string{"core_mirna_merged_mirbase", "relationships_mirnet_mir_tf_hsa"}, rep.Joinable())
	assert.Equal(t, "core_disease_hmdd", rep.Failures()[0].Table)
	assert.Equal(t, "6a1f0c1e-9d1b-4a57-8f57-0b8f6f3f9a10", rep.BuildID.String())
	assert.Equal(t, "3 loaded, 2 failed, 2 joinable", rep.Summary())
}

func TestBuild_NormalizesJoinKeyBeforeWrite(t *testing.T) {
	f := &fakeFetcher{tables: map[string]tabular.Table{
		"HMDD.csv": twoRows("PMID", "MiRNAid", "Disease", "mirna_id"),
	}}
	w := &fakeWriter{}

	rep, err := fixedBuilder([]registry.SourceItem{item("core_disease", "HMDD.csv")}, f, w, nil).Build(context.Background())
	require.NoError(t, err)

	got := w.written["core_disease_hmdd"]
	assert.Equal(t, []string{"PMID", "miRNA_ID", "Disease", "mirna_id"}, got.Columns)
	assert.Equal(t, twoRows("PMID", "MiRNAid", "Disease", "mirna_id").Rows, got.Rows)
	require.Len(t, rep.Items, 1)
	assert.True(t, rep.Items[0].JoinKey)
	assert.Equal(t, int64(2), rep.Items[0].Rows)
}

func TestBuild_FormatErrorFromStoreIsNotFatal(t *testing.T) {
	sources := []registry.SourceItem{item("a", "x.csv"), item("a", "y.csv")}
	f := &fakeFetcher{tables: map[string]tabular.Table{
		"x.csv": twoRows("id", "ID"),
		"y.csv": twoRows("id"),
	}}
	w := &fakeWriter{errs: map[string]error{
		"a_x": fmt.Errorf("%w: columns %q and %q collide", apperr.ErrFormat, "id", "ID"),
	}}

	rep, err := fixedBuilder(sources, f, w, nil).Build(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Failures(), 1)
	assert.Equal(t, apperr.KindFormat, rep.Failures()[0].Kind())
	assert.Equal(t, []string{"a_y"}, w.order)
}

func TestBuild_StorageErrorAborts(t *testing.T) {
	sources := []registry.SourceItem{item("a", "one.csv"), item("a", "two.csv"), item("a", "three.csv")}
	f := &fakeFetcher{tables: map[string]tabular.Table{
		"one.csv":   twoRows("c"),
		"two.csv":   twoRows("c"),
		"three.csv": twoRows("c"),
	}}
	w := &fakeWriter{errs: map[string]error{
		"a_two": storage.Wrap("insert into a_two", errors.New("disk I/O error")),
	}}

	core, logs := observer.New(zapcore.DebugLevel)
	rep, err := fixedBuilder(sources, f, w, zap.New(core)).Build(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.Fatal(err))
	assert.Contains(t, err.Error(), "a/two.csv")

	assert.False(t, rep.Complete())
	assert.Equal(t, err, rep.Fatal)
	require.Len(t, rep.Items, 1)
	assert.Equal(t, []string{"a/one.csv", "a/two.csv"}, f.calls)
	assert.Equal(t, 1, logs.FilterMessage("build aborted").Len())
	assert.Equal(t, 1, logs.FilterMessage("store write failed").Len())
}

func TestBuild_CancelledBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sources := []registry.SourceItem{item("a", "one.csv"), item("a", "two.csv")}
	f := &fakeFetcher{
		tables: map[string]tabular.Table{"one.csv": twoRows("c"), "two.csv": twoRows("c")},
		hook: func(registry.SourceItem) {
			cancel()
		},
	}
	w := &fakeWriter{}

	rep, err := fixedBuilder(sources, f, w, nil).Build(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, rep.Items, 1)
	assert.Equal(t, []string{"a/one.csv"}, f.calls)
}

func TestBuild_FetchFailureAfterCancelIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{
		errs: map[string]error{"one.csv": fmt.Errorf("%w: %w", apperr.ErrNetwork, context.Canceled)},
		hook: func(registry.SourceItem) { cancel() },
	}

	rep, err := fixedBuilder([]registry.SourceItem{item("a", "one.csv")}, f, &fakeWriter{}, nil).Build(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interrupted during a/one.csv")
	assert.Empty(t, rep.Items)
}

func TestBuild_BeforeFirstWriteRunsOnce(t *testing.T) {
	sources := []registry.SourceItem{item("a", "missing.csv"), item("a", "one.csv"), item("a", "two.csv")}
	f := &fakeFetcher{
		tables: map[string]tabular.Table{"one.csv": twoRows("c"), "two.csv": twoRows("c")},
		errs:   map[string]error{"missing.csv": fmt.Errorf("%w: missing.csv", apperr.ErrNotFound)},
	}
	w := &fakeWriter{}

	b := fixedBuilder(sources, f, w, nil)
	var calls int
	var gotID uuid.UUID
	b.BeforeFirstWrite = func(id uuid.UUID, _ time.Time) error {
		calls++
		gotID = id
		assert.Empty(t, w.order, "hook must run before the first write")
		return nil
	}

	rep, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, rep.BuildID, gotID)
}

func TestBuild_BeforeFirstWriteFailureIsFatal(t *testing.T) {
	f := &fakeFetcher{tables: map[string]tabular.Table{"one.csv": twoRows("c")}}
	w := &fakeWriter{}
	b := fixedBuilder([]registry.SourceItem{item("a", "one.csv")}, f, w, nil)
	b.BeforeFirstWrite = func(uuid.UUID, time.Time) error { return errors.New("read-only file system") }

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.Empty(t, w.order)
}

func TestBuild_LogsStageFields(t *testing.T) {
	f := &fakeFetcher{
		tables: map[string]tabular.Table{"HMDD.csv": twoRows("PMID", "miRNA_ID", "Disease")},
		errs:   map[string]error{"gone.csv": fmt.Errorf("%w: gone.csv", apperr.ErrNotFound)},
	}
	core, logs := observer.New(zapcore.DebugLevel)

	var seen []ItemResult
	b := fixedBuilder([]registry.SourceItem{item("core_disease", "HMDD.csv"), item("core_disease", "gone.csv")}, f, &fakeWriter{}, zap.New(core))
	b.OnItem = func(r ItemResult) { seen = append(seen, r) }

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen, 2)

	loaded := logs.FilterMessage("table loaded").All()
	require.Len(t, loaded, 1)
	fields := loaded[0].ContextMap()
	assert.Equal(t, "persist", fields["stage"])
	assert.Equal(t, "core_disease", fields["category"])
	assert.Equal(t, "HMDD.csv", fields["source"])
	assert.Equal(t, "core_disease_hmdd", fields["table"])
	assert.Equal(t, int64(2), fields["rows"])
	assert.Equal(t, "6a1f0c1e-9d1b-4a57-8f57-0b8f6f3f9a10", fields["build_id"])

	skipped := logs.FilterMessage("source skipped").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, zapcore.WarnLevel, skipped[0].Level)
	assert.Equal(t, "NotFound", skipped[0].ContextMap()["kind"])
	assert.Equal(t, "acquire", skipped[0].ContextMap()["stage"])
}

func TestBuild_RequiresCollaborators(t *testing.T) {
	_, err := (&Builder{}).Build(context.Background())
	require.Error(t, err)
}

func TestItemResultString(t *testing.T) {
	ok := ItemResult{Item: item("core_disease", "HMDD.csv"), Table: "core_disease_hmdd", Rows: 2}
	assert.Equal(t, "core_disease/HMDD.csv -> core_disease_hmdd (2 rows)", ok.String())

	bad := ItemResult{Item: item("core_disease", "HMDD.csv"), Err: fmt.Errorf("%w: HMDD.csv", apperr.ErrNotFound)}
	assert.Equal(t, "core_disease/HMDD.csv: NotFound: not found: HMDD.csv", bad.String())
}
