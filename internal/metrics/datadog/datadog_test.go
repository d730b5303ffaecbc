package datadog

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"testing"
	"time"

	"mirnadb/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(_ context.Context, body datadogV2.MetricPayload, _ ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}
	}
	return f.payloads[len(f.payloads)-1]
}

func idleTicker(time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) }

func newTestBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:   "build",
		submitter: fs,
		now:       func() time.Time { return time.Unix(1000, 0) },
		newTicker: idleTicker,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func findSeries(p datadogV2.MetricPayload, metric string, tag string) (datadogV2.MetricSeries, bool) {
	for _, s := range p.Series {
		if s.Metric != metric {
			continue
		}
		if tag == "" || contains(s.Tags, tag) {
			return s, true
		}
	}
	return datadogV2.MetricSeries{}, false
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name, env, dd, want string
	}{
		{"ENV wins", "prod", "stage", "env:prod"},
		{"DD_ENV fallback", "", "stage", "env:stage"},
		{"whitespace ignored", "   ", "\n\t", "env:unknown"},
		{"default", "", "", "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			assert.Equal(t, tc.want, resolveEnvTag())
		})
	}
}

func TestWithTags_DoesNotAliasBase(t *testing.T) {
	base := []string{"env:test", "job:build"}
	got := withTags(base, "step:persist")
	assert.Equal(t, []string{"env:test", "job:build", "step:persist"}, got)

	got[0] = "env:mutated"
	assert.Equal(t, "env:test", base[0])
}

func TestPercentileNearestRank(t *testing.T) {
	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{"empty", nil, 0.5, 0},
		{"single", []float64{7}, 0.95, 7},
		{"p below zero", []float64{1, 2, 3}, -1, 1},
		{"p above one", []float64{1, 2, 3}, 2, 3},
		{"median", []float64{1, 2, 3, 4, 5}, 0.5, 3},
		{"p90 small n", []float64{1, 2, 3, 4, 5}, 0.9, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, percentileNearestRank(tc.s, tc.p))
		})
	}
}

func TestAddPercentiles_DoesNotMutateSamples(t *testing.T) {
	in := []float64{5, 1, 3, 2, 4}
	var series []datadogV2.MetricSeries

	addPercentiles(&series, []string{"status:200"}, "mirnadb.http.download_bytes", in, 99)

	require.Len(t, series, 6)
	assert.Equal(t, []float64{5, 1, 3, 2, 4}, in)

	last := series[5]
	assert.Equal(t, "mirnadb.http.download_bytes.samples", last.Metric)
	assert.Equal(t, float64(5), *last.Points[0].Value)
	assert.Equal(t, int64(99), *last.Points[0].Timestamp)
	assert.Equal(t, datadogV2.METRICINTAKETYPE_GAUGE, *last.Type)
}

func TestNewBackend_Defaults(t *testing.T) {
	b, err := NewBackend(context.Background(), Options{
		Tags:      []string{"team:bio"},
		submitter: &fakeSubmitter{},
		newTicker: idleTicker,
	})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.Contains(t, b.baseTags, "job:mirnadb")
	assert.Contains(t, b.baseTags, "team:bio")
	assert.Equal(t, 60*time.Second, b.flushEvery)
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	metrics.SetBackend(b)
	t.Cleanup(func() { metrics.SetBackend(nil) })

	metrics.RecordStep("persist", "ok", 500*time.Millisecond)
	metrics.RecordStep("persist", "ok", 250*time.Millisecond)
	metrics.RecordRows("loaded", 3)
	metrics.RecordHTTP(200, nil, 100*time.Millisecond, time.Second, 2048)

	require.NoError(t, metrics.Flush())
	require.Equal(t, 1, fs.count())

	p := fs.last()
	step, ok := findSeries(p, "mirnadb.step.total", "step:persist")
	require.True(t, ok)
	assert.Contains(t, step.Tags, "status:ok")
	assert.Contains(t, step.Tags, "job:build")
	assert.Equal(t, float64(2), *step.Points[0].Value)
	assert.Equal(t, datadogV2.METRICINTAKETYPE_COUNT, *step.Type)

	rows, ok := findSeries(p, "mirnadb.rows.total", "kind:loaded")
	require.True(t, ok)
	assert.Equal(t, float64(3), *rows.Points[0].Value)

	samples, ok := findSeries(p, "mirnadb.step.duration_seconds.samples", "")
	require.True(t, ok)
	assert.Equal(t, float64(2), *samples.Points[0].Value)

	_, ok = findSeries(p, "mirnadb.http.requests.total", "status:200")
	assert.True(t, ok)
	_, ok = findSeries(p, "mirnadb.http.errors.total", "")
	assert.False(t, ok)
	_, ok = findSeries(p, "mirnadb.http.download_bytes.p50", "status:200")
	assert.True(t, ok)

	b.mu.Lock()
	assert.Empty(t, b.counters)
	assert.Empty(t, b.samples)
	b.mu.Unlock()
}

func TestFlush_SeriesAreSorted(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "persist", "status": "ok"})
	b.IncCounter(metrics.HTTPRequestsTotal, 1, metrics.Labels{"status": "200"})
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "acquire", "status": "ok"})
	require.NoError(t, b.Flush())

	var names []string
	for _, s := range fs.last().Series {
		names = append(names, s.Metric)
	}
	assert.Equal(t, []string{"mirnadb.http.requests.total", "mirnadb.step.total", "mirnadb.step.total"}, names)
	assert.Contains(t, fs.last().Series[1].Tags, "step:acquire")
}

func TestFlush_NoDataDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, fs.count())
}

func TestFlush_ReturnsSubmitErrorAndDropsWindow(t *testing.T) {
	fs := &fakeSubmitter{err: errors.New("403 forbidden")}
	b := newTestBackend(t, fs)

	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "read"})
	require.EqualError(t, b.Flush(), "403 forbidden")

	fs.err = nil
	require.NoError(t, b.Flush())
	assert.Equal(t, 1, fs.count())
}

func TestIgnoredObservations(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter(metrics.StepTotal, 0, metrics.Labels{"step": "acquire", "status": "ok"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{})
	b.IncCounter("unknown_total", 1, metrics.Labels{"x": "y"})
	b.ObserveHistogram(metrics.StepDurationSeconds, -1, metrics.Labels{"step": "acquire", "status": "ok"})
	b.IncCounter(metrics.HTTPRequestsTotal, 1, nil)

	require.NoError(t, b.Flush())
	p := fs.last()
	require.Len(t, p.Series, 1)
	assert.Equal(t, "mirnadb.http.requests.total", p.Series[0].Metric)
	assert.Contains(t, p.Series[0].Tags, "status:unknown")
}

func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
	})
	require.NoError(t, err)

	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "read"})
	require.Eventually(t, func() bool { return fs.count() >= 1 }, time.Second, 2*time.Millisecond)

	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "read"})
	require.NoError(t, b.Close())
	assert.GreaterOrEqual(t, fs.count(), 2)

	assert.NoError(t, b.Close())
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	workers := runtime.GOMAXPROCS(0) * 4
	const iters = 500

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "persist", "status": "ok"})
				b.ObserveHistogram(metrics.StepDurationSeconds, 0.01, metrics.Labels{"step": "persist", "status": "ok"})
			}
		}()
	}
	wg.Wait()

	require.NoError(t, b.Flush())
	step, ok := findSeries(fs.last(), "mirnadb.step.total", "")
	require.True(t, ok)
	assert.Equal(t, float64(workers*iters), *step.Points[0].Value)
}

func TestParseTagsCSV(t *testing.T) {
	assert.Nil(t, ParseTagsCSV(""))
	assert.Equal(t, []string{"env:prod", "team:bio"}, ParseTagsCSV(" env:prod , ,team:bio, "))
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
