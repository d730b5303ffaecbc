// Package metrics is a small, backend-agnostic instrumentation layer.
//
// Pipeline code records through the package-level helpers; the process picks a
// concrete Backend once at startup with SetBackend. Without one, every call is a
// no-op.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	StepTotal           = "mirnadb_step_total"
	StepDurationSeconds = "mirnadb_step_duration_seconds"
	RowsTotal           = "mirnadb_rows_total"
	HTTPRequestsTotal   = "mirnadb_http_requests_total"
	HTTPErrorsTotal     = "mirnadb_http_errors_total"
	HTTPRequestSeconds  = "mirnadb_http_request_duration_seconds"
	HTTPResponseSeconds = "mirnadb_http_response_duration_seconds"
	HTTPDownloadBytes   = "mirnadb_http_download_bytes"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the no-op
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the current backend if it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep counts one pipeline step ("acquire", "persist", "build") with its
// outcome and records how long it took.
func RecordStep(step, status string, d time.Duration) {
	b := current()
	l := Labels{"step": step, "status": status}
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRows counts rows by kind ("read", "loaded").
func RecordRows(kind string, n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(n), Labels{"kind": kind})
}

// RecordHTTP records one HTTP attempt. status is 0 when no response arrived.
func RecordHTTP(status int, err error, request, response time.Duration, bytes int64) {
	b := current()
	s := "error"
	if status > 0 {
		s = strconv.Itoa(status)
	}
	l := Labels{"status": s}

	b.IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status < 200 || status > 299 {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	b.ObserveHistogram(HTTPRequestSeconds, request.Seconds(), l)
	if response > 0 {
		b.ObserveHistogram(HTTPResponseSeconds, response.Seconds(), l)
	}
	if bytes > 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}
