package loader

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"mirnadb/internal/apperr"
	"mirnadb/internal/registry"
)

// ItemResult is the outcome of loading one source item.
type ItemResult struct {
	Item registry.SourceItem

	// Table is the derived table name. It is set even when the item failed
	// before anything was written.
	Table string

	Rows    int64
	JoinKey bool

	Err      error
	Duration time.Duration
}

// OK reports whether the item was persisted.
func (r ItemResult) OK() bool { return r.Err == nil }

// Kind classifies the failure, or returns apperr.KindNone.
func (r ItemResult) Kind() apperr.Kind { return apperr.KindOf(r.Err) }

func (r ItemResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Item, r.Kind(), r.Err)
	}
	return fmt.Sprintf("%s -> %s (%d rows)", r.Item, r.Table, r.Rows)
}

// Report summarises one build pass.
type Report struct {
	BuildID  uuid.UUID
	Started  time.Time
	Finished time.Time

	// Items holds one entry per processed source item, in registry order.
	Items []ItemResult

	// Fatal is the error that aborted the pass, if any. Items processed
	// before it are still listed.
	Fatal error
}

// Loaded returns the items that were persisted.
func (r Report) Loaded() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.OK() {
			out = append(out, it)
		}
	}
	return out
}

// Failures returns the items that were skipped, each with its cause.
func (r Report) Failures() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if !it.OK() {
			out = append(out, it)
		}
	}
	return out
}

// Joinable lists loaded tables carrying the canonical join key.
func (r Report) Joinable() []string {
	var out []string
	for _, it := range r.Items {
		if it.OK() && it.JoinKey {
			out = append(out, it.Table)
		}
	}
	return out
}

// Complete reports whether every item was visited.
func (r Report) Complete() bool { return r.Fatal == nil }

// Summary is a one-line description suitable for logs and terminals.
func (r Report) Summary() string {
	s := fmt.Sprintf("%d loaded, %d failed, %d joinable", len(r.Loaded()), len(r.Failures()), len(r.Joinable()))
	if r.Fatal != nil {
		s += "; aborted: " + r.Fatal.Error()
	}
	return s
}
