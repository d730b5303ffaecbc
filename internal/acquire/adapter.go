// Package acquire turns a registry source item into a parsed table, whatever
// its delivery: a local file, a sharable link, or a member of a remote archive.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"mirnadb/internal/apperr"
	"mirnadb/internal/metrics"
	"mirnadb/internal/registry"
	"mirnadb/internal/tabular"
)

// Adapter fetches source items. The zero value reads from the OS filesystem,
// downloads through a cookie-aware client and caches archives under
// ".cache/archives".
type Adapter struct {
	FS        afero.Fs
	Client    *http.Client
	ExportURL string
	UserAgent string
	CacheDir  string
	CSV       tabular.Options
	Logger    *zap.Logger
}

func (a *Adapter) fs() afero.Fs {
	if a.FS == nil {
		a.FS = afero.NewOsFs()
	}
	return a.FS
}

func (a *Adapter) client() *http.Client {
	if a.Client == nil {
		c, err := NewHTTPClient(10 * time.Minute)
		if err != nil {
			c = &http.Client{Timeout: 10 * time.Minute}
		}
		a.Client = c
	}
	return a.Client
}

func (a *Adapter) exportURL() string {
	if a.ExportURL == "" {
		return DefaultExportURL
	}
	return a.ExportURL
}

func (a *Adapter) cacheDir() string {
	if a.CacheDir == "" {
		return ".cache/archives"
	}
	return a.CacheDir
}

func (a *Adapter) logger() *zap.Logger {
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
	return a.Logger
}

// Fetch acquires and parses item.
//
// Errors wrap one of:
//   - apperr.ErrNotFound: local file or archive member missing
//   - apperr.ErrNetwork: transport failure or non-2xx response
//   - apperr.ErrFormat: content is not tabular (or, for archives, not a zip)
func (a *Adapter) Fetch(ctx context.Context, item registry.SourceItem) (tabular.Table, error) {
	start := time.Now()

	var (
		t   tabular.Table
		err error
	)
	switch acq := item.Acquisition.(type) {
	case registry.LocalFile:
		t, err = a.fetchLocal(acq)
	case registry.DirectLink:
		t, err = a.fetchLink(ctx, acq)
	case registry.ArchiveMember:
		t, err = a.fetchMember(ctx, acq)
	default:
		err = fmt.Errorf("%w: unsupported acquisition %T", apperr.ErrFormat, item.Acquisition)
	}

	status := "ok"
	if err != nil {
		status = string(apperr.KindOf(err))
	}
	metrics.RecordStep("acquire", status, time.Since(start))
	if err != nil {
		return tabular.Table{}, err
	}
	metrics.RecordRows("read", int64(t.Len()))
	return t, nil
}

func (a *Adapter) fetchLocal(f registry.LocalFile) (tabular.Table, error) {
	b, err := afero.ReadFile(a.fs(), f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tabular.Table{}, fmt.Errorf("%w: %s", apperr.ErrNotFound, f.Path)
		}
		return tabular.Table{}, fmt.Errorf("%w: read %s: %v", apperr.ErrNotFound, f.Path, err)
	}
	return a.parse(b, f.Path)
}

func (a *Adapter) fetchLink(ctx context.Context, l registry.DirectLink) (tabular.Table, error) {
	target := ResolveLink(a.exportURL(), l.URL)
	resp, err := a.get(ctx, target)
	if err != nil {
		return tabular.Table{}, err
	}
	if f := Sniff(resp.body); f != PlainTabular {
		return tabular.Table{}, fmt.Errorf("%w: %s: got %s content, want delimited text", apperr.ErrFormat, l.URL, f)
	}
	return a.parse(resp.body, l.URL)
}

func (a *Adapter) parse(b []byte, origin string) (tabular.Table, error) {
	t, err := tabular.ReadCSV(b, a.CSV)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("%s: %w", origin, err)
	}
	return t, nil
}
