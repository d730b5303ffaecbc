package acquire

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirnadb/internal/apperr"
	"mirnadb/internal/registry"
)

const hmddCSV = "PMID,miRNA_ID,Disease\n123,hsa-mir-21,Breast cancer\n456,hsa-let-7a,Glioma\n"

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// driveStub imitates the export endpoint: plain ids return their blob, "big"
// needs a cookie confirmation, "form" needs the interstitial form.
type driveStub struct {
	blobs map[string][]byte
	hits  atomic.Int32
}

func (d *driveStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.hits.Add(1)
	q := r.URL.Query()
	id := q.Get("id")

	switch {
	case r.URL.Path == "/uc" && id == "big" && q.Get("confirm") == "":
		http.SetCookie(w, &http.Cookie{Name: "download_warning_1234_big", Value: "t0k3n", Path: "/"})
		fmt.Fprint(w, "<html><body>Google Drive can't scan this file for viruses.</body></html>")
		return
	case r.URL.Path == "/uc" && id == "big" && q.Get("confirm") != "t0k3n":
		http.Error(w, "bad token", http.StatusForbidden)
		return
	case r.URL.Path == "/uc" && id == "form":
		fmt.Fprint(w, `<html><body>
<form id="download-form" action="/download" method="get">
  <input type="hidden" name="id" value="form">
  <input type="hidden" name="export" value="download">
  <input type="hidden" name="confirm" value="t">
  <input type="hidden" name="uuid" value="u-1">
  <input type="submit" value="Download anyway">
</form></body></html>`)
		return
	case r.URL.Path == "/download":
		if q.Get("confirm") != "t" || q.Get("uuid") != "u-1" {
			http.Error(w, "unconfirmed", http.StatusForbidden)
			return
		}
	case r.URL.Path != "/uc":
		http.NotFound(w, r)
		return
	}

	b, ok := d.blobs[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(b)
}

func newStubAdapter(t *testing.T, blobs map[string][]byte) (*Adapter, *driveStub, *httptest.Server) {
	t.Helper()
	stub := &driveStub{blobs: blobs}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(0)
	require.NoError(t, err)

	return &Adapter{
		FS:        afero.NewMemMapFs(),
		Client:    client,
		ExportURL: srv.URL + "/uc",
		CacheDir:  "/cache",
	}, stub, srv
}

func item(acq registry.Acquisition) registry.SourceItem {
	return registry.SourceItem{Category: "core_disease", Name: "HMDD.csv", Acquisition: acq}
}

func TestFetch_LocalFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/data/HMDD.csv", []byte(hmddCSV), 0o644))
	a := &Adapter{FS: fs}

	tbl, err := a.Fetch(context.Background(), item(registry.LocalFile{Path: "/data/HMDD.csv"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"PMID", "miRNA_ID", "Disease"}, tbl.Columns)
	assert.Equal(t, 2, tbl.Len())
}

func TestFetch_LocalFileMissing(t *testing.T) {
	a := &Adapter{FS: afero.NewMemMapFs()}

	_, err := a.Fetch(context.Background(), item(registry.LocalFile{Path: "/data/nope.csv"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Contains(t, err.Error(), "/data/nope.csv")
}

func TestFetch_LocalFileUnparseable(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/empty.csv", nil, 0o644))
	a := &Adapter{FS: fs}

	_, err := a.Fetch(context.Background(), item(registry.LocalFile{Path: "/data/empty.csv"}))
	assert.Equal(t, apperr.KindFormat, apperr.KindOf(err))
}

func TestFetch_DirectLink(t *testing.T) {
	a, _, srv := newStubAdapter(t, map[string][]byte{"abc123": []byte(hmddCSV)})

	link := srv.URL + "/file/d/abc123/view?usp=sharing"
	tbl, err := a.Fetch(context.Background(), item(registry.DirectLink{URL: link}))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
}

func TestFetch_DirectLinkErrors(t *testing.T) {
	a, _, srv := newStubAdapter(t, map[string][]byte{
		"page": []byte("<!DOCTYPE html><html></html>"),
		"zip":  zipOf(t, map[string]string{"x.csv": hmddCSV}),
	})

	tests := []struct {
		name string
		link string
		want apperr.Kind
	}{
		{"missing file", srv.URL + "/file/d/gone/view", apperr.KindNetwork},
		{"html page", srv.URL + "/file/d/page/view", apperr.KindFormat},
		{"archive instead of table", srv.URL + "/file/d/zip/view", apperr.KindFormat},
		{"fetched as-is", srv.URL + "/not-drive.csv", apperr.KindNetwork},
		{"unreachable", "http://127.0.0.1:1/HMDD.csv", apperr.KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Fetch(context.Background(), item(registry.DirectLink{URL: tt.link}))
			assert.Equal(t, tt.want, apperr.KindOf(err), "err=%v", err)
		})
	}
}

func TestFetch_ArchiveMemberAndCacheReuse(t *testing.T) {
	blob := zipOf(t, map[string]string{
		"tables/HMDD.csv":      hmddCSV,
		"tables/miRcancer.csv": "mirId,Cancer\nhsa-mir-21,breast\n",
	})
	a, stub, _ := newStubAdapter(t, map[string][]byte{"arc1": blob})
	ctx := context.Background()

	tbl, err := a.Fetch(ctx, item(registry.ArchiveMember{ArchiveID: "arc1", MemberPath: "tables/HMDD.csv"}))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.EqualValues(t, 1, stub.hits.Load())

	tbl, err = a.Fetch(ctx, item(registry.ArchiveMember{ArchiveID: "arc1", MemberPath: "tables/miRcancer.csv"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"mirId", "Cancer"}, tbl.Columns)
	assert.EqualValues(t, 1, stub.hits.Load(), "second member must come from the cache")

	ok, err := afero.Exists(a.FS, filepath.Join("/cache", "arc1", "tables", "HMDD.csv"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFetch_ArchiveMemberMissing(t *testing.T) {
	blob := zipOf(t, map[string]string{"a.csv": hmddCSV})
	a, _, _ := newStubAdapter(t, map[string][]byte{"arc1": blob})

	_, err := a.Fetch(context.Background(), item(registry.ArchiveMember{ArchiveID: "arc1", MemberPath: "b.csv"}))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestFetch_ArchiveCookieConfirmation(t *testing.T) {
	blob := zipOf(t, map[string]string{"HMDD.csv": hmddCSV})
	a, stub, _ := newStubAdapter(t, map[string][]byte{"big": blob})

	tbl, err := a.Fetch(context.Background(), item(registry.ArchiveMember{ArchiveID: "big", MemberPath: "HMDD.csv"}))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.EqualValues(t, 2, stub.hits.Load())
}

func TestFetch_ArchiveFormConfirmation(t *testing.T) {
	blob := zipOf(t, map[string]string{"HMDD.csv": hmddCSV})
	a, stub, _ := newStubAdapter(t, map[string][]byte{"form": blob})

	tbl, err := a.Fetch(context.Background(), item(registry.ArchiveMember{ArchiveID: "form", MemberPath: "HMDD.csv"}))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.EqualValues(t, 2, stub.hits.Load())
}

func TestFetch_ArchiveNotAZip(t *testing.T) {
	a, _, _ := newStubAdapter(t, map[string][]byte{"plain": []byte(hmddCSV)})

	_, err := a.Fetch(context.Background(), item(registry.ArchiveMember{ArchiveID: "plain", MemberPath: "HMDD.csv"}))
	assert.Equal(t, apperr.KindFormat, apperr.KindOf(err))

	ok, _ := afero.DirExists(a.FS, "/cache/plain")
	assert.False(t, ok)
}

func TestFetch_ArchiveZipSlip(t *testing.T) {
	blob := zipOf(t, map[string]string{"../../etc/evil.csv": hmddCSV})
	a, _, _ := newStubAdapter(t, map[string][]byte{"evil": blob})

	_, err := a.Fetch(context.Background(), item(registry.ArchiveMember{ArchiveID: "evil", MemberPath: "evil.csv"}))
	assert.Equal(t, apperr.KindFormat, apperr.KindOf(err))

	ok, _ := afero.DirExists(a.FS, "/cache/evil")
	assert.False(t, ok, "a failed extraction must not leave a cache entry")
	entries, _ := afero.ReadDir(a.FS, "/cache")
	assert.Empty(t, entries)
}

func TestFetch_ArchiveBadID(t *testing.T) {
	a := &Adapter{FS: afero.NewMemMapFs()}
	_, err := a.Fetch(context.Background(), item(registry.ArchiveMember{ArchiveID: "../x", MemberPath: "a.csv"}))
	assert.Equal(t, apperr.KindFormat, apperr.KindOf(err))
}

func TestFetch_ArchiveExistingCacheSkipsNetwork(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/cache/arc9", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/cache/arc9/HMDD.csv", []byte(hmddCSV), 0o644))
	a := &Adapter{FS: fs, CacheDir: "/cache", ExportURL: "http://127.0.0.1:1/uc"}

	tbl, err := a.Fetch(context.Background(), item(registry.ArchiveMember{ArchiveID: "arc9", MemberPath: "HMDD.csv"}))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
}

func TestFetch_ArchiveEmptyCacheDirIsRefetched(t *testing.T) {
	blob := zipOf(t, map[string]string{"HMDD.csv": hmddCSV})
	a, stub, _ := newStubAdapter(t, map[string][]byte{"arc2": blob})
	require.NoError(t, a.FS.MkdirAll("/cache/arc2", 0o755))

	_, err := a.Fetch(context.Background(), item(registry.ArchiveMember{ArchiveID: "arc2", MemberPath: "HMDD.csv"}))
	require.NoError(t, err)
	assert.EqualValues(t, 1, stub.hits.Load())
}
