package acquire

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"mirnadb/internal/apperr"
	"mirnadb/internal/registry"
	"mirnadb/internal/tabular"
)

func (a *Adapter) fetchMember(ctx context.Context, m registry.ArchiveMember) (tabular.Table, error) {
	dir, err := a.ensureExtracted(ctx, m.ArchiveID)
	if err != nil {
		return tabular.Table{}, err
	}

	p, err := memberPath(dir, m.MemberPath)
	if err != nil {
		return tabular.Table{}, err
	}
	b, err := afero.ReadFile(a.fs(), p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tabular.Table{}, fmt.Errorf("%w: member %s in archive %s", apperr.ErrNotFound, m.MemberPath, m.ArchiveID)
		}
		return tabular.Table{}, fmt.Errorf("%w: read member %s: %v", apperr.ErrNotFound, m.MemberPath, err)
	}
	return a.parse(b, m.ArchiveID+":"+m.MemberPath)
}

// ensureExtracted returns the extraction directory for id, downloading and
// unpacking the archive unless a non-empty directory is already there.
func (a *Adapter) ensureExtracted(ctx context.Context, id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: archive id %q is not a plain name", apperr.ErrFormat, id)
	}
	fs := a.fs()
	dir := filepath.Join(a.cacheDir(), id)

	if ok, _ := afero.DirExists(fs, dir); ok {
		if empty, err := afero.IsEmpty(fs, dir); err == nil && !empty {
			a.logger().Debug("archive cache hit", zap.String("archive_id", id), zap.String("dir", dir))
			return dir, nil
		}
	}

	blob, err := a.fetchArchiveBlob(ctx, id)
	if err != nil {
		return "", err
	}
	if f := Sniff(blob); f != Archive {
		return "", fmt.Errorf("%w: archive %s: got %s content, want zip", apperr.ErrFormat, id, f)
	}

	if err := extractZip(fs, blob, a.cacheDir(), dir); err != nil {
		return "", fmt.Errorf("archive %s: %w", id, err)
	}
	a.logger().Info("archive extracted", zap.String("archive_id", id), zap.String("dir", dir))
	return dir, nil
}

// extractZip unpacks blob into a temporary directory under parent and renames it
// to dir, so an interrupted extraction never looks like a populated cache.
// Entries that would land outside dir are rejected.
func extractZip(fs afero.Fs, blob []byte, parent, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return fmt.Errorf("%w: open zip: %v", apperr.ErrFormat, err)
	}

	if err := fs.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("%w: create cache dir: %v", apperr.ErrNotFound, err)
	}
	tmp, err := afero.TempDir(fs, parent, "."+filepath.Base(dir)+"-")
	if err != nil {
		return fmt.Errorf("%w: create temp dir: %v", apperr.ErrNotFound, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = fs.RemoveAll(tmp)
		}
	}()

	for _, f := range zr.File {
		target, err := memberPath(tmp, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := fs.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("%w: mkdir %s: %v", apperr.ErrNotFound, f.Name, err)
			}
			continue
		}
		if err := writeMember(fs, f, target); err != nil {
			return err
		}
	}

	// A leftover empty directory would block the rename.
	_ = fs.RemoveAll(dir)
	if err := fs.Rename(tmp, dir); err != nil {
		return fmt.Errorf("%w: commit extraction: %v", apperr.ErrNotFound, err)
	}
	committed = true
	return nil
}

func writeMember(fs afero.Fs, f *zip.File, target string) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir for %s: %v", apperr.ErrNotFound, f.Name, err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", apperr.ErrFormat, f.Name, err)
	}
	defer rc.Close()

	out, err := fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", apperr.ErrNotFound, f.Name, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: inflate %s: %v", apperr.ErrFormat, f.Name, err)
	}
	return out.Close()
}

// memberPath joins a slash-separated archive path onto root, rejecting absolute
// paths and anything that climbs out of root.
func memberPath(root, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" || path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: unsafe archive path %q", apperr.ErrFormat, name)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: unsafe archive path %q", apperr.ErrFormat, name)
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}
