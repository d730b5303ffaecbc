package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ShouldBuild reports whether a build is needed: true only when nothing exists
// at location. The content is never inspected, so a store left half-populated
// by an interrupted build is treated as built.
func ShouldBuild(fs afero.Fs, location string) (bool, error) {
	if location == "" {
		return false, errors.New("gate: empty location")
	}
	_, err := fs.Stat(location)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, os.ErrNotExist):
		return true, nil
	default:
		return false, fmt.Errorf("gate: stat %s: %w", location, err)
	}
}

// WriteStamp creates the marker file for a server-backed store.
func WriteStamp(fs afero.Fs, location string, buildID uuid.UUID, at time.Time) error {
	if dir := filepath.Dir(location); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("gate: mkdir %s: %w", dir, err)
		}
	}
	body := fmt.Sprintf("build_id=%s\nstarted=%s\n", buildID, at.UTC().Format(time.RFC3339))
	if err := afero.WriteFile(fs, location, []byte(body), 0o644); err != nil {
		return fmt.Errorf("gate: write %s: %w", location, err)
	}
	return nil
}
