package registry

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// catalogueFile is the on-disk catalogue layout.
//
//	categories:
//	  - name: core_disease
//	    sources:
//	      - name: HMDD.csv
//	        path: HMDD.csv
//	      - name: plasmiR.csv
//	        link: https://drive.google.com/file/d/<id>/view?usp=sharing
//	      - name: miRcancer.csv
//	        archive: {id: <id>, member: tables/miRcancer.csv}
type catalogueFile struct {
	Categories []struct {
		Name    string `yaml:"name"`
		Sources []struct {
			Name    string `yaml:"name"`
			Path    string `yaml:"path"`
			Link    string `yaml:"link"`
			Archive *struct {
				ID     string `yaml:"id"`
				Member string `yaml:"member"`
			} `yaml:"archive"`
		} `yaml:"sources"`
	} `yaml:"categories"`
}

// Load parses a YAML catalogue. Relative local paths resolve under dataDir.
func Load(r io.Reader, dataDir string) (*Registry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("registry: read catalogue: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var f catalogueFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("registry: parse catalogue: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("registry: catalogue declares no categories")
	}

	cats := make([]Category, 0, len(f.Categories))
	for _, c := range f.Categories {
		cat := Category{Name: c.Name}
		for _, s := range c.Sources {
			methods := 0
			var acq Acquisition
			if s.Path != "" {
				methods++
				p := s.Path
				if !filepath.IsAbs(p) {
					p = filepath.Join(dataDir, p)
				}
				acq = LocalFile{Path: p}
			}
			if s.Link != "" {
				methods++
				acq = DirectLink{URL: s.Link}
			}
			if s.Archive != nil {
				methods++
				acq = ArchiveMember{ArchiveID: s.Archive.ID, MemberPath: s.Archive.Member}
			}
			if methods > 1 {
				return nil, fmt.Errorf("registry: %s/%s: declare exactly one of path, link, archive", c.Name, s.Name)
			}
			cat.Sources = append(cat.Sources, SourceItem{Name: s.Name, Acquisition: acq})
		}
		cats = append(cats, cat)
	}

	return New(cats)
}
