// Package registry is the catalogue of datasets the store is built from.
package registry

import (
	"fmt"
	"strings"

	"mirnadb/internal/schema"
)

// Acquisition describes how a source's bytes are obtained. It is one of
// LocalFile, DirectLink or ArchiveMember.
type Acquisition interface {
	// Method names the acquisition variant ("local", "link", "archive").
	Method() string
	// Describe renders the acquisition for logs and listings.
	Describe() string
}

// LocalFile reads a file from the local filesystem.
type LocalFile struct {
	Path string
}

// DirectLink downloads a file behind a sharable link.
type DirectLink struct {
	URL string
}

// ArchiveMember reads one file out of a downloaded archive.
type ArchiveMember struct {
	ArchiveID  string
	MemberPath string
}

func (LocalFile) Method() string     { return "local" }
func (DirectLink) Method() string    { return "link" }
func (ArchiveMember) Method() string { return "archive" }

func (a LocalFile) Describe() string  { return a.Path }
func (a DirectLink) Describe() string { return a.URL }
func (a ArchiveMember) Describe() string {
	return a.ArchiveID + ":" + a.MemberPath
}

// SourceItem is one named dataset to ingest.
type SourceItem struct {
	Category    string
	Name        string
	Acquisition Acquisition
}

func (s SourceItem) String() string {
	return s.Category + "/" + s.Name
}

// Category groups source items under one name, in catalogue order.
type Category struct {
	Name    string
	Sources []SourceItem
}

// Registry is an ordered, validated catalogue.
type Registry struct {
	categories []Category
}

// New validates categories and returns a Registry over them.
//
// Errors:
//   - empty category or source names
//   - a source without an acquisition, or with empty acquisition fields
//   - a source name repeated within its category
//   - a category name repeated
//   - two sources, in any categories, that derive the same table name
//     (e.g. "miRNet-snp.csv" and "miRNet_snp.csv")
func New(categories []Category) (*Registry, error) {
	seenCat := make(map[string]struct{}, len(categories))
	tables := make(map[string]SourceItem)
	out := make([]Category, 0, len(categories))

	for ci, c := range categories {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("registry: category %d has empty name", ci)
		}
		if _, dup := seenCat[c.Name]; dup {
			return nil, fmt.Errorf("registry: category %q declared twice", c.Name)
		}
		seenCat[c.Name] = struct{}{}

		seen := make(map[string]struct{}, len(c.Sources))
		items := make([]SourceItem, 0, len(c.Sources))
		for si, s := range c.Sources {
			if strings.TrimSpace(s.Name) == "" {
				return nil, fmt.Errorf("registry: %s: source %d has empty name", c.Name, si)
			}
			if _, dup := seen[s.Name]; dup {
				return nil, fmt.Errorf("registry: %s: source %q declared twice", c.Name, s.Name)
			}
			seen[s.Name] = struct{}{}

			if err := validateAcquisition(s.Acquisition); err != nil {
				return nil, fmt.Errorf("registry: %s/%s: %w", c.Name, s.Name, err)
			}
			s.Category = c.Name

			table := schema.TableName(c.Name, s.Name)
			if prev, dup := tables[table]; dup {
				return nil, fmt.Errorf("registry: %s and %s both map to table %s", prev, s, table)
			}
			tables[table] = s

			items = append(items, s)
		}
		out = append(out, Category{Name: c.Name, Sources: items})
	}

	return &Registry{categories: out}, nil
}

func validateAcquisition(a Acquisition) error {
	switch v := a.(type) {
	case nil:
		return fmt.Errorf("missing acquisition")
	case LocalFile:
		if v.Path == "" {
			return fmt.Errorf("local acquisition needs a path")
		}
	case DirectLink:
		if v.URL == "" {
			return fmt.Errorf("link acquisition needs a url")
		}
	case ArchiveMember:
		if v.ArchiveID == "" || v.MemberPath == "" {
			return fmt.Errorf("archive acquisition needs id and member")
		}
	default:
		return fmt.Errorf("unsupported acquisition %T", a)
	}
	return nil
}

// List returns every source item in catalogue order.
func (r *Registry) List() []SourceItem {
	var out []SourceItem
	for _, c := range r.categories {
		out = append(out, c.Sources...)
	}
	return out
}

// Categories returns the categories in catalogue order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.categories))
	copy(out, r.categories)
	return out
}

// Len returns the number of source items.
func (r *Registry) Len() int {
	n := 0
	for _, c := range r.categories {
		n += len(c.Sources)
	}
	return n
}
