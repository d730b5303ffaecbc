// Package apperr defines the error kinds shared by acquisition, storage and the
// schema builder. Producers wrap one of the sentinels with %w; consumers classify
// with errors.Is or KindOf.
package apperr

import "errors"

var (
	// ErrNotFound indicates a local file or archive member is missing.
	ErrNotFound = errors.New("not found")

	// ErrNetwork indicates a transport failure during acquisition.
	ErrNetwork = errors.New("network error")

	// ErrFormat indicates content that is not valid tabular or archive data.
	ErrFormat = errors.New("format error")

	// ErrStorage indicates the store itself could not be written.
	ErrStorage = errors.New("storage error")
)

// Kind is the coarse classification of a pipeline error.
type Kind string

const (
	KindNone     Kind = ""
	KindNotFound Kind = "NotFound"
	KindNetwork  Kind = "NetworkError"
	KindFormat   Kind = "FormatError"
	KindStorage  Kind = "StorageError"
	KindUnknown  Kind = "Unknown"
)

// KindOf classifies err. Storage wins over the other kinds when an error wraps
// more than one sentinel, since a store failure must never be downgraded.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrFormat):
		return KindFormat
	default:
		return KindUnknown
	}
}

// Fatal reports whether err must abort a build pass.
func Fatal(err error) bool {
	return KindOf(err) == KindStorage
}
