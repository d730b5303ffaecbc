package acquire

import (
	"net/url"
	"strings"
)

// DefaultExportURL is the Google Drive download endpoint.
const DefaultExportURL = "https://drive.google.com/uc"

// FileID extracts the opaque file id from a sharing link of the form
// ".../d/<id>/view...". ok is false when the link has no "/d/" segment or the
// id is empty.
func FileID(link string) (id string, ok bool) {
	const marker = "/d/"
	i := strings.Index(link, marker)
	if i < 0 {
		return "", false
	}
	rest := link[i+len(marker):]
	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// DownloadURL builds "<exportURL>?export=download&id=<id>".
func DownloadURL(exportURL, id string) string {
	q := url.Values{}
	q.Set("export", "download")
	q.Set("id", id)
	return exportURL + "?" + q.Encode()
}

// ResolveLink turns a sharing link into a direct download URL. Links without a
// "/d/" segment are returned unchanged and fetched as-is.
func ResolveLink(exportURL, link string) string {
	id, ok := FileID(link)
	if !ok {
		return link
	}
	return DownloadURL(exportURL, id)
}
