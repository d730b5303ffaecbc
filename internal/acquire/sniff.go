package acquire

import "bytes"

// Format is the content class of a downloaded blob.
type Format int

const (
	Unrecognized Format = iota
	Archive
	PlainTabular
)

func (f Format) String() string {
	switch f {
	case Archive:
		return "archive"
	case PlainTabular:
		return "tabular"
	default:
		return "unrecognized"
	}
}

var (
	zipLocalHeader = []byte("PK\x03\x04")
	zipEmptyEnd    = []byte("PK\x05\x06")
)

// sniffLen is how much of a blob Sniff looks at.
const sniffLen = 4096

// Sniff classifies b by its leading bytes. Zip signatures are Archive. Empty
// input, markup (an HTML interstitial page) and binary content are
// Unrecognized. Everything else is PlainTabular and left for the CSV reader
// to accept or reject.
func Sniff(b []byte) Format {
	if len(b) == 0 {
		return Unrecognized
	}
	if bytes.HasPrefix(b, zipLocalHeader) || bytes.HasPrefix(b, zipEmptyEnd) {
		return Archive
	}
	if bytes.HasPrefix(b, []byte{0xFF, 0xFE}) || bytes.HasPrefix(b, []byte{0xFE, 0xFF}) {
		// UTF-16 text carries NUL bytes by nature.
		return PlainTabular
	}

	head := b
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return Unrecognized
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(head, []byte{0xEF, 0xBB, 0xBF}), " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] == '<' {
		return Unrecognized
	}
	return PlainTabular
}
