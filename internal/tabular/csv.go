package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"mirnadb/internal/apperr"
)

// Options controls ReadCSV.
type Options struct {
	// Comma is the field delimiter. Zero means sniff it from the header line.
	Comma rune

	// LazyQuotes relaxes quote handling for sloppy exports.
	LazyQuotes bool
}

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// candidateDelimiters are tried, in order, when Options.Comma is zero.
var candidateDelimiters = []rune{',', '\t', ';', '|'}

// ReadCSV parses a complete delimited-text document into a Table.
//
// Behavior:
//   - The first record is the header. Blank header cells become "Unnamed: <i>"
//     and repeated names get a ".<n>" suffix so every column is addressable.
//   - Rows shorter than the header are padded with NULL; longer rows are an error.
//   - Cells equal to an NA marker become nil; column types are inferred and
//     values converted (see inferTypes).
//
// Errors:
//   - All parse failures wrap apperr.ErrFormat.
func ReadCSV(data []byte, opt Options) (Table, error) {
	text, err := decodeText(data)
	if err != nil {
		return Table{}, fmt.Errorf("%w: decode: %v", apperr.ErrFormat, err)
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return Table{}, fmt.Errorf("%w: no columns to parse from empty input", apperr.ErrFormat)
	}

	comma := opt.Comma
	if comma == 0 {
		comma = sniffDelimiter(text)
	}

	cr := csv.NewReader(bytes.NewReader(text))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = opt.LazyQuotes

	hdr, err := cr.Read()
	if err != nil {
		return Table{}, fmt.Errorf("%w: read header: %v", apperr.ErrFormat, err)
	}
	columns := headerNames(hdr)

	var raw [][]string
	line := 1
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("%w: csv read: %v", apperr.ErrFormat, err)
		}
		if len(rec) > len(columns) {
			return Table{}, fmt.Errorf("%w: line %d: expected %d fields, saw %d", apperr.ErrFormat, line, len(columns), len(rec))
		}
		raw = append(raw, rec)
	}

	types := inferTypes(len(columns), raw)

	rows := make([][]any, len(raw))
	for i, rec := range raw {
		row := make([]any, len(columns))
		for c := range columns {
			if c >= len(rec) {
				row[c] = nil
				continue
			}
			row[c] = convert(rec[c], types[c])
		}
		rows[i] = row
	}

	return Table{Columns: columns, Types: types, Rows: rows}, nil
}

// decodeText returns UTF-8 text without a BOM.
//
// UTF-8 input (with or without BOM) passes through. UTF-16 with a BOM is
// decoded accordingly. Anything else that is not valid UTF-8 is decoded as
// Windows-1252, which covers the Latin-1 exports some curated sources ship.
func decodeText(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		return data[len(utf8BOM):], nil
	}
	isUTF16 := bytes.HasPrefix(data, utf16LEBOM) || bytes.HasPrefix(data, utf16BEBOM)
	if !isUTF16 && utf8.Valid(data) {
		return data, nil
	}
	dec := unicode.BOMOverride(charmap.Windows1252.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	return out, err
}

// sniffDelimiter picks the candidate delimiter that occurs most often in the
// first line. Ties and absent delimiters fall back to ','.
func sniffDelimiter(text []byte) rune {
	first := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		first = text[:i]
	}

	best := ','
	bestN := 0
	for _, d := range candidateDelimiters {
		n := bytes.Count(first, []byte(string(d)))
		if n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// headerNames makes header cells usable as column names. Names are otherwise
// kept verbatim, including surrounding whitespace.
func headerNames(hdr []string) []string {
	out := make([]string, len(hdr))
	seen := make(map[string]int, len(hdr))

	for i, h := range hdr {
		if strings.TrimSpace(h) == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		name := h
		if n, dup := seen[h]; dup {
			for {
				n++
				name = h + "." + strconv.Itoa(n)
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[h] = n
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}
