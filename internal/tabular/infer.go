package tabular

import (
	"strconv"
	"strings"
)

// naValues are the cell spellings read as NULL. They match what the usual
// dataframe tooling treats as missing, which is how the upstream sources were
// produced and consumed.
var naValues = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// IsNA reports whether a raw cell is a missing-value marker.
func IsNA(s string) bool {
	_, ok := naValues[s]
	return ok
}

// inferTypes infers a coarse type per column from raw cells. NA cells are
// ignored; a column with no values at all stays Text.
func inferTypes(ncols int, rows [][]string) []Type {
	out := make([]Type, ncols)

	for col := 0; col < ncols; col++ {
		seen := false
		allInt := true
		allFloat := true

		for _, r := range rows {
			if col >= len(r) || IsNA(r[col]) {
				continue
			}
			v := strings.TrimSpace(r[col])
			if v == "" {
				continue
			}
			seen = true

			if allInt {
				if _, err := strconv.ParseInt(v, 10, 64); err != nil {
					allInt = false
				}
			}
			if allFloat {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					allFloat = false
				}
			}
			if !allInt && !allFloat {
				break
			}
		}

		switch {
		case !seen:
			out[col] = Text
		case allInt:
			out[col] = Integer
		case allFloat:
			out[col] = Real
		default:
			out[col] = Text
		}
	}
	return out
}

// convert turns a raw cell into the scalar for its column type.
func convert(raw string, t Type) any {
	if IsNA(raw) {
		return nil
	}
	switch t {
	case Integer:
		v := strings.TrimSpace(raw)
		if v == "" {
			return nil
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case Real:
		v := strings.TrimSpace(raw)
		if v == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return raw
}
