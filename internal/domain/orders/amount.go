package orders

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// maxExactExponent bounds the decimal exponent kept verbatim. Literals outside
// it go through float64 so rendering never has to expand a huge power of ten.
const maxExactExponent = 64

// leadingNumber matches the longest decimal literal at the start of a string.
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// Amount reads a monetary value leniently: the leading decimal literal of the
// value's text is used and anything unparseable becomes zero.
func (v Value) Amount() decimal.Decimal {
	raw := bytes.TrimSpace(v.raw)
	if len(raw) == 0 {
		return decimal.Zero
	}

	var text string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		text = string(raw)
	default:
		return decimal.Zero
	}

	return ParseAmount(text)
}

// ParseAmount parses the leading decimal literal of s, or returns zero.
func ParseAmount(s string) decimal.Decimal {
	m := leadingNumber.FindString(strings.TrimLeft(s, " \t\r\n"))
	if m == "" {
		return decimal.Zero
	}

	m = strings.TrimPrefix(m, "+")
	m = strings.Replace(m, ".e", "e", 1)
	m = strings.Replace(m, ".E", "E", 1)
	m = strings.TrimSuffix(m, ".")
	switch {
	case strings.HasPrefix(m, "."):
		m = "0" + m
	case strings.HasPrefix(m, "-."):
		m = "-0" + m[1:]
	}

	// overflow and non-finite values read as zero
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Zero
	}
	if len(m) > 2*maxExactExponent {
		return decimal.NewFromFloat(f)
	}

	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero
	}
	if exp := d.Exponent(); exp > maxExactExponent || exp < -maxExactExponent {
		return decimal.NewFromFloat(f)
	}
	return d
}
