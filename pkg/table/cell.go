package table

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies the type of value held by a Cell.
type Kind uint8

const (
	// KindString is a text cell, written quoted.
	KindString Kind = iota
	// KindNumber is a decimal cell, written bare.
	KindNumber
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	default:
		return "string"
	}
}

// Cell is a single value in a Row: a float64 or a string.
// The zero Cell is the empty string.
type Cell struct {
	kind Kind
	str  string
	num  float64
}

// String returns a string cell.
func String(s string) Cell {
	return Cell{kind: KindString, str: s}
}

// Number returns a numeric cell.
func Number(f float64) Cell {
	return Cell{kind: KindNumber, num: f}
}

// Kind returns the cell kind.
func (c Cell) Kind() Kind {
	return c.kind
}

// IsNumber reports whether c holds a number.
func (c Cell) IsNumber() bool {
	return c.kind == KindNumber
}

// Float returns the numeric value and true for a number cell.
func (c Cell) Float() (float64, bool) {
	if c.kind != KindNumber {
		return 0, false
	}
	return c.num, true
}

// Text returns the string value and true for a string cell.
func (c Cell) Text() (string, bool) {
	if c.kind != KindString {
		return "", false
	}
	return c.str, true
}

// String renders the cell without quoting: strings verbatim, numbers in
// FormatNumber form.
func (c Cell) String() string {
	if c.kind == KindNumber {
		return FormatNumber(c.num)
	}
	return c.str
}

// Equal reports whether two cells have the same kind and value. NaN equals
// NaN so that tables holding missing readings compare as expected.
func (c Cell) Equal(o Cell) bool {
	if c.kind != o.kind {
		return false
	}
	if c.kind == KindString {
		return c.str == o.str
	}
	if math.IsNaN(c.num) && math.IsNaN(o.num) {
		return true
	}
	return c.num == o.num
}

// FormatNumber renders f as the shortest decimal that parses back to f.
// Integral values keep a trailing ".0" so a column read as decimal stays
// visibly decimal when written back out.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
