package grading

import (
	"fmt"
	"math"
	"strconv"

	"ilp-go/internal/ilp"
)

// Letter is a grade letter and the lowest percentage that earns it.
type Letter struct {
	Name     string
	Boundary float64
}

// DefaultLetters is the platform default letter table, highest first.
var DefaultLetters = []Letter{
	{"A", 93}, {"A-", 90},
	{"B+", 87}, {"B", 83}, {"B-", 80},
	{"C+", 77}, {"C", 73}, {"C-", 70},
	{"D+", 67}, {"D", 60},
	{"F", 0},
}

// Empty is shown for a grade that has not been computed.
const Empty = "-"

// Formatter renders grades as real values, letters, or both.
type Formatter struct {
	decimals int
	letters  []Letter
}

// NewFormatter creates a Formatter using DefaultLetters.
func NewFormatter(decimals int) *Formatter {
	return &Formatter{decimals: decimals, letters: DefaultLetters}
}

// NewFormatterWithLetters creates a Formatter with a custom letter table,
// ordered highest boundary first.
func NewFormatterWithLetters(decimals int, letters []Letter) *Formatter {
	return &Formatter{decimals: decimals, letters: letters}
}

// Format renders value for display. A nil item is treated as a 0-100 scale.
func (f *Formatter) Format(value *float64, item *ilp.GradeItem, display ilp.GradeDisplay) string {
	if value == nil {
		return Empty
	}
	switch display {
	case ilp.GradeDisplayLetter:
		return f.letter(*value, item)
	case ilp.GradeDisplayRealLetter:
		return fmt.Sprintf("%s (%s)", f.real(*value), f.letter(*value, item))
	default:
		return f.real(*value)
	}
}

func (f *Formatter) real(v float64) string {
	return strconv.FormatFloat(v, 'f', f.decimals, 64)
}

func (f *Formatter) letter(v float64, item *ilp.GradeItem) string {
	pct := Percentage(v, item)
	for _, l := range f.letters {
		if pct >= l.Boundary {
			return l.Name
		}
	}
	return Empty
}

// Percentage maps v onto 0-100 using the item's grade range, rounded to
// five decimals so boundary values compare exactly.
func Percentage(v float64, item *ilp.GradeItem) float64 {
	lo, hi := 0.0, 100.0
	if item != nil {
		lo, hi = item.GradeMin, item.GradeMax
	}
	if hi <= lo {
		return 0
	}
	pct := (v - lo) / (hi - lo) * 100
	return math.Round(pct*1e5) / 1e5
}

var _ ilp.GradeFormatter = (*Formatter)(nil)
