package coltype

// values.go: canonical value types produced by Coerce and the helpers that
// turn raw cell input (CSV strings, decoded JSON) into Go scalars.

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date is a calendar date without time of day.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.Format(time.DateOnly) }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// TimeOfDay is a wall-clock time without date.
type TimeOfDay struct {
	Hour, Minute, Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// Storable converts a coerced value into a JSON-friendly scalar for
// persistence in a row's data document. Money keeps its exact decimal
// digits as a JSON number.
func Storable(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return json.Number(x.String())
	case Date:
		return x.String()
	case TimeOfDay:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	default:
		return v
	}
}

// IsEmpty reports whether raw counts as a missing cell: nil, or a string
// that is blank after trimming.
func IsEmpty(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case json.Number:
		return strings.TrimSpace(string(v)) == ""
	}
	return false
}

// CleanCell removes common spreadsheet artifacts from a cell: surrounding
// whitespace, the Excel ="..." formula wrapper and surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	if len(s) >= 2 && strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"") {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

// text renders any scalar as its string form.
func text(raw any) string {
	switch v := raw.(type) {
	case string:
		return CleanCell(v)
	case json.Number:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// cleanNumeric strips currency symbols, thousands separators and the
// accounting "(123.45)" negative form. It returns "" when the result is not
// a plain decimal literal.
func cleanNumeric(s string) string {
	s = CleanCell(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(s)
	if negative {
		s = "-" + s
	}
	if !numericRegex.MatchString(s) {
		return ""
	}
	return s
}

// toFloat converts numeric-looking input to a finite float64.
func toFloat(raw any) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case decimal.Decimal:
		f = v.InexactFloat64()
	case json.Number:
		return toFloat(string(v))
	case string:
		clean := cleanNumeric(v)
		if clean == "" {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		parsed, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		f = parsed
	case bool:
		return 0, fmt.Errorf("boolean %v is not a number", v)
	default:
		return 0, fmt.Errorf("%v is not a number", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", raw)
	}
	return f, nil
}

// ToDecimal converts numeric-looking input to an exact decimal.
func ToDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("%v is not a finite number", v)
		}
		return decimal.NewFromFloat(v), nil
	case json.Number:
		return ToDecimal(string(v))
	case string:
		clean := cleanNumeric(v)
		if clean == "" {
			return decimal.Zero, fmt.Errorf("%q is not a number", v)
		}
		d, err := decimal.NewFromString(clean)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%q is not a number", v)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("%v is not a number", raw)
	}
}

// ToInt converts input holding a whole number to int64.
func ToInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	}
	d, err := ToDecimal(raw)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%s is not a whole number", d.String())
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("%s is out of range", d.String())
	}
	return d.IntPart(), nil
}

// ToBool parses the usual spreadsheet spellings of a boolean.
func ToBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case float64:
		if v == 1 {
			return true, nil
		}
		if v == 0 {
			return false, nil
		}
	case int64:
		if v == 1 || v == 0 {
			return v == 1, nil
		}
	case int:
		if v == 1 || v == 0 {
			return v == 1, nil
		}
	case json.Number, string:
		switch strings.ToLower(text(v)) {
		case "true", "1", "yes", "on", "t", "y":
			return true, nil
		case "false", "0", "no", "off", "f", "n":
			return false, nil
		}
	}
	return false, fmt.Errorf("%v is not a boolean", raw)
}

// TwoDigitYearPivot decides the century of two-digit years: a year more
// than this many years in the future is moved back one century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2 January 2006",
		"20060102",
	}
	dateTimeLayouts = []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05", "2006-01-02T15:04",
		"2006-01-02 15:04:05", "2006-01-02 15:04",
		"2006-01-02 15:04:05Z07:00",
		"1/2/2006 15:04", "1/2/2006 3:04 PM",
	}
	timeLayouts = []string{
		"15:04:05", "15:04", "3:04:05 PM", "3:04 PM", "3:04PM", "3PM", "3 PM",
	}
)

func parseDate(s string) (time.Time, bool) {
	s = CleanCell(s)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	pivot := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivot {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDateTime(s string) (time.Time, bool) {
	s = CleanCell(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if t, ok := parseDate(s); ok {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func parseTimeOfDay(s string) (TimeOfDay, bool) {
	s = strings.ToUpper(CleanCell(s))
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, true
		}
	}
	return TimeOfDay{}, false
}
