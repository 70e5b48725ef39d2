package coltype

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Built-in type ids.
const (
	Text       = "text"
	Textarea   = "textarea"
	Number     = "number"
	Integer    = "integer"
	Float      = "float"
	Currency   = "currency"
	Percentage = "percentage"
	Boolean    = "boolean"
	DateType   = "date"
	TimeType   = "time"
	DateTime   = "datetime"
	Email      = "email"
	URL        = "url"
	Color      = "color"
	Rating     = "rating"
	Select     = "select"
	Country    = "country"
)

// CurrencyPlaces is the maximum number of decimal places a currency value may carry.
const CurrencyPlaces = 2

func builtins() []TypeContract {
	return []TypeContract{
		textType{id: Text},
		textType{id: Textarea},
		textType{id: Select},
		floatType{id: Number},
		floatType{id: Float},
		integerType{},
		currencyType{},
		percentageType{},
		booleanType{},
		dateType{},
		timeType{},
		dateTimeType{},
		emailType{},
		urlType{},
		colorType{},
		ratingType{},
		countryType{},
	}
}

// ============================================================================
// Text
// ============================================================================

type textType struct{ id string }

func (t textType) ID() string { return t.id }

func (t textType) Coerce(raw any) (any, error) { return text(raw), nil }

func (t textType) SuggestFix(any) string { return "" }

// ============================================================================
// Numbers
// ============================================================================

type floatType struct{ id string }

func (t floatType) ID() string { return t.id }

func (t floatType) Coerce(raw any) (any, error) { return toFloat(raw) }

func (t floatType) SuggestFix(raw any) string {
	return fmt.Sprintf("Enter a plain number such as 42 or 3.14 instead of %q", text(raw))
}

type integerType struct{}

func (integerType) ID() string { return Integer }

func (integerType) Coerce(raw any) (any, error) { return ToInt(raw) }

func (integerType) SuggestFix(raw any) string {
	if d, err := ToDecimal(raw); err == nil {
		return fmt.Sprintf("Use a whole number, e.g. %s", d.Round(0).String())
	}
	return "Use a whole number without decimals or letters"
}

type currencyType struct{}

func (currencyType) ID() string { return Currency }

func (currencyType) Coerce(raw any) (any, error) {
	d, err := ToDecimal(raw)
	if err != nil {
		return nil, err
	}
	if !d.Equal(d.Round(CurrencyPlaces)) {
		return nil, fmt.Errorf("%s has more than %d decimal places", d.String(), CurrencyPlaces)
	}
	return d.Round(CurrencyPlaces), nil
}

func (currencyType) SuggestFix(raw any) string {
	if d, err := ToDecimal(raw); err == nil {
		return fmt.Sprintf("Round to cents, e.g. %s", d.StringFixed(CurrencyPlaces))
	}
	return "Enter an amount such as 19.99 (currency symbols and commas are allowed)"
}

type percentageType struct{}

func (percentageType) ID() string { return Percentage }

func (percentageType) Coerce(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		raw = strings.TrimSuffix(strings.TrimSpace(s), "%")
	}
	f, err := toFloat(raw)
	if err != nil {
		return nil, err
	}
	if f < 0 || f > 100 {
		return nil, fmt.Errorf("%v is outside 0-100", f)
	}
	return f, nil
}

func (percentageType) SuggestFix(any) string {
	return "Enter a percentage between 0 and 100, e.g. 12.5 or 12.5%"
}

type ratingType struct{}

func (ratingType) ID() string { return Rating }

// Ratings are accepted on a 1-5 star scale or a 0-1 fractional scale.
func (ratingType) Coerce(raw any) (any, error) {
	f, err := toFloat(raw)
	if err != nil {
		return nil, err
	}
	fractional := f >= 0 && f <= 1
	stars := f >= 1 && f <= 5
	if !fractional && !stars {
		return nil, fmt.Errorf("rating %v is outside 1-5 and 0-1", f)
	}
	return f, nil
}

func (ratingType) SuggestFix(any) string {
	return "Use a rating from 1 to 5, or a fraction from 0 to 1"
}

// ============================================================================
// Boolean
// ============================================================================

type booleanType struct{}

func (booleanType) ID() string { return Boolean }

func (booleanType) Coerce(raw any) (any, error) { return ToBool(raw) }

func (booleanType) SuggestFix(any) string {
	return "Use true/false, yes/no, on/off or 1/0"
}

// ============================================================================
// Dates and times
// ============================================================================

type dateType struct{}

func (dateType) ID() string { return DateType }

func (dateType) Coerce(raw any) (any, error) {
	switch v := raw.(type) {
	case Date:
		return v, nil
	case time.Time:
		return NewDate(v), nil
	}
	s := text(raw)
	if t, ok := parseDate(s); ok {
		return NewDate(t), nil
	}
	if t, ok := parseDateTime(s); ok {
		return NewDate(t), nil
	}
	return nil, fmt.Errorf("%q is not a recognized date", s)
}

func (dateType) SuggestFix(any) string {
	return "Use YYYY-MM-DD, e.g. 2024-03-31"
}

type timeType struct{}

func (timeType) ID() string { return TimeType }

func (timeType) Coerce(raw any) (any, error) {
	if v, ok := raw.(TimeOfDay); ok {
		return v, nil
	}
	s := text(raw)
	if t, ok := parseTimeOfDay(s); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%q is not a recognized time", s)
}

func (timeType) SuggestFix(any) string {
	return "Use 24-hour HH:MM or HH:MM:SS, e.g. 14:30"
}

type dateTimeType struct{}

func (dateTimeType) ID() string { return DateTime }

func (dateTimeType) Coerce(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case Date:
		return v.Time, nil
	}
	s := text(raw)
	if t, ok := parseDateTime(s); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%q is not a recognized date and time", s)
}

func (dateTimeType) SuggestFix(any) string {
	return "Use ISO 8601, e.g. 2024-03-31T14:30:00Z"
}

// ============================================================================
// Formatted strings
// ============================================================================

var emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

type emailType struct{}

func (emailType) ID() string { return Email }

func (emailType) Coerce(raw any) (any, error) {
	s := text(raw)
	if !emailRegex.MatchString(s) {
		return nil, fmt.Errorf("%q is not a valid email address", s)
	}
	return s, nil
}

func (emailType) SuggestFix(raw any) string {
	s := text(raw)
	if !strings.Contains(s, "@") {
		return "Email addresses need an @, e.g. name@example.com"
	}
	return "Check the domain part, e.g. name@example.com"
}

type urlType struct{}

func (urlType) ID() string { return URL }

func (urlType) Coerce(raw any) (any, error) {
	s := text(raw)
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not a valid URL", s)
	}
	return s, nil
}

func (urlType) SuggestFix(raw any) string {
	s := text(raw)
	if s != "" && !strings.Contains(s, "://") {
		return "Add a scheme, e.g. https://" + s
	}
	return "Use a full URL, e.g. https://example.com"
}

var colorRegex = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

type colorType struct{}

func (colorType) ID() string { return Color }

func (colorType) Coerce(raw any) (any, error) {
	s := text(raw)
	if !colorRegex.MatchString(s) {
		return nil, fmt.Errorf("%q is not a hex color", s)
	}
	return "#" + strings.ToLower(strings.TrimPrefix(s, "#")), nil
}

func (colorType) SuggestFix(any) string {
	return "Use a hex color such as #1a2b3c or #abc"
}
