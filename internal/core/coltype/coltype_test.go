package coltype

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// ----------------------------------------------------------------------------
// Registry Tests
// ----------------------------------------------------------------------------

func TestRegistry_Builtins(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{
		Text, Textarea, Number, Integer, Float, Currency, Percentage, Boolean,
		DateType, TimeType, DateTime, Email, URL, Color, Rating, Select, Country,
	} {
		c, ok := r.Resolve(id)
		if !ok {
			t.Errorf("Resolve(%q) not found", id)
			continue
		}
		if c.ID() != id {
			t.Errorf("Resolve(%q).ID() = %q", id, c.ID())
		}
	}
}

func TestRegistry_UnknownFallsBackToPermissive(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Resolve("acme:widget"); ok {
		t.Fatal("Resolve(acme:widget) found, want not found")
	}
	c := r.ResolveOrPermissive("acme:widget")
	if c.ID() != PermissiveID {
		t.Errorf("ResolveOrPermissive().ID() = %q, want %q", c.ID(), PermissiveID)
	}
	got, err := c.Coerce("  anything goes ")
	if err != nil || got != "anything goes" {
		t.Errorf("permissive Coerce() = %v, %v", got, err)
	}
}

func TestRegistry_RegisterNamespaced(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("acme", "widget", textType{id: "acme:widget"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, ok := r.Resolve("ACME:Widget"); !ok {
		t.Error("Resolve is not case-insensitive for namespaced ids")
	}
	err := r.Register("acme", "widget", textType{id: "acme:widget"})
	if !errors.Is(err, ErrDuplicateType) {
		t.Errorf("second Register() error = %v, want ErrDuplicateType", err)
	}
	if err := r.Register("", "x", textType{}); err == nil {
		t.Error("Register with empty module succeeded")
	}
}

// ----------------------------------------------------------------------------
// Built-in Coerce Tests
// ----------------------------------------------------------------------------

func TestBuiltinCoerce(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		typ     string
		input   any
		want    string // fmt of coerced value; ignored when wantErr
		wantErr bool
	}{
		// Numbers
		{Number, "1,234.5", "1234.5", false},
		{Number, 42.0, "42", false},
		{Number, "abc", "", true},
		{Float, "(12.50)", "-12.5", false},
		{Integer, "17", "17", false},
		{Integer, 3.0, "3", false},
		{Integer, "3.5", "", true},
		{Integer, "", "", true},

		// Currency
		{Currency, "$1,299.99", "1299.99", false},
		{Currency, "12.5", "12.5", false},
		{Currency, "12.500", "12.5", false},
		{Currency, "12.345", "", true},
		{Currency, "€5", "5", false},

		// Percentage
		{Percentage, "12.5%", "12.5", false},
		{Percentage, "100", "100", false},
		{Percentage, "101", "", true},
		{Percentage, -1.0, "", true},

		// Boolean
		{Boolean, "YES", "true", false},
		{Boolean, "off", "false", false},
		{Boolean, "On", "true", false},
		{Boolean, "0", "false", false},
		{Boolean, true, "true", false},
		{Boolean, "maybe", "", true},

		// Dates and times
		{DateType, "2024-03-31", "2024-03-31", false},
		{DateType, "3/31/2024", "2024-03-31", false},
		{DateType, "2024-03-31T10:00:00Z", "2024-03-31", false},
		{DateType, "31st of March", "", true},
		{TimeType, "14:30", "14:30:00", false},
		{TimeType, "2:30 pm", "14:30:00", false},
		{TimeType, "25:00", "", true},
		{DateTime, "2024-03-31T14:30:00Z", "2024-03-31 14:30:00 +0000 UTC", false},
		{DateTime, "2024-03-31 14:30", "2024-03-31 14:30:00 +0000 UTC", false},
		{DateTime, "yesterday", "", true},

		// Formatted strings
		{Email, "jane@example.com", "jane@example.com", false},
		{Email, "jane.example.com", "", true},
		{URL, "https://example.com/x", "https://example.com/x", false},
		{URL, "example.com", "", true},
		{Color, "#ABC", "#abc", false},
		{Color, "1a2b3c", "#1a2b3c", false},
		{Color, "#12345", "", true},
		{Rating, "4", "4", false},
		{Rating, 0.5, "0.5", false},
		{Rating, "6", "", true},
		{Rating, "-0.5", "", true},

		// Passthrough
		{Select, "  Large ", "Large", false},
		{Text, 12.0, "12", false},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+strings.TrimSpace(toString(tt.input)), func(t *testing.T) {
			c, _ := r.Resolve(tt.typ)
			got, err := c.Coerce(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Coerce(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if c.SuggestFix(tt.input) == "" {
					t.Errorf("SuggestFix(%v) is empty", tt.input)
				}
				return
			}
			if s := toString(got); s != tt.want {
				t.Errorf("Coerce(%v) = %q, want %q", tt.input, s, tt.want)
			}
		})
	}
}

func TestBuiltinCoerce_Idempotent(t *testing.T) {
	r := NewRegistry()
	inputs := map[string]any{
		Number:     "1,234.5",
		Integer:    "17",
		Currency:   "$19.90",
		Percentage: "50%",
		Boolean:    "yes",
		DateType:   "03/31/2024",
		TimeType:   "2:30 PM",
		DateTime:   "2024-03-31 14:30:00",
		Color:      "ABC",
		Country:    "United Kingdom",
		Rating:     "5",
	}
	for typ, in := range inputs {
		c, _ := r.Resolve(typ)
		first, err := c.Coerce(in)
		if err != nil {
			t.Fatalf("%s: Coerce(%v) error = %v", typ, in, err)
		}
		second, err := c.Coerce(first)
		if err != nil {
			t.Fatalf("%s: Coerce(Coerce(%v)) error = %v", typ, in, err)
		}
		if toString(first) != toString(second) {
			t.Errorf("%s: not idempotent: %v then %v", typ, first, second)
		}
	}
}

func TestCurrency_ReturnsDecimal(t *testing.T) {
	got, err := currencyType{}.Coerce("19.99")
	if err != nil {
		t.Fatalf("Coerce() error = %v", err)
	}
	d, ok := got.(decimal.Decimal)
	if !ok {
		t.Fatalf("Coerce() type = %T, want decimal.Decimal", got)
	}
	if !d.Mul(decimal.NewFromInt(3)).Equal(decimal.RequireFromString("59.97")) {
		t.Errorf("19.99 * 3 = %s, want 59.97", d.Mul(decimal.NewFromInt(3)))
	}
}

// ----------------------------------------------------------------------------
// Country Tests
// ----------------------------------------------------------------------------

func TestNormalizeCountry(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"UK", "GB", false},
		{"u.k.", "GB", false},
		{"USA", "US", false},
		{"U.S.A.", "US", false},
		{"us", "US", false},
		{"DEU", "DE", false},
		{"Germany", "DE", false},
		{"united states", "US", false},
		{"Cote d'Ivoire", "CI", false},
		{"Bosnia", "BA", false},
		{"Niger", "NE", false},
		{"Nigeria", "NG", false},
		{"NA", "NA", false},
		{"ZZ", "", true},
		{"ZZZ", "", true},
		{"N/A", "", true},
		{"-", "", true},
		{"null", "", true},
		{"", "", true},
		{"Guin", "", true}, // ambiguous prefix
	}
	for _, tt := range tests {
		got, err := NormalizeCountry(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeCountry(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeCountry(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeCountry_Idempotent(t *testing.T) {
	for _, in := range []string{"UK", "USA", "France", "jpn", "Viet Nam", "Korea"} {
		first, err := NormalizeCountry(in)
		if err != nil {
			t.Fatalf("NormalizeCountry(%q) error = %v", in, err)
		}
		second, err := NormalizeCountry(first)
		if err != nil || second != first {
			t.Errorf("NormalizeCountry(%q) = %q, then %q (%v)", in, first, second, err)
		}
	}
}

func TestNormalizeCountry_ErrorNamesFormats(t *testing.T) {
	_, err := NormalizeCountry("Atlantis")
	if err == nil {
		t.Fatal("NormalizeCountry(Atlantis) succeeded")
	}
	if !strings.Contains(err.Error(), "ISO 3166-1") {
		t.Errorf("error %q does not name the accepted formats", err)
	}
}

func TestCountryAliases_AreNotISOCodes(t *testing.T) {
	loadCountries()
	for alias := range countryAliases {
		if _, ok := countryByAlpha[alias]; ok {
			t.Errorf("alias %q shadows an ISO code", alias)
		}
	}
}

// ----------------------------------------------------------------------------
// Declarations Tests
// ----------------------------------------------------------------------------

const manifest = `
module: inventory
types:
  - id: sku
    pattern: "^[A-Z]{3}-[0-9]{4}$"
    hint: "Use AAA-0000"
  - id: size
    options: [S, M, L]
  - id: weight
    base: number
    min: 0
    max: 1000
`

func TestLoadDeclarations(t *testing.T) {
	r := NewRegistry()
	n, err := r.LoadDeclarations(strings.NewReader(manifest))
	if err != nil {
		t.Fatalf("LoadDeclarations() error = %v", err)
	}
	if n != 3 {
		t.Errorf("LoadDeclarations() = %d, want 3", n)
	}

	sku, ok := r.Resolve("inventory:sku")
	if !ok {
		t.Fatal("inventory:sku not registered")
	}
	if _, err := sku.Coerce("ABC-1234"); err != nil {
		t.Errorf("sku.Coerce(ABC-1234) error = %v", err)
	}
	if _, err := sku.Coerce("abc"); err == nil {
		t.Error("sku.Coerce(abc) succeeded")
	}
	if got := sku.SuggestFix("abc"); got != "Use AAA-0000" {
		t.Errorf("sku.SuggestFix() = %q", got)
	}

	size, _ := r.Resolve("inventory:size")
	if got, err := size.Coerce("m"); err != nil || got != "M" {
		t.Errorf("size.Coerce(m) = %v, %v; want M", got, err)
	}

	weight, _ := r.Resolve("inventory:weight")
	if _, err := weight.Coerce("1500"); err == nil {
		t.Error("weight.Coerce(1500) succeeded")
	}
	if got, err := weight.Coerce("12.5"); err != nil || got != 12.5 {
		t.Errorf("weight.Coerce(12.5) = %v, %v", got, err)
	}
}

func TestLoadDeclarations_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing module", "types:\n  - id: x\n"},
		{"unknown base", "module: m\ntypes:\n  - id: x\n    base: nope\n"},
		{"bad pattern", "module: m\ntypes:\n  - id: x\n    pattern: \"[\"\n"},
		{"unknown field", "module: m\nbogus: 1\n"},
		{"min above max", "module: m\ntypes:\n  - id: x\n    base: number\n    min: 5\n    max: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry().LoadDeclarations(strings.NewReader(tt.doc)); err == nil {
				t.Error("LoadDeclarations() succeeded, want error")
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func TestStorable(t *testing.T) {
	d, _ := currencyType{}.Coerce("10.50")
	if got := Storable(d); toString(got) != "10.5" {
		t.Errorf("Storable(currency) = %v", got)
	}
	date, _ := dateType{}.Coerce("2024-01-02")
	if got := Storable(date); got != "2024-01-02" {
		t.Errorf("Storable(date) = %v", got)
	}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := Storable(ts); got != "2024-01-02T03:04:05Z" {
		t.Errorf("Storable(datetime) = %v", got)
	}
}

func TestIsEmpty(t *testing.T) {
	for _, v := range []any{nil, "", "   "} {
		if !IsEmpty(v) {
			t.Errorf("IsEmpty(%#v) = false", v)
		}
	}
	for _, v := range []any{"0", 0.0, false, "x"} {
		if IsEmpty(v) {
			t.Errorf("IsEmpty(%#v) = true", v)
		}
	}
}

func toString(v any) string {
	return text(v)
}
