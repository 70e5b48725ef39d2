package coltype

import (
	"fmt"
	"strings"
	"sync"
)

type countryEntry struct {
	alpha2 string
	alpha3 string
	name   string // normalized
}

var (
	countryOnce    sync.Once
	countries      []countryEntry
	countryByAlpha map[string]string // alpha-2 and alpha-3 -> alpha-2
	countryByName  map[string]string // normalized name -> alpha-2
)

func loadCountries() {
	countryOnce.Do(func() {
		lines := strings.Split(isoCountries, "\n")
		countries = make([]countryEntry, 0, len(lines))
		countryByAlpha = make(map[string]string, 2*len(lines))
		countryByName = make(map[string]string, len(lines))
		for _, line := range lines {
			parts := strings.SplitN(line, "|", 3)
			if len(parts) != 3 {
				continue
			}
			e := countryEntry{alpha2: parts[0], alpha3: parts[1], name: normalizeCountry(parts[2])}
			countries = append(countries, e)
			countryByAlpha[e.alpha2] = e.alpha2
			countryByAlpha[e.alpha3] = e.alpha2
			countryByName[e.name] = e.alpha2
		}
	})
}

// emptyCountryTokens are placeholder spellings that mean "no country".
var emptyCountryTokens = map[string]bool{
	"": true, "-": true, "--": true, "N/A": true, "NULL": true,
	"NONE": true, "NIL": true, "UNKNOWN": true, "?": true,
}

func normalizeCountry(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(".", "", "'", "", "’", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeCountry converts a country code or name to its ISO 3166-1
// alpha-2 code.
func NormalizeCountry(raw string) (string, error) {
	loadCountries()

	upper := strings.ToUpper(strings.TrimSpace(raw))
	if emptyCountryTokens[upper] {
		return "", fmt.Errorf("%q is not a country", raw)
	}

	s := normalizeCountry(raw)
	if code, ok := countryAliases[s]; ok {
		return code, nil
	}
	if len(s) == 2 || len(s) == 3 {
		if code, ok := countryByAlpha[s]; ok {
			return code, nil
		}
	}
	if code, ok := countryByName[s]; ok {
		return code, nil
	}
	if len(s) >= 3 {
		if code, ok := uniqueCountryMatch(func(name string) bool { return strings.HasPrefix(name, s) }); ok {
			return code, nil
		}
		if code, ok := uniqueCountryMatch(func(name string) bool { return strings.Contains(name, s) }); ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("%q is not a recognized country; use an ISO 3166-1 alpha-2 code (US), alpha-3 code (USA) or an English country name", raw)
}

func uniqueCountryMatch(match func(name string) bool) (string, bool) {
	found := ""
	for _, e := range countries {
		if !match(e.name) {
			continue
		}
		if found != "" {
			return "", false
		}
		found = e.alpha2
	}
	return found, found != ""
}

type countryType struct{}

func (countryType) ID() string { return Country }

func (countryType) Coerce(raw any) (any, error) {
	code, err := NormalizeCountry(text(raw))
	if err != nil {
		return nil, err
	}
	return code, nil
}

func (countryType) SuggestFix(raw any) string {
	loadCountries()
	s := normalizeCountry(text(raw))
	if len(s) >= 2 {
		for _, e := range countries {
			if strings.HasPrefix(e.name, s[:2]) {
				return fmt.Sprintf("Did you mean %s (%s)? Use a 2-letter ISO code", e.alpha2, e.name)
			}
		}
	}
	return "Use a 2-letter ISO country code such as US, GB or DE"
}
