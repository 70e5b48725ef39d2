package coltype

import (
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Declarations is a YAML manifest of extension column types:
//
//	module: inventory
//	types:
//	  - id: sku
//	    base: text
//	    pattern: "^[A-Z]{3}-[0-9]{4}$"
//	    hint: "Use three letters, a dash and four digits, e.g. ABC-1234"
//	  - id: size
//	    base: text
//	    options: [S, M, L, XL]
//	  - id: weight_kg
//	    base: number
//	    min: 0
//	    max: 1000
type Declarations struct {
	Module string            `yaml:"module"`
	Types  []TypeDeclaration `yaml:"types"`
}

// TypeDeclaration describes one declared type layered over a base contract.
type TypeDeclaration struct {
	ID      string   `yaml:"id"`
	Base    string   `yaml:"base"`
	Pattern string   `yaml:"pattern"`
	Options []string `yaml:"options"`
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
	Hint    string   `yaml:"hint"`
}

// LoadDeclarations parses a manifest from r and registers every declared
// type. It returns the number of types registered.
func (r *Registry) LoadDeclarations(src io.Reader) (int, error) {
	var decl Declarations
	dec := yaml.NewDecoder(src)
	dec.KnownFields(true)
	if err := dec.Decode(&decl); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("parse column type declarations: %w", err)
	}
	if strings.TrimSpace(decl.Module) == "" {
		return 0, fmt.Errorf("column type declarations: module is required")
	}

	for i, td := range decl.Types {
		c, err := r.buildDeclared(decl.Module, td)
		if err != nil {
			return i, fmt.Errorf("column type %s:%s: %w", decl.Module, td.ID, err)
		}
		if err := r.Register(decl.Module, td.ID, c); err != nil {
			return i, err
		}
	}
	return len(decl.Types), nil
}

func (r *Registry) buildDeclared(module string, td TypeDeclaration) (TypeContract, error) {
	if td.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	baseID := td.Base
	if baseID == "" {
		baseID = Text
	}
	base, ok := r.Resolve(baseID)
	if !ok {
		return nil, fmt.Errorf("unknown base type %q", baseID)
	}

	c := &declaredType{
		id:      normalizeID(module + ":" + td.ID),
		base:    base,
		options: td.Options,
		min:     td.Min,
		max:     td.Max,
		hint:    td.Hint,
	}
	if td.Pattern != "" {
		re, err := regexp.Compile(td.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		c.pattern = re
	}
	if td.Min != nil && td.Max != nil && *td.Min > *td.Max {
		return nil, fmt.Errorf("min %v is greater than max %v", *td.Min, *td.Max)
	}
	return c, nil
}

// declaredType narrows a base contract with a pattern, an option list or a
// numeric range.
type declaredType struct {
	id      string
	base    TypeContract
	pattern *regexp.Regexp
	options []string
	min     *float64
	max     *float64
	hint    string
}

func (d *declaredType) ID() string { return d.id }

func (d *declaredType) Coerce(raw any) (any, error) {
	v, err := d.base.Coerce(raw)
	if err != nil {
		return nil, err
	}

	if d.pattern != nil {
		if s := text(v); !d.pattern.MatchString(s) {
			return nil, fmt.Errorf("%q does not match the %s format", s, d.id)
		}
	}
	if len(d.options) > 0 {
		s := text(v)
		idx := slices.IndexFunc(d.options, func(o string) bool { return strings.EqualFold(o, s) })
		if idx < 0 {
			return nil, fmt.Errorf("%q is not one of %s", s, strings.Join(d.options, ", "))
		}
		v = d.options[idx]
	}
	if d.min != nil || d.max != nil {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if d.min != nil && f < *d.min {
			return nil, fmt.Errorf("%v is below the minimum %v", f, *d.min)
		}
		if d.max != nil && f > *d.max {
			return nil, fmt.Errorf("%v is above the maximum %v", f, *d.max)
		}
	}
	return v, nil
}

func (d *declaredType) SuggestFix(raw any) string {
	if d.hint != "" {
		return d.hint
	}
	if len(d.options) > 0 {
		return "Use one of: " + strings.Join(d.options, ", ")
	}
	return d.base.SuggestFix(raw)
}
