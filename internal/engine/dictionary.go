package engine

import (
	"fmt"
	"strings"
	"unicode"
)

// Format says how a raw value is stored
type Format int

const (
	// FormatText trims the value and stores it as a string
	FormatText Format = iota
	// FormatStructured passes the value through untouched
	FormatStructured
	// FormatMarkdown converts an HTML fragment to Markdown
	FormatMarkdown
)

// FieldSpec maps one source label to a canonical field
type FieldSpec struct {
	Label  string
	Field  string
	Format Format
}

// FieldDictionary is a read-only label to field mapping for one source kind.
// Fields() order is the attribute order of normalized records.
type FieldDictionary struct {
	name   string
	specs  []FieldSpec
	byNorm map[string]FieldSpec
}

// NewFieldDictionary builds a dictionary. Labels that normalize to the same
// key, or two labels mapped to one field, are rejected.
func NewFieldDictionary(name string, specs ...FieldSpec) (*FieldDictionary, error) {
	d := &FieldDictionary{
		name:   name,
		byNorm: make(map[string]FieldSpec, len(specs)),
	}
	fields := make(map[string]string, len(specs))
	for _, s := range specs {
		if s.Label == "" || s.Field == "" {
			return nil, fmt.Errorf("dictionary %s: empty label or field in %+v", name, s)
		}
		norm := NormalizeLabel(s.Label)
		if _, dup := d.byNorm[norm]; dup {
			return nil, fmt.Errorf("dictionary %s: duplicate label %q", name, s.Label)
		}
		if other, dup := fields[s.Field]; dup {
			return nil, fmt.Errorf("dictionary %s: field %q mapped from %q and %q", name, s.Field, other, s.Label)
		}
		fields[s.Field] = s.Label
		d.byNorm[norm] = s
		d.specs = append(d.specs, s)
	}
	return d, nil
}

// MustFieldDictionary is NewFieldDictionary for package-level tables
func MustFieldDictionary(name string, specs ...FieldSpec) *FieldDictionary {
	d, err := NewFieldDictionary(name, specs...)
	if err != nil {
		panic(err)
	}
	return d
}

// Name returns the dictionary name
func (d *FieldDictionary) Name() string {
	return d.name
}

// Lookup resolves a raw label
func (d *FieldDictionary) Lookup(label string) (FieldSpec, bool) {
	s, ok := d.byNorm[NormalizeLabel(label)]
	return s, ok
}

// Fields returns the specs in declaration order
func (d *FieldDictionary) Fields() []FieldSpec {
	out := make([]FieldSpec, len(d.specs))
	copy(out, d.specs)
	return out
}

// NormalizeLabel trims whitespace and trailing colons and collapses inner
// whitespace, so "Company  Name :" matches "Company Name". Case is kept.
func NormalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimRightFunc(label, func(r rune) bool {
		return r == ':' || unicode.IsSpace(r)
	})
	return strings.Join(strings.Fields(label), " ")
}
