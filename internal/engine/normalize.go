package engine

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/pkg/models"
	"github.com/rs/zerolog/log"
)

// RawField is one label/value pair as read from a source
type RawField struct {
	Label string
	Value any
}

// Normalize maps raw fields through dict. Unknown labels are dropped, a
// repeated label keeps its last value, and the result follows the
// dictionary's field order. It never fails.
func Normalize(dict *FieldDictionary, raw []RawField) *models.Attributes {
	values := make(map[string]any, len(raw))
	for _, r := range raw {
		spec, ok := dict.Lookup(r.Label)
		if !ok {
			continue
		}
		v, ok := convert(spec, r.Value)
		if !ok {
			continue
		}
		values[spec.Field] = v
	}

	attrs := models.NewAttributes()
	for _, spec := range dict.Fields() {
		if v, ok := values[spec.Field]; ok {
			attrs.Set(spec.Field, v)
		}
	}
	return attrs
}

// convert applies a spec's format. Nil values are treated as absent.
func convert(spec FieldSpec, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch spec.Format {
	case FormatStructured:
		return v, true
	case FormatMarkdown:
		html := strings.TrimSpace(toText(v))
		if html == "" {
			return "", true
		}
		out, err := md.NewConverter("", true, nil).ConvertString(html)
		if err != nil {
			log.Warn().Err(err).Str("field", spec.Field).Msg("Markdown conversion failed, keeping raw HTML")
			return html, true
		}
		return strings.TrimSpace(out), true
	default:
		return strings.TrimSpace(toText(v)), true
	}
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// ResolveIdentifier returns the natural key of a record of the given kind.
// Company CINs are upper-cased; the resolved value is written back into attrs.
func ResolveIdentifier(kind models.SourceKind, attrs *models.Attributes) (string, error) {
	field := kind.IdentifierField()
	if field == "" {
		return "", fault.Extraction(fault.KindMissingIdentifier, fmt.Sprintf("unknown source kind %q", kind), nil)
	}

	v, ok := attrs.Get(field)
	if !ok {
		return "", fault.Extraction(fault.KindMissingIdentifier, fmt.Sprintf("record has no %q field", field), nil)
	}
	id := kind.NormalizeKey(toText(v))
	if id == "" {
		return "", fault.Extraction(fault.KindMissingIdentifier, fmt.Sprintf("record has an empty %q field", field), nil)
	}

	attrs.Set(field, id)
	return id, nil
}

// Build normalizes raw fields and resolves the identifier into a record.
// FetchedAt is left for the pipeline to stamp.
func Build(kind models.SourceKind, dict *FieldDictionary, raw []RawField) (*models.CanonicalRecord, error) {
	attrs := Normalize(dict, raw)
	id, err := ResolveIdentifier(kind, attrs)
	if err != nil {
		return nil, err
	}
	return &models.CanonicalRecord{
		SourceKind:       kind,
		Identifier:       id,
		Attributes:       attrs,
		RawFragmentCount: len(raw),
	}, nil
}
