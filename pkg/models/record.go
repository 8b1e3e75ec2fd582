package models

import (
	"fmt"
	"strings"
	"time"
)

// CanonicalRecord is the normalized output of one extraction
type CanonicalRecord struct {
	SourceKind SourceKind  `json:"source_kind"`
	Identifier string      `json:"identifier"`
	Attributes *Attributes `json:"attributes"`
	FetchedAt  time.Time   `json:"fetched_at"`

	// RawFragmentCount is the number of raw label/value pairs seen before
	// dictionary filtering.
	RawFragmentCount int `json:"-"`
}

// Collection is the sink collection for the record
func (r *CanonicalRecord) Collection() string {
	return r.SourceKind.Collection()
}

// Document flattens the record into the stored shape: the identifier field
// first, followed by the remaining attributes.
func (r *CanonicalRecord) Document() *Attributes {
	return buildDocument(r.SourceKind, r.Identifier, r.Attributes)
}

// StoredDocument is a record as read back from a sink
type StoredDocument struct {
	SourceKind SourceKind
	Identifier string
	Attributes *Attributes
	FetchedAt  time.Time
}

// Document returns the flat document served to lookup clients
func (d *StoredDocument) Document() *Attributes {
	return buildDocument(d.SourceKind, d.Identifier, d.Attributes)
}

func buildDocument(kind SourceKind, id string, attrs *Attributes) *Attributes {
	doc := NewAttributes()
	field := kind.IdentifierField()
	doc.Set(field, id)
	for _, k := range attrs.Keys() {
		if k == field {
			continue
		}
		v, _ := attrs.Get(k)
		doc.Set(k, v)
	}
	return doc
}

// ExtractionTarget is one unit of work for the pipeline
type ExtractionTarget struct {
	SourceKind SourceKind `json:"source_kind"`
	Key        string     `json:"key"`
}

func (t ExtractionTarget) String() string {
	return fmt.Sprintf("%s:%s", t.SourceKind, t.Key)
}

// ParseTargets splits a comma or newline separated key list into targets.
// Blank entries are dropped; duplicates are kept in order.
func ParseTargets(kind SourceKind, list string) []ExtractionTarget {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	targets := make([]ExtractionTarget, 0, len(fields))
	for _, f := range fields {
		key := strings.TrimSpace(f)
		if key == "" || strings.HasPrefix(key, "#") {
			continue
		}
		targets = append(targets, ExtractionTarget{SourceKind: kind, Key: key})
	}
	return targets
}
