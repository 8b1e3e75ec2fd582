package store

import (
	"context"
	"errors"

	"github.com/law-makers/harvest/pkg/models"
)

// ErrorWriter records targets that failed
type ErrorWriter interface {
	WriteError(target models.ExtractionTarget, err error) error
}

// ErrorClearer drops the failure recorded for a target once it succeeds
type ErrorClearer interface {
	ClearError(target models.ExtractionTarget) error
}

// Tee writes every record to a primary store and then to extra sinks.
// Reads are served by the primary.
type Tee struct {
	primary Store
	extra   []Sink
}

// NewTee wraps primary; extra sinks receive the same records
func NewTee(primary Store, extra ...Sink) *Tee {
	return &Tee{primary: primary, extra: extra}
}

// Upsert returns the primary's ack. An extra sink failing fails the upsert.
func (t *Tee) Upsert(ctx context.Context, rec *models.CanonicalRecord) (Ack, error) {
	ack, err := t.primary.Upsert(ctx, rec)
	if err != nil {
		return Ack{}, err
	}
	for _, s := range t.extra {
		if _, err := s.Upsert(ctx, rec); err != nil {
			return Ack{}, err
		}
	}
	return ack, nil
}

// Get reads from the primary
func (t *Tee) Get(ctx context.Context, kind models.SourceKind, identifier string) (*models.StoredDocument, error) {
	return t.primary.Get(ctx, kind, identifier)
}

// WriteError forwards to every sink that records failures
func (t *Tee) WriteError(target models.ExtractionTarget, cause error) error {
	var errs []error
	for _, s := range append([]Sink{t.primary}, t.extra...) {
		if w, ok := s.(ErrorWriter); ok {
			errs = append(errs, w.WriteError(target, cause))
		}
	}
	return errors.Join(errs...)
}

// ClearError forwards to every sink that records failures
func (t *Tee) ClearError(target models.ExtractionTarget) error {
	var errs []error
	for _, s := range append([]Sink{t.primary}, t.extra...) {
		if c, ok := s.(ErrorClearer); ok {
			errs = append(errs, c.ClearError(target))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (t *Tee) Close() error {
	errs := []error{t.primary.Close()}
	for _, s := range t.extra {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
