// Package store persists canonical records keyed by (collection, identifier).
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/pkg/models"
)

// Driver names accepted by Open
const (
	DriverMemory   = "memory"
	DriverJSON     = "json"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned by Get when no document matches
var ErrNotFound = errors.New("document not found")

// Ack confirms one upsert
type Ack struct {
	Collection string
	Identifier string
	// Inserted is false when an existing document was replaced
	Inserted bool
}

// Sink receives records from the pipeline. Upsert replaces the whole document
// stored under (collection, identifier) and must be atomic per record.
type Sink interface {
	Upsert(ctx context.Context, rec *models.CanonicalRecord) (Ack, error)
	Close() error
}

// Reader serves stored documents to the lookup API
type Reader interface {
	Get(ctx context.Context, kind models.SourceKind, identifier string) (*models.StoredDocument, error)
}

// Store is a sink that can be read back
type Store interface {
	Sink
	Reader
}

// Options selects and configures a backend
type Options struct {
	Driver string
	// DSN is a file path for sqlite, a connection string for postgres and a
	// directory for json
	DSN string
}

// Open creates the configured backend and prepares its schema
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverJSON:
		return NewJSONFile(opts.DSN)
	case DriverSQLite:
		s, err := NewSQLite(opts.DSN)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := NewPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
}

// validate rejects records that must never reach a backend
func validate(rec *models.CanonicalRecord) error {
	if rec == nil {
		return fault.Persistence(fault.KindConstraintViolation, "nil record", nil)
	}
	if strings.TrimSpace(rec.Identifier) == "" {
		return fault.Persistence(fault.KindConstraintViolation, "record has an empty identifier", nil)
	}
	if rec.Collection() == "" {
		return fault.Persistence(fault.KindConstraintViolation,
			fmt.Sprintf("record has unknown source kind %q", rec.SourceKind), nil)
	}
	return nil
}
