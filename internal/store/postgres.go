package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/pkg/models"
)

// pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool
type PostgresStore struct {
	pool pool
}

// NewPostgres creates a PostgresStore with a connection pool
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	if connString == "" {
		return nil, eris.New("postgres: a connection string was not specified")
	}
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, classifyPostgres(eris.Wrap(err, "postgres: ping"))
	}
	return &PostgresStore{pool: p}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	identifier TEXT NOT NULL CHECK (identifier <> ''),
	attributes JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (collection, identifier)
);
`

// Migrate creates the documents table
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return classifyPostgres(eris.Wrap(err, "postgres: migrate"))
	}
	return nil
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const upsertDocument = `INSERT INTO documents (collection, identifier, attributes, fetched_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (collection, identifier) DO UPDATE SET
	attributes = EXCLUDED.attributes,
	fetched_at = EXCLUDED.fetched_at
RETURNING (xmax = 0) AS inserted`

// Upsert inserts or replaces the document with a single statement
func (s *PostgresStore) Upsert(ctx context.Context, rec *models.CanonicalRecord) (Ack, error) {
	if err := validate(rec); err != nil {
		return Ack{}, err
	}
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return Ack{}, fault.Persistence(fault.KindConstraintViolation, "unserializable attributes", err)
	}
	ack := Ack{Collection: rec.Collection(), Identifier: rec.Identifier}

	err = s.pool.QueryRow(ctx, upsertDocument,
		ack.Collection, ack.Identifier, string(attrs), rec.FetchedAt.UTC(),
	).Scan(&ack.Inserted)
	if err != nil {
		return Ack{}, classifyPostgres(eris.Wrapf(err, "postgres: upsert %s/%s", ack.Collection, ack.Identifier))
	}
	return ack, nil
}

// Get reads one document
func (s *PostgresStore) Get(ctx context.Context, kind models.SourceKind, identifier string) (*models.StoredDocument, error) {
	var attrs []byte
	var fetched time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT attributes, fetched_at FROM documents WHERE collection = $1 AND identifier = $2`,
		kind.Collection(), identifier,
	).Scan(&attrs, &fetched)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyPostgres(eris.Wrapf(err, "postgres: get %s/%s", kind.Collection(), identifier))
	}

	doc, err := decodeDocument(kind, identifier, attrs, "")
	if err != nil {
		return nil, err
	}
	doc.FetchedAt = fetched
	return doc, nil
}

func classifyPostgres(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fault.FromContext(fault.DomainPersistence, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"):
			return fault.Persistence(fault.KindConstraintViolation, pgErr.Message, err).
				WithDetail("constraint", pgErr.ConstraintName)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			return fault.Persistence(fault.KindConnectionLost, pgErr.Message, err)
		}
		return fault.Persistence(fault.KindUnknown, pgErr.Message, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return fault.Persistence(fault.KindConnectionLost, "connection failed", err)
	}
	return fault.Persistence(fault.KindUnknown, "postgres error", err)
}
