package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"

	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/pkg/models"
)

// SQLiteStore implements Store using modernc.org/sqlite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens the database at dsn and configures WAL mode
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: a path was not specified")
	}
	if dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, eris.Wrap(err, "sqlite: create directory")
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// one writer at a time; WAL lets readers proceed
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	identifier TEXT NOT NULL CHECK (identifier <> ''),
	attributes TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	PRIMARY KEY (collection, identifier)
);
`

// Migrate creates the documents table
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	if err != nil {
		return classifySQLite(eris.Wrap(err, "sqlite: migrate"))
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert inserts or replaces the document in one transaction
func (s *SQLiteStore) Upsert(ctx context.Context, rec *models.CanonicalRecord) (Ack, error) {
	if err := validate(rec); err != nil {
		return Ack{}, err
	}
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return Ack{}, fault.Persistence(fault.KindConstraintViolation, "unserializable attributes", err)
	}
	ack := Ack{Collection: rec.Collection(), Identifier: rec.Identifier}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Ack{}, classifySQLite(eris.Wrap(err, "sqlite: begin"))
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM documents WHERE collection = ? AND identifier = ?`,
		ack.Collection, ack.Identifier,
	).Scan(&exists)
	if err != nil {
		return Ack{}, classifySQLite(eris.Wrapf(err, "sqlite: lookup %s/%s", ack.Collection, ack.Identifier))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, identifier, attributes, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, identifier) DO UPDATE SET
			attributes = excluded.attributes,
			fetched_at = excluded.fetched_at`,
		ack.Collection, ack.Identifier, string(attrs), rec.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Ack{}, classifySQLite(eris.Wrapf(err, "sqlite: upsert %s/%s", ack.Collection, ack.Identifier))
	}
	if err := tx.Commit(); err != nil {
		return Ack{}, classifySQLite(eris.Wrap(err, "sqlite: commit"))
	}

	ack.Inserted = exists == 0
	return ack, nil
}

// Get reads one document
func (s *SQLiteStore) Get(ctx context.Context, kind models.SourceKind, identifier string) (*models.StoredDocument, error) {
	var attrs, fetched string
	err := s.db.QueryRowContext(ctx,
		`SELECT attributes, fetched_at FROM documents WHERE collection = ? AND identifier = ?`,
		kind.Collection(), identifier,
	).Scan(&attrs, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifySQLite(eris.Wrapf(err, "sqlite: get %s/%s", kind.Collection(), identifier))
	}
	return decodeDocument(kind, identifier, []byte(attrs), fetched)
}

func decodeDocument(kind models.SourceKind, identifier string, attrs []byte, fetched string) (*models.StoredDocument, error) {
	doc := &models.StoredDocument{
		SourceKind: kind,
		Identifier: identifier,
		Attributes: models.NewAttributes(),
	}
	if err := json.Unmarshal(attrs, doc.Attributes); err != nil {
		return nil, eris.Wrapf(err, "decode %s/%s", kind.Collection(), identifier)
	}
	if fetched != "" {
		t, err := time.Parse(time.RFC3339Nano, fetched)
		if err != nil {
			return nil, eris.Wrapf(err, "decode fetched_at of %s/%s", kind.Collection(), identifier)
		}
		doc.FetchedAt = t
	}
	return doc, nil
}

// sqlite primary result codes
const (
	sqliteBusy       = 5
	sqliteLocked     = 6
	sqliteIOErr      = 10
	sqliteCantOpen   = 14
	sqliteConstraint = 19
)

func classifySQLite(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fault.FromContext(fault.DomainPersistence, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqliteConstraint:
			return fault.Persistence(fault.KindConstraintViolation, "constraint violated", err)
		case sqliteBusy, sqliteLocked, sqliteIOErr, sqliteCantOpen:
			return fault.Persistence(fault.KindConnectionLost, "database unavailable", err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return fault.Persistence(fault.KindConnectionLost, "connection closed", err)
	}
	return fault.Persistence(fault.KindUnknown, "sqlite error", err)
}
