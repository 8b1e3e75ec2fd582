package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/harvest/internal/fault"
	"github.com/law-makers/harvest/pkg/models"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS documents`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Upsert_Inserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := company("U72200KA2009PTC049889", "Acme")

	mock.ExpectQuery(`(?s)INSERT INTO documents .* ON CONFLICT \(collection, identifier\) DO UPDATE`).
		WithArgs("companies", "U72200KA2009PTC049889", `{"cin":"U72200KA2009PTC049889","company_name":"Acme"}`, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))

	ack, err := s.Upsert(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, Ack{Collection: "companies", Identifier: "U72200KA2009PTC049889", Inserted: true}, ack)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Upsert_Replaced(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs("companies", "C1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))

	ack, err := s.Upsert(context.Background(), company("C1", "Acme"))
	require.NoError(t, err)
	assert.False(t, ack.Inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Upsert_ConstraintViolation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO documents`).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: "violates check constraint", ConstraintName: "documents_identifier_check"})

	_, err := s.Upsert(context.Background(), company("C1", "Acme"))
	require.Error(t, err)
	assert.Equal(t, fault.KindConstraintViolation, fault.KindOf(err))
	assert.False(t, fault.IsTransient(err))
}

func TestPostgresStore_Upsert_ConnectionLost(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO documents`).
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	_, err := s.Upsert(context.Background(), company("C1", "Acme"))
	assert.Equal(t, fault.KindConnectionLost, fault.KindOf(err))
	assert.True(t, fault.IsTransient(err))
}

func TestPostgresStore_Upsert_EmptyIdentifierNeverQueries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.Upsert(context.Background(), company("", "Nobody"))
	assert.Equal(t, fault.KindConstraintViolation, fault.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	fetched := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT attributes, fetched_at FROM documents WHERE collection = \$1 AND identifier = \$2`).
		WithArgs("developers", "octocat").
		WillReturnRows(pgxmock.NewRows([]string{"attributes", "fetched_at"}).
			AddRow([]byte(`{"login":"octocat","name":"The Octocat"}`), fetched))

	doc, err := s.Get(context.Background(), models.KindPagedAPI, "octocat")
	require.NoError(t, err)
	assert.Equal(t, "The Octocat", doc.Attributes.String("name"))
	assert.Equal(t, fetched, doc.FetchedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT attributes, fetched_at FROM documents`).
		WithArgs("companies", "NOPE").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), models.KindStaticForm, "NOPE")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
