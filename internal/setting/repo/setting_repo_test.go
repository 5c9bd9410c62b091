package repo

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *Repo) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewRepo(sqlx.NewDb(db, "postgres"))
}

func TestGetBySchema(t *testing.T) {
	mock, repo := setupMockDB(t)
	def := `{"form_fields":[{"key":"club","label":"Club"}]}`
	mock.ExpectQuery(`SELECT ts.tenant_id, ts.custom_fields_definition`).
		WithArgs("client_acme").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "custom_fields_definition"}).AddRow("42", []byte(def)))

	st, err := repo.GetBySchema(context.Background(), "client_acme")
	require.NoError(t, err)
	assert.Equal(t, "42", st.TenantID)
	assert.JSONEq(t, def, string(st.CustomFieldsDefinition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBySchema_NoRows(t *testing.T) {
	mock, repo := setupMockDB(t)
	mock.ExpectQuery(`SELECT ts.tenant_id`).
		WithArgs("client_none").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "custom_fields_definition"}))

	_, err := repo.GetBySchema(context.Background(), "client_none")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEnsureTable(t *testing.T) {
	t.Run("creates when missing", func(t *testing.T) {
		mock, repo := setupMockDB(t)
		mock.ExpectQuery(`SELECT to_regclass`).
			WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow(nil))
		mock.ExpectExec(`CREATE TABLE tenant_settings`).WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, repo.EnsureTable(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("skips when present", func(t *testing.T) {
		mock, repo := setupMockDB(t)
		mock.ExpectQuery(`SELECT to_regclass`).
			WillReturnRows(sqlmock.NewRows([]string{"to_regclass"}).AddRow("tenant_settings"))

		require.NoError(t, repo.EnsureTable(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
