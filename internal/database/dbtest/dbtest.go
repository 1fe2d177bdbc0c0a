// Package dbtest builds Database handles backed by sqlmock for repository tests.
package dbtest

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vantage/internal/config"
	"vantage/internal/database"
)

// New returns a Database over a sqlmock connection. Expectations are checked on cleanup.
func New(t *testing.T) (*database.Database, sqlmock.Sqlmock) {
	t.Helper()

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := database.NewWithDB(sqlx.NewDb(raw, "postgres"), &config.DatabaseConfig{}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		raw.Close()
	})

	return db, mock
}
