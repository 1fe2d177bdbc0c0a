package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vantage/internal/database"
	"vantage/internal/database/dbtest"
)

func TestRepository_WithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db, mock := dbtest.New(t)
		repo := database.NewRepository(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE marketplace_items").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.WithTx(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE marketplace_items SET sales_count = sales_count + 1")
			return err
		})
		assert.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock := dbtest.New(t)
		repo := database.NewRepository(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := repo.WithTx(ctx, func(tx *sqlx.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("rolls back and re-panics", func(t *testing.T) {
		db, mock := dbtest.New(t)
		repo := database.NewRepository(db, zap.NewNop())

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "kaboom", func() {
			_ = repo.WithTx(ctx, func(tx *sqlx.Tx) error { panic("kaboom") })
		})
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock := dbtest.New(t)
		repo := database.NewRepository(db, zap.NewNop())

		mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		called := false
		err := repo.WithTx(ctx, func(tx *sqlx.Tx) error { called = true; return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pool exhausted")
		assert.False(t, called)
	})
}

func TestPagination(t *testing.T) {
	tests := []struct {
		name       string
		page       database.Page
		total      int64
		totalPages int
		hasNext    bool
		hasPrev    bool
	}{
		{"empty", database.NewPage(1, 10), 0, 0, false, false},
		{"exact fit", database.NewPage(1, 10), 10, 1, false, false},
		{"partial last page", database.NewPage(1, 10), 11, 2, true, false},
		{"middle page", database.NewPage(2, 10), 35, 4, true, true},
		{"last page", database.NewPage(4, 10), 35, 4, false, true},
		{"beyond last page", database.NewPage(6, 10), 35, 4, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := database.NewPagination(tt.page, tt.total)
			assert.Equal(t, tt.totalPages, p.TotalPages)
			assert.Equal(t, tt.hasNext, p.HasNext)
			assert.Equal(t, tt.hasPrev, p.HasPrev)
			assert.Equal(t, tt.total, p.Total)
		})
	}
}

func TestNewPage(t *testing.T) {
	p := database.NewPage(0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, database.DefaultPageLimit, p.Limit)
	assert.Equal(t, 0, p.Offset())

	p = database.NewPage(3, 500)
	assert.Equal(t, database.MaxPageLimit, p.Limit)
	assert.Equal(t, 200, p.Offset())
}
