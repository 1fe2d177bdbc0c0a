package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Repository represents a base repository with common database operations
type Repository struct {
	db     *Database
	logger *zap.Logger
}

// NewRepository creates a new repository instance
func NewRepository(db *Database, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.Named("repository"),
	}
}

// DB returns the database instance
func (r *Repository) DB() *Database {
	return r.db
}

// Logger returns the repository logger
func (r *Repository) Logger() *zap.Logger {
	return r.logger
}

// WithTx executes fn inside a transaction held on a dedicated connection.
// The transaction is rolled back when fn returns an error or panics and
// committed otherwise; the connection is released on every path.
func (r *Repository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				r.logger.Error("Failed to rollback transaction after panic",
					zap.Error(rollbackErr))
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			r.logger.Error("Failed to rollback transaction",
				zap.Error(rollbackErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}
