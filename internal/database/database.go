package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"vantage/internal/config"
)

// Database represents the database connection and operations
type Database struct {
	db     *sqlx.DB
	orm    *gorm.DB
	logger *zap.Logger
	config *config.DatabaseConfig
}

// New creates a new database instance
func New(cfg *config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	if cfg == nil {
		return nil, errors.New("database config is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	logger = logger.Named("database")
	logger.Info("Connecting to database",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("name", cfg.Name),
		zap.String("user", cfg.Username))

	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	d, err := NewWithDB(db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Successfully connected to database")
	return d, nil
}

// NewWithDB wraps an existing connection pool. The gorm handle shares the same pool.
func NewWithDB(db *sqlx.DB, cfg *config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	orm, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialise gorm")
	}

	return &Database{
		db:     db,
		orm:    orm,
		logger: logger,
		config: cfg,
	}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db != nil {
		d.logger.Info("Closing database connection")
		return d.db.Close()
	}
	return nil
}

// DB returns the underlying sqlx.DB instance
func (d *Database) DB() *sqlx.DB {
	return d.db
}

// Gorm returns a gorm handle bound to ctx over the shared pool
func (d *Database) Gorm(ctx context.Context) *gorm.DB {
	return d.orm.WithContext(ctx)
}

// Health checks the database health
func (d *Database) Health(ctx context.Context) error {
	if d.db == nil {
		return errors.New("database connection not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return d.db.PingContext(ctx)
}

// RunMigrations executes database migrations
func (d *Database) RunMigrations() error {
	d.logger.Info("Running database migrations", zap.String("path", d.config.MigrationsPath))

	driver, err := postgres.WithInstance(d.db.DB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance(d.config.MigrationsPath, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migration instance")
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		d.logger.Info("No new migrations to apply")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}

	d.logger.Info("Successfully applied database migrations")
	return nil
}

// BeginTx starts a new transaction
func (d *Database) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return d.db.BeginTxx(ctx, opts)
}

// ExecContext executes a statement with the configured query timeout
func (d *Database) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	result, err := d.db.ExecContext(ctx, query, args...)
	d.observe("EXEC", query, args, time.Since(start), err)

	return result, err
}

// SelectContext executes a query and scans the result into dest
func (d *Database) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := d.db.SelectContext(ctx, dest, query, args...)
	d.observe("SELECT", query, args, time.Since(start), err)

	return err
}

// GetContext executes a query and scans the first row into dest
func (d *Database) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := d.db.GetContext(ctx, dest, query, args...)
	if err == sql.ErrNoRows {
		d.observe("GET", query, args, time.Since(start), nil)
	} else {
		d.observe("GET", query, args, time.Since(start), err)
	}

	return err
}

// GetStats returns database connection statistics
func (d *Database) GetStats() sql.DBStats {
	if d.db == nil {
		return sql.DBStats{}
	}
	return d.db.Stats()
}

func (d *Database) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config == nil || d.config.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.config.QueryTimeout)
}

// observe logs the query when enabled and warns when it exceeds the slow query threshold
func (d *Database) observe(operation, query string, args []interface{}, duration time.Duration, err error) {
	if d.config == nil {
		return
	}

	if d.config.EnableQueryLogging {
		d.logQuery(operation, query, args, duration, err)
	}

	if d.config.SlowQueryThreshold > 0 && duration > d.config.SlowQueryThreshold {
		d.logger.Warn("Slow query detected",
			zap.String("query", query),
			zap.Duration("duration", duration),
			zap.Duration("threshold", d.config.SlowQueryThreshold))
	}
}

// logQuery logs database queries if logging is enabled
func (d *Database) logQuery(operation, query string, args []interface{}, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("query", query),
		zap.Duration("duration", duration),
	}

	if len(args) > 0 {
		fields = append(fields, zap.Int("arg_count", len(args)))
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		d.logger.Error("Database query failed", fields...)
	} else {
		d.logger.Debug("Database query executed", fields...)
	}
}
