package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// ErrDirtyMigration means a previous migration failed halfway and the schema
// needs manual repair before the service may start.
var ErrDirtyMigration = errors.New("database schema is dirty")

// RunMigrations brings the memory_embeddings and memory_audit_log schema up
// to date.
func RunMigrations(dsn, migrationsPath string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator for %s: %w", migrationsPath, err)
	}
	defer m.Close()

	before, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w at version %d", ErrDirtyMigration, before)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Debug("database schema up to date", zap.Uint("version", before))
		return nil
	}
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	after, _, _ := m.Version()
	logger.Info("database migrations applied", zap.Uint("from", before), zap.Uint("to", after))
	return nil
}
