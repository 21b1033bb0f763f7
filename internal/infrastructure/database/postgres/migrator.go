package postgres

import (
	stderrors "errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/tessellabio/concentra/internal/config"
	"github.com/tessellabio/concentra/internal/infrastructure/monitoring/logging"
	"github.com/tessellabio/concentra/pkg/errors"
)

// Migrate applies all pending schema migrations from cfg.MigrationPath
// (a source URL such as "file://migrations").  Already being up to date is
// not an error.
func Migrate(cfg config.DatabaseConfig, log logging.Logger) error {
	m, err := migrate.New(cfg.MigrationPath, BuildDSN(cfg))
	if err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError, "initialising migrator")
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Warn("closing migration source", logging.Err(srcErr))
		}
		if dbErr != nil {
			log.Warn("closing migration database", logging.Err(dbErr))
		}
	}()

	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.CodeDatabaseError, "applying migrations")
	}

	version, dirty, err := m.Version()
	if err != nil && !stderrors.Is(err, migrate.ErrNilVersion) {
		log.Warn("reading migration version", logging.Err(err))
		return nil
	}
	log.Info("database schema up to date",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty))
	return nil
}
