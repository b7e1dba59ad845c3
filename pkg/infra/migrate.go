package infra

import (
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrate runs all pending schema migrations from source (a file:// URL)
// against connStr. A dirty version is forced back one step and retried.
func Migrate(source, connStr string) error {
	mg, err := migrate.New(source, connStr)
	if err != nil {
		return err
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return err
	}
	if dirty {
		if err := mg.Force(int(version) - 1); err != nil {
			return err
		}
	}

	if err := mg.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	zap.S().Infof("migration done, source=%s", source)
	return nil
}
