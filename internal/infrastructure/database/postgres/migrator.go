package postgres

import (
	"embed"
	stderrors "errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx5:// driver
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/hmd/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationSource returns the embedded schema migrations.
func MigrationSource() (source.Driver, error) {
	d, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open embedded migrations")
	}
	return d, nil
}

// MigrationURL converts a postgres:// DSN into the pgx5:// form expected by
// golang-migrate, dropping the pgxpool-only pool_* parameters.
func MigrationURL(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDatabaseError, "invalid postgres connection string")
	}
	switch u.Scheme {
	case "postgres", "postgresql", "pgx5":
	default:
		return "", errors.Newf(errors.ErrCodeDatabaseError, "unsupported postgres scheme %q", u.Scheme)
	}
	u.Scheme = "pgx5"
	q := u.Query()
	for k := range q {
		if strings.HasPrefix(k, "pool_") {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RunMigrations applies every pending embedded migration to the database at
// dsn.  An up-to-date schema is not an error.
func RunMigrations(dsn string, log logging.Logger) error {
	dbURL, err := MigrationURL(dsn)
	if err != nil {
		return err
	}
	src, err := MigrationSource()
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrate instance")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		version, _, _ := m.Version()
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to run migrations").
			WithDetail("current version " + strconv.FormatUint(uint64(version), 10))
	}

	version, dirty, err := m.Version()
	if err != nil && !stderrors.Is(err, migrate.ErrNilVersion) {
		log.Warn("failed to get migration version", logging.Err(err))
	}
	log.Info("database migrations completed",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty),
	)
	return nil
}
