package store

import (
    "embed"
    "errors"
    "fmt"
    "strings"

    "github.com/golang-migrate/migrate/v4"
    _ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
    "github.com/golang-migrate/migrate/v4/source/iofs"
    "go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending schema migration to the database at databaseURL.
func Migrate(databaseURL string, logger *zap.Logger) error {
    src, err := iofs.New(migrationFiles, "migrations")
    if err != nil {
        return fmt.Errorf("open migrations: %w", err)
    }

    m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
    if err != nil {
        return fmt.Errorf("create migrator: %w", err)
    }
    defer func() {
        _, _ = m.Close()
    }()

    err = m.Up()
    if errors.Is(err, migrate.ErrNoChange) {
        logger.Info("no migrations to apply")
        return nil
    }
    if err != nil {
        return fmt.Errorf("migration up failed: %w", err)
    }

    version, dirty, err := m.Version()
    if err != nil {
        return fmt.Errorf("read migration version: %w", err)
    }
    logger.Info("migrations completed",
        zap.Uint("version", version),
        zap.Bool("dirty", dirty),
    )
    return nil
}

func migrateURL(databaseURL string) string {
    for _, scheme := range []string{"postgresql://", "postgres://"} {
        if strings.HasPrefix(databaseURL, scheme) {
            return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
        }
    }
    return databaseURL
}
