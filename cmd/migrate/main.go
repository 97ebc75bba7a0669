package main

import (
	"flag"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"

	"GiftCardPay/internal/config"
	"GiftCardPay/internal/logger"
)

func main() {
	var (
		migrationsPath string
		down           bool
	)
	flag.StringVar(&migrationsPath, "migrations-path", "", "path to migration files")
	flag.BoolVar(&down, "down", false, "roll back the most recent migration")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		panic(errors.Wrap(err, "config load failed"))
	}
	log := logger.SetupLogger(cfg.Env)

	if migrationsPath == "" {
		migrationsPath = cfg.DB.MigrationsPath
	}

	m, err := migrate.New("file://"+migrationsPath, migrateURL(cfg.DB.DSN))
	if err != nil {
		panic(errors.Wrap(err, "failed to create migrate instance"))
	}
	defer m.Close()

	if down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info("no migrations to apply")
	case err != nil:
		panic(errors.Wrap(err, "migration failed"))
	default:
		version, dirty, _ := m.Version()
		log.Info("migrations applied",
			slog.String("path", migrationsPath),
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	}
}

// migrateURL rewrites a postgres DSN into the scheme the pgx/v5 migrate driver registers.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
