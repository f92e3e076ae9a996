package mysql

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Pool sizes; zero keeps the driver default.
type Pool struct {
	MaxOpen int
	MaxIdle int
}

func Connect(ctx context.Context, dsn string, pool Pool) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "migrations fs")
	}
	provider, err := goose.NewProvider(goose.DialectMySQL, db, sub)
	if err != nil {
		return errors.Wrap(err, "goose provider")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "goose up")
	}
	for _, r := range results {
		log.Info().Int64("version", r.Source.Version).Dur("took", r.Duration).Msg("migration applied")
	}
	return nil
}
