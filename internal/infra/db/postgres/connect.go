package postgres

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// unique_violation
const codeUniqueViolation = "23505"

// Pool sizes; zero keeps the driver default.
type Pool struct {
	MaxOpen int
	MaxIdle int
}

func Connect(ctx context.Context, dsn string, pool Pool) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "migrations fs")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
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

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == codeUniqueViolation
}
